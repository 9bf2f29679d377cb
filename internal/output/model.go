package output

import (
	"gopkg.in/yaml.v3"
)

type (
	Model struct {
		Network   string              `yaml:"network"`
		ChainID   int64               `yaml:"chain-id"`
		Graph     string              `yaml:"graph"`
		RunID     string              `yaml:"run-id"`
		Contracts map[string]Contract `yaml:"contracts"`
	}

	Contract struct {
		Artifact     string             `yaml:"artifact"`
		Address      string             `yaml:"address"`
		TxHash       string             `yaml:"tx-hash"`
		Block        uint64             `yaml:"block"`
		Verification *Verification      `yaml:"verification,omitempty"`
		ABI          SingleQuotedString `yaml:"abi,omitempty"`
	}

	Verification struct {
		Status string `yaml:"status"`
		URL    string `yaml:"url,omitempty"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
