package graph

import (
	"errors"
	"fmt"
	"os"

	"github.com/compose-network/deployctl/internal/domain"
	"gopkg.in/yaml.v3"
)

var ErrInvalidModule = fmt.Errorf("invalid module file: %w", domain.ErrConfiguration)

type (
	// moduleFile is the declarative YAML description of a graph.
	moduleFile struct {
		Name  string       `yaml:"name"`
		Steps []moduleStep `yaml:"steps"`
	}

	moduleStep struct {
		ID       string        `yaml:"id"`
		Artifact string        `yaml:"artifact"`
		After    []string      `yaml:"after"`
		Args     []moduleParam `yaml:"args"`
	}

	moduleParam struct {
		Value any    `yaml:"value"`
		Ref   string `yaml:"ref"`
	}
)

func (p *moduleParam) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: argument must be a mapping with 'value' or 'ref'", node.Line)
	}

	type plain moduleParam
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}

	hasValue := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "value" {
			hasValue = true
		}
	}

	if hasValue == (decoded.Ref != "") {
		return fmt.Errorf("line %d: argument needs exactly one of 'value' or 'ref'", node.Line)
	}

	*p = moduleParam(decoded)
	return nil
}

// Load reads a module description from path and builds the graph.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module file '%s': %w", path, err)
	}

	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load module file '%s': %w", path, err)
	}

	return g, nil
}

// Parse decodes a YAML module description and builds the graph through the Builder.
func Parse(data []byte) (*Graph, error) {
	var module moduleFile
	if err := yaml.Unmarshal(data, &module); err != nil {
		return nil, errors.Join(ErrInvalidModule, err)
	}

	builder := NewBuilder(module.Name)
	for _, s := range module.Steps {
		params := make([]Param, 0, len(s.Args))
		for _, arg := range s.Args {
			if arg.Ref != "" {
				params = append(params, Ref(arg.Ref))
				continue
			}
			params = append(params, Literal(arg.Value))
		}
		builder.Contract(s.ID, s.Artifact, params...).After(s.After...)
	}

	return builder.Build()
}
