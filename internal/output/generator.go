// Package output writes the summary of a deployment for downstream tooling.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/compose-network/deployctl/internal/artifact"
	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/infra/filesystem"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/verify"
	"gopkg.in/yaml.v3"
)

type (
	ABISource interface {
		Get(ref string) (artifact.Artifact, error)
	}

	// Deployment is everything the summary is built from.
	Deployment struct {
		Network string
		ChainID int64
		Graph   string
		RunID   string
		// Artifacts maps step ids to artifact refs.
		Artifacts    map[string]string
		Records      map[string]domain.Record
		Verification map[string]verify.Result
	}

	Generator struct {
		writer filesystem.Writer
		abis   ABISource
		logger *slog.Logger
	}
)

// NewGenerator returns a generator. abis may be nil, in which case the
// summary carries no ABIs.
func NewGenerator(writer filesystem.Writer, abis ABISource) *Generator {
	return &Generator{
		writer: writer,
		abis:   abis,
		logger: logger.Named("output_generator"),
	}
}

func (g *Generator) Generate(path string, deployment Deployment) error {
	model := g.model(deployment)

	data, err := yaml.Marshal(model)
	if err != nil {
		return fmt.Errorf("could not marshal output model: %w", err)
	}

	if err := g.writer.WriteBytes(path, data); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}

	g.logger.With("path", path).With("contracts", len(model.Contracts)).Info("deployment output written")

	return nil
}

func (g *Generator) model(deployment Deployment) Model {
	model := Model{
		Network:   deployment.Network,
		ChainID:   deployment.ChainID,
		Graph:     deployment.Graph,
		RunID:     deployment.RunID,
		Contracts: make(map[string]Contract, len(deployment.Records)),
	}

	for stepID, record := range deployment.Records {
		contract := Contract{
			Artifact: deployment.Artifacts[stepID],
			Address:  record.Address,
			TxHash:   record.TxHash,
			Block:    record.BlockNumber,
		}

		if result, ok := deployment.Verification[stepID]; ok {
			contract.Verification = &Verification{Status: string(result.Status), URL: result.URL}
		}

		if g.abis != nil && contract.Artifact != "" {
			if art, err := g.abis.Get(contract.Artifact); err == nil {
				contract.ABI = SingleQuotedString(compactJSON(art.RawABI))
			}
		}

		model.Contracts[stepID] = contract
	}

	return model
}

func compactJSON(jsonStr string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
