package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/compose-network/deployctl/internal/artifact"
	"github.com/compose-network/deployctl/internal/domain"
	fsjson "github.com/compose-network/deployctl/internal/infra/filesystem/json"
	"github.com/compose-network/deployctl/internal/verify"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type abiSource map[string]artifact.Artifact

func (a abiSource) Get(ref string) (artifact.Artifact, error) {
	art, ok := a[ref]
	if !ok {
		return artifact.Artifact{}, artifact.ErrUnknownArtifact
	}
	return art, nil
}

func TestGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "deployments.yaml")
	abis := abiSource{"Secura": {Name: "Secura", RawABI: "[\n  {\"type\": \"constructor\", \"inputs\": []}\n]"}}

	err := NewGenerator(fsjson.NewWriter(), abis).Generate(path, Deployment{
		Network:   "sepolia",
		ChainID:   11155111,
		Graph:     "SecuraModule",
		RunID:     "run-1",
		Artifacts: map[string]string{"secura": "Secura"},
		Records: map[string]domain.Record{
			"secura": {StepID: "secura", Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3", TxHash: "0xab", BlockNumber: 9},
		},
		Verification: map[string]verify.Result{
			"secura": {Status: verify.StatusVerified, URL: "https://sepolia.etherscan.io/address/0x5FbDB2315678afecb367f032d93F642f64180aa3#code"},
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `abi: '[{"type":"constructor","inputs":[]}]'`)

	var model Model
	require.NoError(t, yaml.Unmarshal(data, &model))
	require.Equal(t, "sepolia", model.Network)
	require.Equal(t, int64(11155111), model.ChainID)
	require.Equal(t, "run-1", model.RunID)

	secura := model.Contracts["secura"]
	require.Equal(t, "Secura", secura.Artifact)
	require.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", secura.Address)
	require.Equal(t, uint64(9), secura.Block)
	require.Equal(t, "verified", secura.Verification.Status)
}

func TestGenerateWithoutVerificationOrABI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.yaml")

	err := NewGenerator(fsjson.NewWriter(), nil).Generate(path, Deployment{
		Network: "localhost",
		ChainID: 31337,
		Graph:   "SecuraModule",
		Records: map[string]domain.Record{"secura": {StepID: "secura", Address: "0x01"}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "verification")
	require.NotContains(t, string(data), "abi")
}
