package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/stretchr/testify/require"
)

const securaABI = `[{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"supply","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func hardhatLayout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "contracts", "Secura.sol", "Secura.json"), `{
  "_format": "hh-sol-artifact-1",
  "contractName": "Secura",
  "sourceName": "contracts/Secura.sol",
  "abi": `+securaABI+`,
  "bytecode": "0x6080604052",
  "deployedBytecode": "0x6080"
}`)
	writeFile(t, filepath.Join(root, "contracts", "Secura.sol", "Secura.dbg.json"), `{
  "_format": "hh-sol-dbg-1",
  "buildInfo": "../../build-info/abc123.json"
}`)
	writeFile(t, filepath.Join(root, "contracts", "ISecura.sol", "ISecura.json"), `{
  "_format": "hh-sol-artifact-1",
  "contractName": "ISecura",
  "sourceName": "contracts/ISecura.sol",
  "abi": [],
  "bytecode": "0x"
}`)
	writeFile(t, filepath.Join(root, "build-info", "abc123.json"), `{
  "_format": "hh-sol-build-info-1",
  "solcVersion": "0.8.24",
  "solcLongVersion": "0.8.24+commit.e11b9ed9",
  "input": {"language": "Solidity", "sources": {"contracts/Secura.sol": {"content": "contract Secura {}"}}}
}`)
	return root
}

func TestLoadHardhatArtifacts(t *testing.T) {
	store, err := Load(hardhatLayout(t), "v0.8.20+commit.a1b79de6")
	require.NoError(t, err)

	require.Equal(t, []string{"Secura"}, store.Names())

	secura, err := store.Get("Secura")
	require.NoError(t, err)
	require.Equal(t, "contracts/Secura.sol", secura.SourceName)
	require.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, secura.Bytecode)
	require.Equal(t, "v0.8.24+commit.e11b9ed9", secura.CompilerVersion)
	require.JSONEq(t, `{"language": "Solidity", "sources": {"contracts/Secura.sol": {"content": "contract Secura {}"}}}`, string(secura.StandardJSONInput))
	require.Len(t, secura.ABI.Constructor.Inputs, 2)

	qualified, err := store.Get("contracts/Secura.sol:Secura")
	require.NoError(t, err)
	require.Equal(t, secura.Name, qualified.Name)

	_, err = store.Get("ISecura")
	require.ErrorIs(t, err, ErrUnknownArtifact)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoadCombinedContracts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "contracts.json"), `{
  "Secura": {"abi": `+securaABI+`, "bytecode": "0x6080"},
  "Empty": {"abi": [], "bytecode": ""}
}`)

	store, err := Load(root, "0.8.24+commit.e11b9ed9")
	require.NoError(t, err)
	require.Equal(t, []string{"Secura"}, store.Names())

	secura, err := store.Get("Secura")
	require.NoError(t, err)
	require.Equal(t, "v0.8.24+commit.e11b9ed9", secura.CompilerVersion)
	require.Empty(t, secura.StandardJSONInput)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), "")
	require.Error(t, err)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "contracts.json"), `{"Broken": {"abi": "not an abi", "bytecode": "0x60"}}`)
	_, err = Load(root, "")
	require.Error(t, err)
}

func TestLazyStore(t *testing.T) {
	missing := NewLazyStore(filepath.Join(t.TempDir(), "missing"), "")
	_, err := missing.Get("Secura")
	require.Error(t, err)

	lazy := NewLazyStore(hardhatLayout(t), "")
	secura, err := lazy.Get("Secura")
	require.NoError(t, err)
	require.Equal(t, "Secura", secura.Name)
}
