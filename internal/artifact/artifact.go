// Package artifact loads compiled contracts from disk. Compilation itself
// happens elsewhere (hardhat, forge); this package only reads the output.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	combinedFileName = "contracts.json"
	buildInfoDirName = "build-info"
	debugFileSuffix  = ".dbg.json"
	hardhatFormat    = "hh-sol-artifact-1"
)

var (
	ErrUnknownArtifact = fmt.Errorf("unknown artifact: %w", domain.ErrConfiguration)

	errNoBytecode = errors.New("no bytecode")
)

type (
	// Artifact is a compiled contract ready for deployment.
	Artifact struct {
		Name       string
		SourceName string
		ABI        abi.ABI
		RawABI     string
		Bytecode   []byte
		// CompilerVersion is the solc long version with a "v" prefix, as explorers expect it.
		CompilerVersion string
		// StandardJSONInput is the solc input the contract was built from, if known.
		StandardJSONInput json.RawMessage
	}

	// Store indexes artifacts by contract name and by "source:name".
	Store struct {
		artifacts map[string]Artifact
		logger    *slog.Logger
	}

	hardhatArtifact struct {
		Format       string          `json:"_format"`
		ContractName string          `json:"contractName"`
		SourceName   string          `json:"sourceName"`
		ABI          json.RawMessage `json:"abi"`
		Bytecode     string          `json:"bytecode"`
	}

	hardhatDebug struct {
		BuildInfo string `json:"buildInfo"`
	}

	hardhatBuildInfo struct {
		SolcLongVersion string          `json:"solcLongVersion"`
		Input           json.RawMessage `json:"input"`
	}

	combinedEntry struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode string          `json:"bytecode"`
	}
)

// Load walks dir and indexes every artifact it recognises. defaultCompiler is
// used for artifacts whose build info does not name a compiler.
func Load(dir, defaultCompiler string) (*Store, error) {
	s := &Store{
		artifacts: make(map[string]Artifact),
		logger:    logger.Named("artifact_store"),
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifacts directory '%s': %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifacts path '%s' is not a directory", dir)
	}

	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == buildInfoDirName {
				return filepath.SkipDir
			}
			return nil
		}

		name := entry.Name()
		switch {
		case name == combinedFileName:
			return s.loadCombined(path, defaultCompiler)
		case strings.HasSuffix(name, debugFileSuffix), !strings.HasSuffix(name, ".json"):
			return nil
		default:
			return s.loadHardhat(path, defaultCompiler)
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.With("dir", dir).With("count", len(s.Names())).Debug("artifacts loaded")

	return s, nil
}

// Get resolves an artifact by contract name or by "sourceName:contractName".
func (s *Store) Get(ref string) (Artifact, error) {
	artifact, ok := s.artifacts[ref]
	if !ok {
		return Artifact{}, fmt.Errorf("%w '%s'", ErrUnknownArtifact, ref)
	}
	return artifact, nil
}

// Names lists the contract names in the store.
func (s *Store) Names() []string {
	var names []string
	for key, artifact := range s.artifacts {
		if key == artifact.Name {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) loadHardhat(path, defaultCompiler string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact '%s': %w", path, err)
	}

	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil || raw.Format != hardhatFormat {
		// Not every JSON file under artifacts/ is a contract artifact.
		return nil
	}

	artifact, err := newArtifact(raw.ContractName, raw.ABI, raw.Bytecode)
	if errors.Is(err, errNoBytecode) {
		s.logger.With("name", raw.ContractName).Debug("skipping artifact without bytecode")
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid artifact '%s': %w", path, err)
	}
	artifact.SourceName = raw.SourceName
	artifact.CompilerVersion = normalizeVersion(defaultCompiler)

	if buildInfo, ok := s.readBuildInfo(path); ok {
		if buildInfo.SolcLongVersion != "" {
			artifact.CompilerVersion = normalizeVersion(buildInfo.SolcLongVersion)
		}
		artifact.StandardJSONInput = buildInfo.Input
	}

	s.add(artifact)
	return nil
}

// readBuildInfo follows the .dbg.json sidecar of an artifact to its build info.
func (s *Store) readBuildInfo(artifactPath string) (hardhatBuildInfo, bool) {
	debugPath := strings.TrimSuffix(artifactPath, ".json") + debugFileSuffix

	data, err := os.ReadFile(debugPath)
	if err != nil {
		return hardhatBuildInfo{}, false
	}
	var debug hardhatDebug
	if err := json.Unmarshal(data, &debug); err != nil || debug.BuildInfo == "" {
		return hardhatBuildInfo{}, false
	}

	buildInfoPath := filepath.Join(filepath.Dir(debugPath), debug.BuildInfo)
	data, err = os.ReadFile(buildInfoPath)
	if err != nil {
		s.logger.With("path", buildInfoPath).With("err", err).Warn("build info not readable")
		return hardhatBuildInfo{}, false
	}
	var buildInfo hardhatBuildInfo
	if err := json.Unmarshal(data, &buildInfo); err != nil {
		s.logger.With("path", buildInfoPath).With("err", err).Warn("build info not parseable")
		return hardhatBuildInfo{}, false
	}
	return buildInfo, true
}

func (s *Store) loadCombined(path, defaultCompiler string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %w", path, err)
	}

	var entries map[string]combinedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse compiled contracts '%s': %w", path, err)
	}

	for name, entry := range entries {
		artifact, err := newArtifact(name, entry.ABI, entry.Bytecode)
		if errors.Is(err, errNoBytecode) {
			continue
		}
		if err != nil {
			return fmt.Errorf("invalid contract '%s' in '%s': %w", name, path, err)
		}
		artifact.CompilerVersion = normalizeVersion(defaultCompiler)
		s.add(artifact)
	}
	return nil
}

func (s *Store) add(artifact Artifact) {
	if existing, ok := s.artifacts[artifact.Name]; ok && existing.SourceName != artifact.SourceName {
		s.logger.
			With("name", artifact.Name).
			With("sources", []string{existing.SourceName, artifact.SourceName}).
			Warn("contract name is ambiguous, use the fully qualified name")
	}
	s.artifacts[artifact.Name] = artifact
	if artifact.SourceName != "" {
		s.artifacts[artifact.SourceName+":"+artifact.Name] = artifact
	}
}

func newArtifact(name string, rawABI json.RawMessage, bytecodeHex string) (Artifact, error) {
	if name == "" {
		return Artifact{}, fmt.Errorf("contract name is missing")
	}

	parsedABI, err := abi.JSON(strings.NewReader(string(rawABI)))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
	}

	bytecode := common.FromHex(bytecodeHex)
	if len(bytecode) == 0 {
		return Artifact{}, fmt.Errorf("contract %s: %w", name, errNoBytecode)
	}

	return Artifact{
		Name:     name,
		ABI:      parsedABI,
		RawABI:   string(rawABI),
		Bytecode: bytecode,
	}, nil
}

func normalizeVersion(version string) string {
	if version == "" || strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
