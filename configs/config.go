package configs

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

var Values Config

type (
	NetworkName   string
	JournalDriver string

	Config struct {
		Log          Log                     `mapstructure:"log"`
		Networks     map[NetworkName]Network `mapstructure:"networks"`
		Journal      Journal                 `mapstructure:"journal"`
		Executor     Executor                `mapstructure:"executor"`
		Verification Verification            `mapstructure:"verification"`
		Artifacts    Artifacts               `mapstructure:"artifacts"`
		Output       Output                  `mapstructure:"output"`
		Devnet       Devnet                  `mapstructure:"devnet"`
	}

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}

	// Network holds one deployment target. Credential is a reference
	// (env:NAME, file:PATH, keystore:PATH#ENV), never key material.
	Network struct {
		RPCURL       string              `mapstructure:"rpc-url"`
		ChainID      int64               `mapstructure:"chain-id"`
		Credential   string              `mapstructure:"credential"`
		Verification NetworkVerification `mapstructure:"verification"`
	}

	NetworkVerification struct {
		APIURL     string `mapstructure:"api-url"`
		BrowserURL string `mapstructure:"browser-url"`
		// APIKey is a reference resolved the same way as Network.Credential.
		APIKey string `mapstructure:"api-key"`
	}

	Journal struct {
		Driver  JournalDriver `mapstructure:"driver"`
		Path    string        `mapstructure:"path"`
		LockDir string        `mapstructure:"lock-dir"`
	}

	Executor struct {
		ConfirmTimeout time.Duration `mapstructure:"confirm-timeout"`
		PollInterval   time.Duration `mapstructure:"poll-interval"`
		GasLimit       uint64        `mapstructure:"gas-limit"`
		CheckCode      bool          `mapstructure:"check-code"`
	}

	Verification struct {
		Enabled         bool          `mapstructure:"enabled"`
		MaxAttempts     int           `mapstructure:"max-attempts"`
		PollAttempts    int           `mapstructure:"poll-attempts"`
		InitialInterval time.Duration `mapstructure:"initial-interval"`
		MaxInterval     time.Duration `mapstructure:"max-interval"`
	}

	Artifacts struct {
		Dir             string `mapstructure:"dir"`
		CompilerVersion string `mapstructure:"compiler-version"`
	}

	Output struct {
		Path string `mapstructure:"path"`
	}

	Devnet struct {
		Image         string        `mapstructure:"image"`
		ContainerName string        `mapstructure:"container-name"`
		Port          int           `mapstructure:"port"`
		ChainID       int64         `mapstructure:"chain-id"`
		BlockTime     time.Duration `mapstructure:"block-time"`
	}
)

const (
	JournalDriverJSON   JournalDriver = "json"
	JournalDriverSQLite JournalDriver = "sqlite"
	JournalDriverMemory JournalDriver = "memory"
)

var journalDrivers = []JournalDriver{JournalDriverJSON, JournalDriverSQLite, JournalDriverMemory}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Networks) == 0 {
		errs = append(errs, errors.New("networks: at least one network is required"))
	}
	for name, network := range c.Networks {
		if err := network.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("networks.%s: %w", name, err))
		}
	}

	if err := c.Journal.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Executor.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("executor.confirm-timeout must be positive"))
	}
	if c.Executor.PollInterval <= 0 {
		errs = append(errs, errors.New("executor.poll-interval must be positive"))
	}

	if c.Verification.Enabled {
		if c.Verification.MaxAttempts <= 0 {
			errs = append(errs, errors.New("verification.max-attempts must be positive"))
		}
		if c.Verification.InitialInterval <= 0 {
			errs = append(errs, errors.New("verification.initial-interval must be positive"))
		}
		if c.Verification.MaxInterval < c.Verification.InitialInterval {
			errs = append(errs, errors.New("verification.max-interval must not be lower than initial-interval"))
		}
	}

	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// Validate checks a single network entry.
func (n Network) Validate() error {
	var errs []error

	if n.RPCURL == "" {
		errs = append(errs, errors.New("rpc-url is required"))
	} else if !isAbsoluteURL(n.RPCURL) {
		errs = append(errs, fmt.Errorf("rpc-url '%s' is not an absolute URL", n.RPCURL))
	}
	if n.ChainID <= 0 {
		errs = append(errs, errors.New("chain-id must be positive"))
	}
	if n.Verification.APIURL != "" && !isAbsoluteURL(n.Verification.APIURL) {
		errs = append(errs, fmt.Errorf("verification.api-url '%s' is not an absolute URL", n.Verification.APIURL))
	}

	return errors.Join(errs...)
}

func (j Journal) Validate() error {
	if !slices.Contains(journalDrivers, j.Driver) {
		return fmt.Errorf("journal.driver must be one of %v, got '%s'", journalDrivers, j.Driver)
	}
	if j.Driver != JournalDriverMemory && j.Path == "" {
		return fmt.Errorf("journal.path is required for driver '%s'", j.Driver)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
