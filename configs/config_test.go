package configs

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	require.Equal(t, JournalDriverJSON, cfg.Journal.Driver)
	require.Equal(t, 2*time.Minute, cfg.Executor.ConfirmTimeout)
	require.Equal(t, int64(31337), cfg.Networks["localhost"].ChainID)
	require.Equal(t, "env:ETHERSCAN_API_KEY", cfg.Networks["sepolia"].Verification.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestRegisterDefaultsSkipsNetworks(t *testing.T) {
	v := viper.New()
	require.NoError(t, RegisterDefaults(v))

	require.Equal(t, "json", v.GetString("journal.driver"))
	require.False(t, v.IsSet("networks.localhost.rpc-url"))
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := MustDefaultConfig()
		cfg.Networks = map[NetworkName]Network{
			"local": {RPCURL: "http://127.0.0.1:8545", ChainID: 31337},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "no networks",
			mutate:  func(c *Config) { c.Networks = nil },
			wantErr: "at least one network is required",
		},
		{
			name: "empty endpoint",
			mutate: func(c *Config) {
				c.Networks["local"] = Network{ChainID: 1}
			},
			wantErr: "networks.local: rpc-url is required",
		},
		{
			name: "relative endpoint",
			mutate: func(c *Config) {
				c.Networks["local"] = Network{RPCURL: "localhost", ChainID: 1}
			},
			wantErr: "is not an absolute URL",
		},
		{
			name: "zero chain id",
			mutate: func(c *Config) {
				c.Networks["local"] = Network{RPCURL: "http://127.0.0.1:8545"}
			},
			wantErr: "chain-id must be positive",
		},
		{
			name:    "unknown journal driver",
			mutate:  func(c *Config) { c.Journal.Driver = "redis" },
			wantErr: "journal.driver must be one of",
		},
		{
			name: "memory journal needs no path",
			mutate: func(c *Config) {
				c.Journal.Driver = JournalDriverMemory
				c.Journal.Path = ""
			},
		},
		{
			name:    "verification attempts",
			mutate:  func(c *Config) { c.Verification.MaxAttempts = 0 },
			wantErr: "verification.max-attempts must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
