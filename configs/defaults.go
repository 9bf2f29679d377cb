package configs

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// networksKey is left out of the registered defaults: example networks must
// never leak into a user's registry.
const networksKey = "networks"

var (
	//go:embed config.example.yaml
	defaultConfigYAML string

	defaultConfigOnce sync.Once
	defaultViper      *viper.Viper
	defaultConfig     Config
	defaultConfigErr  error
)

func loadDefaults() {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfigYAML)); err != nil {
		defaultConfigErr = fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
		return
	}

	if err := v.Unmarshal(&defaultConfig); err != nil {
		defaultConfigErr = fmt.Errorf("failed to decode embedded config.example.yaml: %w", err)
		return
	}

	defaultViper = v
}

// DefaultConfig returns the parsed configuration from the embedded config.example.yaml.
func DefaultConfig() (Config, error) {
	defaultConfigOnce.Do(loadDefaults)

	if defaultConfigErr != nil {
		return Config{}, defaultConfigErr
	}

	return defaultConfig, nil
}

// MustDefaultConfig returns embedded defaults or panics if they cannot be loaded.
func MustDefaultConfig() Config {
	cfg, err := DefaultConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

// RegisterDefaults seeds v with every embedded default except the example networks.
func RegisterDefaults(v *viper.Viper) error {
	defaultConfigOnce.Do(loadDefaults)
	if defaultConfigErr != nil {
		return defaultConfigErr
	}

	for _, key := range defaultViper.AllKeys() {
		if key == networksKey || strings.HasPrefix(key, networksKey+".") {
			continue
		}
		v.SetDefault(key, defaultViper.Get(key))
	}

	return nil
}
