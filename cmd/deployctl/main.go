package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/deploy"
	"github.com/compose-network/deployctl/internal/devnet"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "deployctl"
	envPrefix = "DEPLOYCTL"
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Deploy contract modules to configured networks, idempotently",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		logger.Initialize(logger.ParseLevel(configs.Values.Log.Level), configs.Values.Log.Format)
		slog.With("config_file", viper.ConfigFileUsed()).Debug("configuration loaded")

		return nil
	},
}

func loadConfig() error {
	if err := configs.RegisterDefaults(viper.GetViper()); err != nil {
		return err
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if execPath, err := os.Executable(); err == nil {
		viper.AddConfigPath(filepath.Dir(execPath))
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// A missing config file is fine: flags, env and defaults can carry everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&configs.Values); err != nil {
		return fmt.Errorf("unable to decode application config: %w", err)
	}

	return nil
}

func main() {
	declareFlags(rootCmd)

	rootCmd.AddCommand(deploy.CMD)
	rootCmd.AddCommand(deploy.PlanCMD)
	rootCmd.AddCommand(deploy.StatusCMD)
	rootCmd.AddCommand(deploy.VerifyCMD)
	rootCmd.AddCommand(deploy.NetworksCMD)
	rootCmd.AddCommand(devnet.CMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}
