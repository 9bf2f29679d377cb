package main

import (
	"github.com/compose-network/deployctl/configs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

func declareFlags(cmd *cobra.Command) {
	defaults := configs.MustDefaultConfig()

	stringFlags := []flagDef[string]{
		{"log-level", "log.level", defaults.Log.Level, "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", defaults.Log.Format, "Log format (json or text)"},

		{"journal-driver", "journal.driver", string(defaults.Journal.Driver), "Journal driver (json, sqlite or memory)"},
		{"journal-path", "journal.path", defaults.Journal.Path, "Journal directory (json) or database file (sqlite)"},
		{"lock-dir", "journal.lock-dir", defaults.Journal.LockDir, "Directory for cross-process run locks; empty for in-process locking only"},

		{"artifacts-dir", "artifacts.dir", defaults.Artifacts.Dir, "Directory of compiled contract artifacts"},
		{"compiler-version", "artifacts.compiler-version", defaults.Artifacts.CompilerVersion, "Compiler version used when build info does not name one"},
	}

	intFlags := []flagDef[int]{
		{"verification-attempts", "verification.max-attempts", defaults.Verification.MaxAttempts, "Maximum verification submission attempts"},
	}

	boolFlags := []flagDef[bool]{
		{"verify", "verification.enabled", defaults.Verification.Enabled, "Verify deployed contracts on networks with an explorer"},
		{"check-code", "executor.check-code", defaults.Executor.CheckCode, "Require contract code at every recorded address"},
	}

	for _, f := range stringFlags {
		declareFlag(cmd, f)
	}
	for _, f := range intFlags {
		declareFlag(cmd, f)
	}
	for _, f := range boolFlags {
		declareFlag(cmd, f)
	}
}

func declareFlag[T flagType](cmd *cobra.Command, f flagDef[T]) {
	flags := cmd.PersistentFlags()

	switch v := any(f.defaultValue).(type) {
	case string:
		flags.String(f.name, v, f.description)
	case int:
		flags.Int(f.name, v, f.description)
	case bool:
		flags.Bool(f.name, v, f.description)
	}

	if err := viper.BindPFlag(f.viperKey, flags.Lookup(f.name)); err != nil {
		panic(err)
	}
}
