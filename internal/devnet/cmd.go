package devnet

import (
	"fmt"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/infra/docker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	CMD = &cobra.Command{
		Use:   "devnet",
		Short: "Manage a local anvil devnet (hardhat network compatible)",
	}

	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Start the devnet and wait for its RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(service *Service) error {
				url, err := service.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("error occurred starting devnet: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
				return err
			})
		},
	}

	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the devnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(service *Service) error {
				if err := service.Down(cmd.Context()); err != nil {
					return fmt.Errorf("error occurred stopping devnet: %w", err)
				}
				return nil
			})
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show whether the devnet is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(service *Service) error {
				status, err := service.Status(cmd.Context())
				if err != nil {
					return err
				}
				state := "absent"
				switch {
				case status.Running:
					state = "running"
				case status.Exists:
					state = "stopped"
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, status.RPCURL)
				return err
			})
		},
	}
)

func init() {
	defaults := configs.MustDefaultConfig().Devnet

	declareFlag("image", "devnet.image", defaults.Image, "Docker image providing anvil")
	declareFlag("container-name", "devnet.container-name", defaults.ContainerName, "Devnet container name")
	declareFlag("port", "devnet.port", defaults.Port, "Host port for the devnet RPC")

	CMD.AddCommand(upCmd)
	CMD.AddCommand(downCmd)
	CMD.AddCommand(statusCmd)
}

func declareFlag[T string | int](name, key string, defaultValue T, description string) {
	switch v := any(defaultValue).(type) {
	case string:
		CMD.PersistentFlags().String(name, v, description)
	case int:
		CMD.PersistentFlags().Int(name, v, description)
	}
	if err := viper.BindPFlag(key, CMD.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func withService(cmd *cobra.Command, fn func(*Service) error) error {
	// Re-unmarshal to include flag overrides.
	if err := viper.Unmarshal(&configs.Values); err != nil {
		return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
	}

	dockerClient, err := docker.New()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer dockerClient.Close()

	return fn(NewService(dockerClient, configs.Values.Devnet))
}
