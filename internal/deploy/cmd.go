package deploy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/executor"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/verify"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	moduleFlag   = "module"
	networkFlag  = "network"
	noVerifyFlag = "no-verify"
	outputFlag   = "output"

	defaultNetwork = "localhost"
)

var (
	CMD = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a module to a network, then verify and validate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModule(cmd, func(components *Components, g *graph.Graph, networkName string) error {
				noVerify, _ := cmd.Flags().GetBool(noVerifyFlag)

				result, err := components.Service.Deploy(cmd.Context(), g, networkName, Options{
					Verify:     configs.Values.Verification.Enabled && !noVerify,
					OutputPath: configs.Values.Output.Path,
				})
				if result != nil && result.Report != nil {
					if renderErr := renderReport(cmd.OutOrStdout(), result); renderErr != nil {
						return errors.Join(err, renderErr)
					}
				}
				if err != nil {
					return fmt.Errorf("deployment of '%s' to '%s' failed: %w", g.Name(), networkName, err)
				}
				return nil
			})
		},
	}

	PlanCMD = &cobra.Command{
		Use:   "plan",
		Short: "Show what the next deploy would do without touching the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModule(cmd, func(components *Components, g *graph.Graph, networkName string) error {
				steps, err := components.Service.Plan(cmd.Context(), g, networkName)
				if err != nil {
					return err
				}
				return renderPlan(cmd.OutOrStdout(), steps)
			})
		},
	}

	StatusCMD = &cobra.Command{
		Use:   "status",
		Short: "Show the journaled deployment state of a module",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModule(cmd, func(components *Components, g *graph.Graph, networkName string) error {
				status, err := components.Service.Status(cmd.Context(), g, networkName)
				if err != nil {
					return err
				}
				if err := renderPlan(cmd.OutOrStdout(), status.Steps); err != nil {
					return err
				}
				for _, finding := range status.Validation.Findings {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s: %s\n", color.YellowString("!"), finding.StepID, finding.Field, finding.Message)
				}
				return nil
			})
		},
	}

	VerifyCMD = &cobra.Command{
		Use:   "verify",
		Short: "Verify the journaled contracts of a module on the network's explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModule(cmd, func(components *Components, g *graph.Graph, networkName string) error {
				results, err := components.Service.Verify(cmd.Context(), g, networkName)
				if results != nil {
					if renderErr := renderVerification(cmd.OutOrStdout(), g.TopologicalOrder(), results); renderErr != nil {
						return errors.Join(err, renderErr)
					}
				}
				return err
			})
		},
	}

	NetworksCMD = &cobra.Command{
		Use:   "networks",
		Short: "List the configured networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(func(components *Components) error {
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.Header("Network", "Chain ID", "RPC URL", "Verification")
				for _, name := range components.Registry.Names() {
					profile, err := components.Registry.Resolve(name)
					if err != nil {
						return err
					}
					explorer := "-"
					if profile.Verification != nil {
						explorer = profile.Verification.APIURL
					}
					if err := table.Append([]string{name, strconv.FormatInt(profile.ChainID, 10), profile.RPCURL, explorer}); err != nil {
						return err
					}
				}
				return table.Render()
			})
		},
	}
)

func init() {
	defaults := configs.MustDefaultConfig()

	for _, cmd := range []*cobra.Command{CMD, PlanCMD, StatusCMD, VerifyCMD} {
		cmd.Flags().StringP(moduleFlag, "m", "", "Path to the module YAML file")
		cmd.Flags().StringP(networkFlag, "n", defaultNetwork, "Name of the target network")
		_ = cmd.MarkFlagRequired(moduleFlag)
	}

	CMD.Flags().Bool(noVerifyFlag, false, "Skip explorer verification for this run")
	bindFlag(CMD.Flags(), outputFlag, "output.path", defaults.Output.Path, "Path of the deployment summary file")
}

func bindFlag(flags *pflag.FlagSet, name, key, defaultValue, description string) {
	flags.String(name, defaultValue, description)
	if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(err)
	}
}

func withModule(cmd *cobra.Command, fn func(*Components, *graph.Graph, string) error) error {
	modulePath, _ := cmd.Flags().GetString(moduleFlag)
	networkName, _ := cmd.Flags().GetString(networkFlag)

	g, err := graph.Load(modulePath)
	if err != nil {
		return err
	}

	return withComponents(func(components *Components) error {
		return fn(components, g, networkName)
	})
}

func withComponents(fn func(*Components) error) error {
	// Re-unmarshal to include flag overrides.
	if err := viper.Unmarshal(&configs.Values); err != nil {
		return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
	}
	if err := configs.Values.Validate(); err != nil {
		return err
	}

	components, err := Build(configs.Values)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			slog.With("err", err.Error()).Warn("failed to release resources")
		}
	}()

	return fn(components)
}

func renderReport(w io.Writer, result *Result) error {
	report := result.Report

	table := tablewriter.NewWriter(w)
	table.Header("Step", "State", "Address", "Tx Hash", "Verification")
	for _, id := range report.Order {
		record, recorded := report.Records[id]

		state := stepState(report, id, recorded)
		verification := "-"
		if res, ok := result.Verification[id]; ok {
			verification = colorStatus(res.Status)
		}
		if err := table.Append([]string{id, state, record.Address, record.TxHash, verification}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderPlan(w io.Writer, steps []executor.PlannedStep) error {
	table := tablewriter.NewWriter(w)
	table.Header("Step", "Artifact", "Action", "Address", "Pending Tx")
	for _, step := range steps {
		address, pending := "", ""
		if step.Record != nil {
			address = step.Record.Address
		}
		if step.Pending != nil {
			pending = step.Pending.TxHash
		}
		if err := table.Append([]string{step.StepID, step.Artifact, colorAction(step.Action), address, pending}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderVerification(w io.Writer, order []string, results map[string]verify.Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Step", "Address", "Status", "URL", "Message")
	for _, id := range order {
		res, ok := results[id]
		if !ok {
			continue
		}
		if err := table.Append([]string{id, res.Address, colorStatus(res.Status), res.URL, res.Message}); err != nil {
			return err
		}
	}
	return table.Render()
}

func stepState(report *executor.Report, id string, recorded bool) string {
	switch {
	case id == report.Failed:
		return color.RedString("failed")
	case !recorded:
		return color.YellowString("skipped")
	}
	if slices.Contains(report.Reused, id) {
		return "reused"
	}
	return color.GreenString("deployed")
}

func colorAction(action executor.Action) string {
	switch action {
	case executor.ActionReuse:
		return color.GreenString(string(action))
	case executor.ActionResume:
		return color.YellowString(string(action))
	default:
		return string(action)
	}
}

func colorStatus(status verify.Status) string {
	switch status {
	case verify.StatusVerified:
		return color.GreenString(string(status))
	case verify.StatusFailed:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}
