package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is overridable at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires the subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:     "agentgate",
		Version: version,
		Short:   "Health-gated gateway for a supervised agent process",
		Long: `Agentgate runs an agent process behind a reverse proxy that only
forwards traffic once the agent has logged its readiness marker.
The gateway exposes a health endpoint from the moment it binds,
so platform probes succeed while the agent is still starting.

Examples:
  agentgate serve --config=agentgate.toml
  agentgate serve agentgate.toml
  agentgate status --api-url=http://localhost:8080`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the gateway and the supervised agent",
		Long: `Start the gateway server, run the agent's init command, spawn the
agent child process and begin forwarding traffic once the readiness
marker appears in the agent's output.

Examples:
  agentgate serve --config=agentgate.toml
  agentgate serve agentgate.toml
  agentgate serve agentgate.toml --daemonize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	statusFlags := &StatusFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running gateway for the agent phase",
		Long: `Query the status endpoint of a running gateway and print the agent
phase as JSON.

Examples:
  agentgate status
  agentgate status --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCommand(globalFlags, statusFlags)
		},
	}

	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "gateway base URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	return cmd
}

func runStatusCommand(globalFlags *GlobalFlags, flags *StatusFlags) error {
	statusPath := ""
	if globalFlags.ConfigPath != "" {
		cfg, err := loadConfig(globalFlags.ConfigPath)
		if err != nil {
			return err
		}
		statusPath = cfg.Routes.StatusPath
	}

	client := NewAPIClient(flags.APIUrl, statusPath, flags.APITimeout)
	if !client.IsReachable() {
		return fmt.Errorf("gateway is not reachable at %s", client.baseURL)
	}
	result, err := client.GetStatus()
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}
