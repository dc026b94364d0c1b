package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once by the root command before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fleetdrain",
	Short: "fleetdrain - drain GameLift FleetIQ nodes without dropping game sessions",
	Long: `fleetdrain takes Kubernetes nodes backed by GameLift FleetIQ game server
groups out of service once FleetIQ marks them for replacement.

Nodes are cordoned, allocated Agones game servers are protected until their
sessions end, and the instance is deregistered from FleetIQ before it is
terminated. Every step is recorded in a ledger so status events can be
replayed safely.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")
		if err := config.LoadEnvFile(envFiles...); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-json") {
			loaded.Log.JSON, _ = cmd.Flags().GetBool("log-json")
		}
		log.Init(log.Config{
			Level:      log.ParseLevel(loaded.Log.Level),
			JSONOutput: loaded.Log.JSON,
			Output:     os.Stderr,
		})

		if loaded.Ledger.Backend == config.LedgerMemory {
			log.Warn("Using the in-memory ledger, drain progress is lost on restart")
		}

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetdrain version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Dotenv files to load before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(ledgerCmd)
}
