// reportsync keeps a local cache of a remote reports collection up to date
// by paging through the reports API incrementally, and publishes the live
// (non-deleted) reports.
//
// Usage:
//
//	reportsync init      [--config <path>]
//	reportsync sync-once [--config <path>] [--verbose] [--print]
//	reportsync daemon    [--config <path>] [--verbose]
//	reportsync status    [--config <path>]
//	reportsync version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/reportsync/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags shared by the subcommands.
type flags struct {
	configPath string
	verbose    bool
	print      bool
}

func newRootCmd() *cobra.Command {
	var f flags
	defaultCfg, _ := config.DefaultPath()

	root := &cobra.Command{
		Use:   "reportsync",
		Short: "Incrementally sync a remote reports collection into a local cache",
		Long: `reportsync pages through a reports API from the newest cached
update, merges the changes into a local cache (SQLite or Redis) and
publishes every report that has not been deleted.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", defaultCfg, "path to config.yaml")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	syncOnce := &cobra.Command{
		Use:   "sync-once",
		Short: "Run a single sync pass then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return startSync(cmd.Context(), f, false)
		},
	}
	syncOnce.Flags().BoolVar(&f.print, "print", false, "write the published reports to stdout as JSON")

	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Sync continuously, one pass per poll interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return startSync(cmd.Context(), f, true)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and cache state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), f.configPath)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), f.configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "reportsync", version)
		},
	}

	root.AddCommand(initCmd, syncOnce, daemon, status, versionCmd)
	return root
}
