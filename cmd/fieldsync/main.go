package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/store"
	"github.com/zulandar/fieldsync/internal/syncer"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var verbose bool

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Fieldsync — offline-first field service sync",
		Long:  "Fieldsync keeps a technician's work orders, checklists and attachments in a local database and reconciles them with the backend whenever the network allows.",
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "human-readable debug logging")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newDevServerCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fieldsync %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// openApp loads config and opens the local database without migrating it.
func openApp(configPath string) (*config.Config, *store.Store, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, st, log, nil
}

// newLogger picks the console development logger under --verbose, JSON
// production logging otherwise.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newEngine(cfg *config.Config, st *store.Store, log *zap.Logger) *syncer.Engine {
	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken, log)
	probe := api.NewHTTPProbe(cfg.APIBaseURL)
	return syncer.New(st, client, probe, cfg, log)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
