package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func newDaemonCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync loop in the foreground",
		Long:  "Runs a sync cycle on the configured cron schedule until interrupted. Offline cycles are skipped and retried on the next tick.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fieldsync.yaml", "path to config file")
	return cmd
}

func runDaemon(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, st, log, err := openApp(configPath)
	if err != nil {
		return err
	}
	if err := st.VerifySchema(); err != nil {
		return fmt.Errorf("database not ready (run `fieldsync db init`): %w", err)
	}

	sched, err := cronParser.Parse(cfg.SyncSchedule)
	if err != nil {
		return fmt.Errorf("parse sync_schedule %q: %w", cfg.SyncSchedule, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := newEngine(cfg, st, log)
	fmt.Fprintf(out, "Sync daemon running on schedule %q\n", cfg.SyncSchedule)

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			fmt.Fprintln(out, "Shutting down.")
			return nil
		case <-timer.C:
		}

		for _, r := range eng.SyncAll(ctx) {
			if r.Offline {
				log.Info("cycle skipped, offline", zap.String("entity", r.Entity))
				break
			}
			fmt.Fprintln(out, formatResult(r))
		}
		if err := checkCanceled(ctx); err != nil {
			fmt.Fprintln(out, "Shutting down.")
			return nil
		}
	}
}

func checkCanceled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
