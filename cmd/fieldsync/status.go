package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-entity sync state",
		Long:  "Displays each entity's last sync time, cursor, and the depth of the pending and failed queues.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fieldsync.yaml", "path to config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, st, log, err := openApp(configPath)
	if err != nil {
		return err
	}
	if err := st.VerifySchema(); err != nil {
		return fmt.Errorf("database not ready (run `fieldsync db init`): %w", err)
	}

	eng := newEngine(cfg, st, log)
	statuses, err := eng.Status()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%-22s %-9s %-8s %-7s %-20s %s\n", "ENTITY", "STATE", "PENDING", "FAILED", "LAST SYNC", "CURSOR")
	for _, s := range statuses {
		lastSync := "never"
		if s.LastSyncAt != nil {
			lastSync = s.LastSyncAt.Format("2006-01-02 15:04:05")
		}
		cursor := s.Cursor
		if cursor == "" {
			cursor = "-"
		}
		fmt.Fprintf(out, "%-22s %-9s %-8d %-7d %-20s %s\n",
			s.Entity, s.State, s.Pending, s.Failed, lastSync, cursor)
		if s.LastError != "" {
			fmt.Fprintf(out, "  last error: %s\n", s.LastError)
		}
	}

	var unpushed int64
	for _, s := range statuses {
		unpushed += s.Pending + s.Failed
	}
	if unpushed > 0 {
		fmt.Fprintf(out, "\n%d local changes waiting to reach the server.\n", unpushed)
	}
	return nil
}
