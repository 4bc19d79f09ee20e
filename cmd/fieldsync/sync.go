package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zulandar/fieldsync/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var (
		configPath string
		entity     string
		retry      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Long:  "Pulls server changes into the local database, then pushes queued local mutations, entity by entity. With --entity, syncs only that entity.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, configPath, entity, retry)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fieldsync.yaml", "path to config file")
	cmd.Flags().StringVar(&entity, "entity", "", "sync a single entity (work_orders, checklist_instances, checklist_answers, checklist_attachments)")
	cmd.Flags().BoolVar(&retry, "retry-failed", false, "requeue failed mutations before syncing")
	return cmd
}

func runSync(cmd *cobra.Command, configPath, entity string, retry bool) error {
	out := cmd.OutOrStdout()

	cfg, st, log, err := openApp(configPath)
	if err != nil {
		return err
	}
	if err := st.VerifySchema(); err != nil {
		return fmt.Errorf("database not ready (run `fieldsync db init`): %w", err)
	}

	eng := newEngine(cfg, st, log)

	if retry {
		entities := eng.Entities()
		if entity != "" {
			entities = []string{entity}
		}
		for _, name := range entities {
			n, err := eng.RetryFailed(name)
			if err != nil {
				return err
			}
			if n > 0 {
				fmt.Fprintf(out, "Requeued %d failed %s mutations\n", n, name)
			}
		}
	}

	var results []syncer.Result
	if entity != "" {
		results = append(results, eng.SyncEntity(cmd.Context(), entity))
	} else {
		results = eng.SyncAll(cmd.Context())
	}

	failed := false
	for _, r := range results {
		fmt.Fprintln(out, formatResult(r))
		if len(r.Errors) > 0 {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("sync finished with errors")
	}
	return nil
}

func formatResult(r syncer.Result) string {
	if r.Offline {
		return fmt.Sprintf("%-22s offline, nothing synced", r.Entity)
	}
	line := fmt.Sprintf("%-22s pulled %d, pushed %d", r.Entity, r.Pulled, r.Pushed)
	if r.Failed > 0 {
		line += fmt.Sprintf(", %d failed", r.Failed)
	}
	if len(r.Errors) > 0 {
		line += " (errors: " + strings.Join(r.Errors, "; ") + ")"
	}
	return line
}
