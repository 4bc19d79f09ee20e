package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/fieldsync/internal/devserver"
	"github.com/zulandar/fieldsync/internal/models"
)

func newDevServerCmd() *cobra.Command {
	var (
		port int
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a fake backend for local development",
		Long:  "Serves the sync protocol from memory so the client can be exercised without a real backend. With --seed, starts with a few work orders.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevServer(cmd, port, seed)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8090, "port to listen on")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed sample work orders")
	return cmd
}

func runDevServer(cmd *cobra.Command, port int, seed bool) error {
	srv := devserver.New()

	if seed {
		now := time.Now().UTC()
		for i, title := range []string{"Install fiber modem", "Replace faulty router", "Annual site inspection"} {
			id := fmt.Sprintf("wo-seed-%d", i+1)
			srv.Seed("work_orders", id, now.Add(time.Duration(i)*time.Minute).Format(time.RFC3339Nano), map[string]interface{}{
				"title":         title,
				"status":        models.WorkOrderScheduled,
				"scheduledDate": now.AddDate(0, 0, i+1).Format(time.RFC3339),
				"windowStart":   "09:00",
				"windowEnd":     "12:00",
				"technicianId":  "tech-1",
			})
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx, port, cmd.OutOrStdout())
}
