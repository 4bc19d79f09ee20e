package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Local database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBVerifyCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the local database",
		Long:  "Creates the SQLite database file, runs pending migrations, and seeds the sync bookkeeping rows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fieldsync.yaml", "path to config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, st, _, err := openApp(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Opened %s\n", cfg.DatabasePath)

	if err := st.Migrate(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrations applied")

	if err := st.VerifySchema(); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nLocal database initialized successfully.")
	return nil
}

func newDBVerifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the local database schema",
		Long:  "Verifies every required table exists and the schema version is current. A failing check is the signal to run db reset.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBVerify(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fieldsync.yaml", "path to config file")
	return cmd
}

func runDBVerify(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, st, _, err := openApp(configPath)
	if err != nil {
		return err
	}

	if err := st.VerifySchema(); err != nil {
		return fmt.Errorf("schema check failed for %s: %w", cfg.DatabasePath, err)
	}
	current, err := st.SchemaCurrent()
	if err != nil {
		return err
	}
	if !current {
		return fmt.Errorf("schema for %s is behind; run `fieldsync db init`", cfg.DatabasePath)
	}

	fmt.Fprintf(out, "Database %s is healthy.\n", cfg.DatabasePath)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and rebuild the local database",
		Long: `Drops every table and rebuilds the schema from scratch.

This is the recovery path for a corrupted database. Unpushed local
mutations are lost; the next sync repopulates the store from the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fieldsync.yaml", "path to config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, st, _, err := openApp(configPath)
	if err != nil {
		return err
	}

	if !skipConfirm {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to reset without a terminal; pass --yes to confirm")
		}
		if !confirmReset(cmd, cfg.DatabasePath) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := st.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s rebuilt.\n", cfg.DatabasePath)
	return nil
}

func confirmReset(cmd *cobra.Command, path string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all local data in %q,\n", path)
	fmt.Fprintln(out, "including any mutations not yet pushed to the server.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
