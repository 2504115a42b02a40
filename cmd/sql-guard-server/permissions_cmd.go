package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/sql_guard/internal/config"
)

func newSyncCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the permission table with the live schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			logger := mustBuildLogger(cfg.LogLevel)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			a, err := newApp(cmd.Context(), cfg, "cli", logger)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.sync(cmd.Context())
			if err != nil {
				return err
			}
			errs := make([]string, 0, len(report.Errors))
			for _, e := range report.Errors {
				errs = append(errs, e.Error())
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"migrated": report.Migrated,
				"added":    report.Added,
				"removed":  report.Removed,
				"errors":   errs,
			})
		},
	}
}

func newPermissionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect or change per-table permissions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every table with its read and write flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			logger := mustBuildLogger(cfg.LogLevel)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			a, err := newApp(cmd.Context(), cfg, "cli", logger)
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.admin.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <table> <read|write> <true|false>",
		Short: "Set one permission flag on one table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid status %q: want true or false", args[2])
			}
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			logger := mustBuildLogger(cfg.LogLevel)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			a, err := newApp(cmd.Context(), cfg, "cli", logger)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.admin.Toggle(cmd.Context(), args[0], args[1], enabled)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	})
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
