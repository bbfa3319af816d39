package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/config"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func materializeCmd(env *environment) *cobra.Command {
	var userID, at string
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize due recurring definitions for one user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at, env.now())
			if err != nil {
				return err
			}
			m, err := env.materializer(cmd)
			if err != nil {
				return err
			}
			res, err := m.Materialize(cmd.Context(), userID, now)
			if err != nil {
				return fmt.Errorf("materialize %s: %w", userID, err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this date (YYYY-MM-DD or RFC3339)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func materializeAllCmd(env *environment) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "materialize-all",
		Short: "Materialize due recurring definitions for every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at, env.now())
			if err != nil {
				return err
			}
			m, err := env.materializer(cmd)
			if err != nil {
				return err
			}
			res, err := m.MaterializeAll(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this date (YYYY-MM-DD or RFC3339)")
	return cmd
}

func requestMaterializeCmd(env *environment) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "request-materialize",
		Short: "Queue a materialize request for the recurring worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := env.amqpClient()
			if err != nil {
				return err
			}
			if err := client.RequestMaterialize(cmd.Context(), userID, env.now()); err != nil {
				return fmt.Errorf("%w: %v", services.ErrQueueUnavailable, err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": "queued", "user_id": userID})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func scanRemindersCmd(env *environment) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "scan-reminders",
		Short: "Fire today's transaction reminders for every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at, env.now())
			if err != nil {
				return err
			}
			store, err := env.store()
			if err != nil {
				return err
			}
			scanner := services.NewReminderScanner(store, nil)
			if client, err := env.amqpClient(); err == nil {
				scanner = services.NewReminderScanner(store, client)
			}
			fired, err := scanner.ScanAll(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"fired": fired})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this date (YYYY-MM-DD or RFC3339)")
	return cmd
}

func purgeTrashCmd(env *environment) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "purge-trash",
		Short: "Delete trash items older than the retention horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at, env.now())
			if err != nil {
				return err
			}
			store, err := env.store()
			if err != nil {
				return err
			}
			purged, err := services.NewTrashRetention(store, env.cfg.TrashRetention).Purge(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"purged": purged})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this date (YYYY-MM-DD or RFC3339)")
	return cmd
}

func migrateCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.cfg.DataBackend != config.BackendSQLite {
				return errors.New("migrate requires DATA_BACKEND=sqlite")
			}
			if err := storage.RunMigrations(env.cfg.SQLiteDBPath); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(env.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty})
		},
	}
}
