// Command fintrackctl runs one-off maintenance passes against the ledger
// store: materializing recurring definitions, firing reminders, purging
// trash and applying migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	env := &environment{}
	root := &cobra.Command{
		Use:   "fintrackctl",
		Short: "Maintenance commands for the fintrack ledger",
		Long: `fintrackctl runs the background passes of the recurring worker on demand.

Configuration is read from the environment and an optional .env file, the
same way the server and the worker read it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return env.load()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return env.close()
		},
	}

	root.AddCommand(
		materializeCmd(env),
		materializeAllCmd(env),
		requestMaterializeCmd(env),
		scanRemindersCmd(env),
		purgeTrashCmd(env),
		migrateCmd(env),
	)
	return root
}
