package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/awards/internal/bootstrap"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operate the awards settlement pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(verifyCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(anomaliesCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())

	return root
}

// withApp bootstraps the full application for commands that touch the ledger.
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, "settlectl", "awards_cli")
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
