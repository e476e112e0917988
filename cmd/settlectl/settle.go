package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cassiomorais/awards/internal/bootstrap"
	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <reference>",
		Short: "Ask the provider whether a payment went through and settle it",
		Long: `Verify checks a pending payment with its provider. A confirmed payment
gets its vote, a declined one is rejected and a payment still in flight is
left pending. Settled payments are reported as they are.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				outcome, err := app.Settlement.Verify(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("verify %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass",
		Long: `Reconcile polls providers for pending payments, rejects payments past their
confirmation horizon and repairs successful payments that are missing a vote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				report, err := app.Reconciler.RunOnce(cmd.Context())
				if err != nil {
					return fmt.Errorf("reconcile: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "scanned\t%d\n", report.Scanned)
				fmt.Fprintf(w, "confirmed\t%d\n", report.Confirmed)
				fmt.Fprintf(w, "rejected\t%d\n", report.Rejected)
				fmt.Fprintf(w, "expired\t%d\n", report.Expired)
				fmt.Fprintf(w, "repaired\t%d\n", report.Repaired)
				fmt.Fprintf(w, "skipped\t%d\n", report.Skipped)
				fmt.Fprintf(w, "errors\t%d\n", report.Errors)
				return w.Flush()
			})
		},
	}
}

func anomaliesCmd() *cobra.Command {
	var (
		limit  int
		offset int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "List recorded settlement anomalies, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				events, err := app.Ledger.Anomalies(cmd.Context(), limit, offset)
				if err != nil {
					return fmt.Errorf("list anomalies: %w", err)
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(events)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tPAYMENT\tKIND\tCURRENT\tATTEMPTED\tREASON")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\t%v\n",
						e.CreatedAt.Format(time.RFC3339), e.PaymentID,
						e.EventData["kind"], e.EventData["current_status"],
						e.EventData["attempted_status"], e.EventData["reason"])
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum anomalies to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "anomalies to skip")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}
