package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

func newResumeCmd(configPath *string) *cobra.Command {
	var (
		signal   string
		feedback string
	)

	cmd := &cobra.Command{
		Use:   "resume <ticket-id>",
		Short: "Deliver an approval or rejection signal to a suspended workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if signal != queue.SignalApproval && signal != queue.SignalRejection {
				return fmt.Errorf("signal must be %q or %q", queue.SignalApproval, queue.SignalRejection)
			}
			if signal == queue.SignalRejection && feedback == "" {
				return fmt.Errorf("rejection requires --feedback")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tix, err := tickets.NewSQLiteStoreFromDB(db)
			if err != nil {
				return fmt.Errorf("init ticket store: %w", err)
			}
			q, err := queue.NewSQLiteQueueFromDB(db)
			if err != nil {
				return fmt.Errorf("init queue: %w", err)
			}

			ctx := cmd.Context()
			ticketID := args[0]
			ticket, err := tix.Get(ctx, ticketID)
			if err != nil {
				return fmt.Errorf("load ticket: %w", err)
			}

			item := queue.NewResume(ticket.TenantID, ticketID, queue.Signal{
				Type:     signal,
				Feedback: feedback,
			})
			if err := q.Enqueue(ctx, item); err != nil {
				return fmt.Errorf("enqueue resume: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&signal, "signal", queue.SignalApproval, "signal type: approval or rejection")
	cmd.Flags().StringVar(&feedback, "feedback", "", "reviewer feedback (required for rejection)")
	return cmd
}
