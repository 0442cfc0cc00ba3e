package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/builtin"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

func newEnqueueCmd(configPath *string) *cobra.Command {
	var (
		id          string
		tenantID    string
		title       string
		description string
		repoRef     string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create a ticket and start its workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			if id == "" {
				id = uuid.New().String()
			}
			ticket := tickets.New(id, tenantID, title, repoRef)
			ticket.Description = description

			ctx := cmd.Context()
			if err := tix.Create(ctx, ticket); err != nil {
				return fmt.Errorf("create ticket: %w", err)
			}
			if err := q.Enqueue(ctx, queue.NewStart(tenantID, id, builtin.GraphRefinement)); err != nil {
				return fmt.Errorf("enqueue start: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "ticket ID (generated when empty)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant the ticket belongs to")
	cmd.Flags().StringVar(&title, "title", "", "ticket title")
	cmd.Flags().StringVar(&description, "description", "", "ticket description")
	cmd.Flags().StringVar(&repoRef, "repo", "", "repository as owner/name")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
