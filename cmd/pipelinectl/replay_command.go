package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"mailpilot/pkg/mq"
	"mailpilot/pkg/outbox"
)

func newReplayOutboxCommand(ctx *commandContext) *cobra.Command {
	var (
		eventID int64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "replay-outbox",
		Short: "Re-publish failed outbox events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				return ctx.withPublisher(func(pub *mq.Publisher) error {
					svc := outbox.NewReplayService(outbox.NewRepository(pool), pub, ctx.log())
					if eventID > 0 {
						if err := svc.ReplayEvent(cmd.Context(), eventID); err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "Replayed event %d\n", eventID)
						return nil
					}
					n, err := svc.ReplayFailedEvents(cmd.Context(), limit)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events\n", n)
					return nil
				})
			})
		},
	}
	cmd.Flags().Int64Var(&eventID, "id", 0, "Replay a single event")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of failed events to replay")
	return cmd
}
