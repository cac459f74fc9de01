package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/repository"
	"mailpilot/internal/seed"
	"mailpilot/pkg/db"
	"mailpilot/pkg/outbox"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var classify bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo user and emails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				if err := db.Migrate(cmd.Context(), pool, ctx.log()); err != nil {
					return err
				}
				res, err := seed.Run(cmd.Context(), repository.NewPostgresStore(pool))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User %s (%s)\n", res.User.Email, res.User.ID)
				for _, e := range res.Emails {
					fmt.Fprintf(out, "  %s  %s\n", e.ID, e.Subject)
				}

				if classify {
					enq := outbox.NewEnqueuer(outbox.NewRepository(pool))
					for _, e := range res.Emails {
						if err := enq.Enqueue(cmd.Context(), mqcontracts.KindClassifyMail, mqcontracts.ClassifyMailPayload{EmailID: e.ID}); err != nil {
							return err
						}
					}
					fmt.Fprintf(out, "Queued %d classify jobs\n", len(res.Emails))
				}
				fmt.Fprintf(out, "Seed complete (%d new emails)\n", res.Created)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&classify, "classify", false, "Queue a classify job for every seeded email")
	return cmd
}
