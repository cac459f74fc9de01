package main

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/mq"
	"mailpilot/pkg/outbox"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var viaOutbox bool
	cmd := &cobra.Command{
		Use:   "enqueue <kind> <json>",
		Short: "Enqueue a pipeline job",
		Long: "Enqueue a job of the given kind. Kinds: classify_mail, generate_draft,\n" +
			"optimize_draft, send_draft, index_rag.",
		Example: `  pipelinectl enqueue classify_mail '{"emailId":"..."}'
  pipelinectl enqueue send_draft '{"draftId":"..."}' --outbox`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, payload, err := parseEnqueueArgs(args)
			if err != nil {
				return err
			}
			if viaOutbox {
				err = ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
					return outbox.NewEnqueuer(outbox.NewRepository(pool)).Enqueue(cmd.Context(), kind, payload)
				})
			} else {
				err = ctx.withPublisher(func(pub *mq.Publisher) error {
					return pub.Enqueue(cmd.Context(), kind, payload)
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s\n", kind)
			return nil
		},
	}
	cmd.Flags().BoolVar(&viaOutbox, "outbox", false, "Write the job to the outbox instead of publishing directly")
	return cmd
}

func parseEnqueueArgs(args []string) (mqcontracts.JobKind, json.RawMessage, error) {
	kind, err := mqcontracts.ParseKind(args[0])
	if err != nil {
		return "", nil, err
	}
	payload, err := mq.EncodePayload(json.RawMessage(args[1]))
	if err != nil {
		return "", nil, fmt.Errorf("invalid payload: %w", err)
	}
	return kind, payload, nil
}
