package main

import (
	"fmt"

	"github.com/spf13/cobra"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/mq"
)

// newSendCommand approves a draft: it queues the SendDraft job for it.
func newSendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send <draftId>",
		Short: "Approve a draft and queue it for sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPublisher(func(pub *mq.Publisher) error {
				if err := pub.Enqueue(cmd.Context(), mqcontracts.KindSendDraft, mqcontracts.SendDraftPayload{DraftID: args[0]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued draft %s for sending\n", args[0])
				return nil
			})
		},
	}
}
