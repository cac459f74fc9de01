package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mailpilot/internal/planner"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan <emailId>",
		Short: "Show the pipeline plan of an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRedis(cmd.Context(), func(rdb *goredis.Client) error {
				tracker := planner.NewTracker(planner.NewRedisPersister(rdb, planTTL), ctx.log())
				plan, err := tracker.GetOrCreatePlan(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderPlan(cmd.OutOrStdout(), plan, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func renderPlan(w io.Writer, plan *planner.Plan, asJSON bool) error {
	steps := plan.Snapshot()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			EmailID string         `json:"emailId"`
			Steps   []planner.Step `json:"steps"`
		}{plan.EmailID, steps})
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "STEP\tNAME\tSTATUS\n")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, s.Status)
	}
	return tw.Flush()
}
