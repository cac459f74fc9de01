package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configDir, env string
	ctx := newCommandContext(&configDir, &env)

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Operate the mail pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default $CONFIG_DIR or ./config)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Configuration environment (default $CONFIG_ENV or local)")

	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newSendCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))
	rootCmd.AddCommand(newReplayOutboxCommand(ctx))
	return rootCmd
}
