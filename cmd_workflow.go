package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	automateInterval time.Duration
	remindInterval   time.Duration
)

var automateCmd = &cobra.Command{
	Use:   "automate",
	Short: "Apply workflow rules to every open invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return repeat(cmd, automateInterval, func() error {
			summary, err := env.Automation.RunPass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		})
	},
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send due-date reminders and escalate overdue invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return repeat(cmd, remindInterval, func() error {
			summary, err := env.Reminders.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		})
	},
}

// repeat runs pass once, or every interval until the command is cancelled.
// A failing pass stops a one-shot run but is only logged when repeating.
func repeat(cmd *cobra.Command, interval time.Duration, pass func() error) error {
	if interval <= 0 {
		return pass()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := pass(); err != nil {
			zap.L().Error("scheduled pass failed", zap.String("command", cmd.Name()), zap.Error(err))
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func init() {
	automateCmd.Flags().DurationVar(&automateInterval, "every", 0, "repeat the pass at this interval (0 runs once)")
	remindCmd.Flags().DurationVar(&remindInterval, "every", 0, "repeat the pass at this interval (0 runs once)")
	rootCmd.AddCommand(automateCmd)
	rootCmd.AddCommand(remindCmd)
}
