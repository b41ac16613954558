package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlesng35/labmgr/pkg/mail"
)

func newMailCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Outbound email utilities",
	}
	cmd.AddCommand(newMailTestCmd(opts))
	return cmd
}

func newMailTestCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test <recipient>",
		Short: "Send a test message through the configured provider",
		Long: `Send a test message synchronously through the configured email provider.

Unlike workflow notifications, delivery errors are reported to the caller.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(opts, func(env *environment) error {
				job, err := env.services.Templates.Test(args[0], time.Now())
				if err != nil {
					return err
				}

				mailer, err := env.cfg.Email.NewMailer()
				if err != nil {
					return err
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := mailer.Send(ctx, mail.Message{
					From:    job.From,
					To:      job.To,
					Subject: job.Subject,
					Text:    job.Text,
					HTML:    job.HTML,
				}); err != nil {
					return fmt.Errorf("send test message via %s: %w", env.cfg.Email.Provider, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "test message sent to %s\n", job.To[0])
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "delivery timeout")
	return cmd
}
