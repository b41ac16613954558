package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/services"
)

func newRegistrationsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "registrations",
		Aliases: []string{"reg"},
		Short:   "Review registration requests",
	}
	cmd.AddCommand(
		newRegistrationsListCmd(opts),
		newRegistrationsApproveCmd(opts),
		newRegistrationsRejectCmd(opts),
	)
	return cmd
}

func newRegistrationsListCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		query  string
		page   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registration requests (pending by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnvironment(opts, func(env *environment) error {
				requests, total, err := env.services.Registrations.List(cmd.Context(), services.RegistrationListOptions{
					Status:   models.RequestStatus(status),
					Query:    query,
					Page:     page,
					PageSize: limit,
				})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tEMAIL\tIDENTIFIER\tSTATUS\tSUBMITTED")
				for _, r := range requests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.FullName(), r.Email, r.IdentityNumber, r.Status,
						r.CreatedAt.In(env.cfg.Server.Location()).Format("2006-01-02 15:04"))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d request(s)\n", len(requests), total)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", string(models.StatusPending), "filter by status (pending, approved, rejected)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "match name, email or identifier")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "results per page")
	return cmd
}

func newRegistrationsApproveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending request and activate the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(opts, func(env *environment) error {
				ctx, actor, err := env.actorContext(cmd.Context(), opts)
				if err != nil {
					return err
				}
				account, err := env.services.Registrations.Approve(ctx, args[0], actor)
				if err != nil {
					return err
				}
				env.log.Info("registration approved", zap.String("request_id", args[0]), zap.String("account_id", account.ID))
				fmt.Fprintf(cmd.OutOrStdout(), "approved %s: account %s <%s> is active\n", args[0], account.ID, account.Email)
				return nil
			})
		},
	}
}

func newRegistrationsRejectCmd(opts *rootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(opts, func(env *environment) error {
				ctx, actor, err := env.actorContext(cmd.Context(), opts)
				if err != nil {
					return err
				}
				request, err := env.services.Registrations.Reject(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				env.log.Info("registration rejected", zap.String("request_id", request.ID))
				fmt.Fprintf(cmd.OutOrStdout(), "rejected %s (%s)\n", request.ID, request.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded with the decision")
	return cmd
}
