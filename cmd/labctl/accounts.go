package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlesng35/labmgr/internal/services"
)

const superuserPasswordEnv = "LABMGR_SUPERUSER_PASSWORD"

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newCreateSuperuserCmd(opts))
	return cmd
}

func newCreateSuperuserCmd(opts *rootOptions) *cobra.Command {
	var input services.CreateAccountInput

	cmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Provision an active superuser account",
		Long: `Provision an active superuser account directly, bypassing the registration workflow.

The password is read from --password or, when omitted, from $` + superuserPasswordEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(input.Password) == "" {
				input.Password = os.Getenv(superuserPasswordEnv)
			}
			if input.Password == "" {
				return errors.New("a password is required (--password or $" + superuserPasswordEnv + ")")
			}
			input.Staff = true
			input.Superuser = true

			return withEnvironment(opts, func(env *environment) error {
				ctx, _, err := env.actorContext(cmd.Context(), opts)
				if err != nil {
					return err
				}
				account, err := env.services.Accounts.Create(ctx, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created superuser %s <%s>\n", account.ID, account.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input.ID, "identifier", "", "numeric account identifier")
	cmd.Flags().StringVar(&input.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&input.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
