package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage funding accounts",
	}

	cmd.AddCommand(
		newAccountCreateCmd(a),
		newAccountGetCmd(a),
	)

	return cmd
}

func newAccountCreateCmd(a *app) *cobra.Command {
	var (
		owner    string
		currency string
		opening  int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a funding account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			ownerID, err := parseIdentity(owner)
			if err != nil {
				return err
			}
			balance, err := parseMoney(opening, currency)
			if err != nil {
				return err
			}

			acct, err := eng.CreateAccount(cmd.Context(), ownerID, balance)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", acct.ID, acct.Balance)
			return err
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "account owner identity")
	cmd.Flags().StringVar(&currency, "currency", "", "account currency code")
	cmd.Flags().Int64Var(&opening, "opening", 0, "opening balance in minor units")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func newAccountGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Show a funding account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			addr, err := parseIdentity(args[0])
			if err != nil {
				return err
			}

			acct, err := eng.GetAccount(cmd.Context(), addr)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\towner=%s\tbalance=%s\n",
				acct.ID, acct.Owner.Short(), acct.Balance)
			return err
		},
	}
}
