package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/allowance"
)

func newAllowanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Manage delegated spending allowances",
	}

	cmd.AddCommand(
		newAllowanceCreateCmd(a),
		newAllowanceUpdateCmd(a),
		newAllowanceTransferCmd(a),
		newAllowanceCloseCmd(a),
		newAllowanceGetCmd(a),
		newAllowanceListCmd(a),
	)

	return cmd
}

func newAllowanceCreateCmd(a *app) *cobra.Command {
	var (
		caller       string
		fundingAcct  string
		delegate     string
		amount       int64
		currency     string
		linkCurrency bool
		validFrom    string
		validUntil   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Grant a delegate a capped spending budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			callerID, err := parseIdentity(caller)
			if err != nil {
				return err
			}
			fundingID, err := parseIdentity(fundingAcct)
			if err != nil {
				return err
			}
			delegateID, err := parseIdentity(delegate)
			if err != nil {
				return err
			}
			budget, err := parseMoney(amount, currency)
			if err != nil {
				return err
			}
			from, err := parseTimeFlag(validFrom)
			if err != nil {
				return err
			}
			until, err := parseTimeFlag(validUntil)
			if err != nil {
				return err
			}

			grant, err := eng.CreateAllowance(cmd.Context(), callerID, payagent.CreateAllowanceParams{
				FundingAccount: fundingID,
				Delegate:       delegateID,
				Amount:         budget,
				LinkCurrency:   linkCurrency,
				ValidFrom:      from,
				ValidUntil:     until,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tremaining=%s\n", grant.Address, grant.Remaining)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "funding account owner identity")
	cmd.Flags().StringVar(&fundingAcct, "funding-account", "", "funding account address")
	cmd.Flags().StringVar(&delegate, "delegate", "", "delegate identity")
	cmd.Flags().Int64Var(&amount, "amount", 0, "budget in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "budget currency code")
	cmd.Flags().BoolVar(&linkCurrency, "link-currency", false, "restrict spending to the budget currency")
	cmd.Flags().StringVar(&validFrom, "from", "", "validity window start (RFC3339)")
	cmd.Flags().StringVar(&validUntil, "until", "", "validity window end (RFC3339)")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("funding-account")
	_ = cmd.MarkFlagRequired("delegate")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func newAllowanceUpdateCmd(a *app) *cobra.Command {
	var (
		caller     string
		amount     int64
		currency   string
		validFrom  string
		validUntil string
	)

	cmd := &cobra.Command{
		Use:   "update <address>",
		Short: "Replace the budget or validity window of a grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			callerID, err := parseIdentity(caller)
			if err != nil {
				return err
			}
			addr, err := parseIdentity(args[0])
			if err != nil {
				return err
			}

			var p payagent.UpdateAllowanceParams
			if cmd.Flags().Changed("amount") {
				budget, err := parseMoney(amount, currency)
				if err != nil {
					return err
				}
				p.Amount = &budget
			}
			if cmd.Flags().Changed("from") {
				from, err := parseTimeFlag(validFrom)
				if err != nil {
					return err
				}
				p.ValidFrom = &from
			}
			if cmd.Flags().Changed("until") {
				until, err := parseTimeFlag(validUntil)
				if err != nil {
					return err
				}
				p.ValidUntil = &until
			}

			grant, err := eng.UpdateAllowance(cmd.Context(), callerID, addr, p)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tremaining=%s\n", grant.Address, grant.Remaining)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "grant owner identity")
	cmd.Flags().Int64Var(&amount, "amount", 0, "new budget in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "budget currency code")
	cmd.Flags().StringVar(&validFrom, "from", "", "new validity window start (RFC3339)")
	cmd.Flags().StringVar(&validUntil, "until", "", "new validity window end (RFC3339)")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func newAllowanceTransferCmd(a *app) *cobra.Command {
	var (
		caller   string
		to       string
		amount   int64
		currency string
	)

	cmd := &cobra.Command{
		Use:   "transfer <address>",
		Short: "Spend from a grant as the delegate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			callerID, err := parseIdentity(caller)
			if err != nil {
				return err
			}
			addr, err := parseIdentity(args[0])
			if err != nil {
				return err
			}
			toID, err := parseIdentity(to)
			if err != nil {
				return err
			}
			sum, err := parseMoney(amount, currency)
			if err != nil {
				return err
			}

			if err := eng.DelegatedTransfer(cmd.Context(), callerID, addr, toID, sum); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "transferred %s\n", sum)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "delegate identity")
	cmd.Flags().StringVar(&to, "to", "", "destination account address")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func newAllowanceCloseCmd(a *app) *cobra.Command {
	var caller string

	cmd := &cobra.Command{
		Use:   "close <address>",
		Short: "Close a grant permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			callerID, err := parseIdentity(caller)
			if err != nil {
				return err
			}
			addr, err := parseIdentity(args[0])
			if err != nil {
				return err
			}

			if err := eng.CloseAllowance(cmd.Context(), callerID, addr); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "closed")
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "grant owner identity")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func newAllowanceGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Show a grant",
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

			grant, err := eng.GetAllowance(cmd.Context(), addr)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tdelegate=%s\tremaining=%s\tstatus=%s\n",
				grant.Address, grant.Delegate.Short(), grant.Remaining, grant.Status)
			return err
		},
	}
}

func newAllowanceListCmd(a *app) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List grants by owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			ownerID, err := parseIdentity(owner)
			if err != nil {
				return err
			}

			grants, err := eng.ListAllowances(cmd.Context(), ownerID, allowance.ListOpts{})
			if err != nil {
				return err
			}

			for _, grant := range grants {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tdelegate=%s\tremaining=%s\tstatus=%s\n",
					grant.Address, grant.Delegate.Short(), grant.Remaining, grant.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "grant owner identity")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
