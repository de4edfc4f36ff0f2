package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/subscription"
)

func newSubscriptionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscription",
		Aliases: []string{"sub"},
		Short:   "Manage recurring billing contracts",
	}

	cmd.AddCommand(
		newSubscribeCmd(a),
		newProcessCmd(a),
		newSubscriptionUpdateCmd(a),
		newSubscriptionCloseCmd(a),
		newSubscriptionGetCmd(a),
		newSubscriptionListCmd(a),
	)

	return cmd
}

func newSubscribeCmd(a *app) *cobra.Command {
	var (
		caller        string
		merchant      string
		merchantAcct  string
		manager       string
		fundingAcct   string
		period        string
		budget        int64
		currency      string
		totalBudget   int64
		nextRebill    string
		rebillMax     uint32
		maxDelay      time.Duration
		validUntil    string
		initialAmount int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring billing contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			callerID, err := parseIdentity(caller)
			if err != nil {
				return err
			}
			merchantID, err := parseIdentity(merchant)
			if err != nil {
				return err
			}
			merchantAcctID, err := parseIdentity(merchantAcct)
			if err != nil {
				return err
			}
			fundingID, err := parseIdentity(fundingAcct)
			if err != nil {
				return err
			}

			managerID := callerID
			if manager != "" {
				managerID, err = parseIdentity(manager)
				if err != nil {
					return err
				}
			}

			per, err := subscription.ParsePeriod(period)
			if err != nil {
				return err
			}
			periodBudget, err := parseMoney(budget, currency)
			if err != nil {
				return err
			}
			anchor, err := parseTimeFlag(nextRebill)
			if err != nil {
				return err
			}
			until, err := parseTimeFlag(validUntil)
			if err != nil {
				return err
			}

			p := payagent.SubscribeParams{
				Merchant:        merchantID,
				MerchantAccount: merchantAcctID,
				Manager:         managerID,
				FundingAccount:  fundingID,
				Period:          per,
				PeriodBudget:    periodBudget,
				NextRebill:      anchor,
				RebillMax:       rebillMax,
				MaxDelay:        maxDelay,
				ValidUntil:      until,
			}
			if totalBudget > 0 {
				p.UseTotalBudget = true
				p.TotalBudget, _ = parseMoney(totalBudget, currency)
			}
			if initialAmount > 0 {
				p.InitialAmount, _ = parseMoney(initialAmount, currency)
				p.InitialPaymentID = uuid.New()
			}

			sub, first, err := eng.Subscribe(cmd.Context(), callerID, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s\tnext_rebill=%s\n", sub.Address, sub.NextRebill.Format(time.RFC3339))
			if first != nil {
				_, _ = fmt.Fprintf(out, "initial payment %s\tgross=%s net=%s\n", first.Token, first.Gross, first.Net)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "funding account owner identity")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant identity")
	cmd.Flags().StringVar(&merchantAcct, "merchant-account", "", "merchant settlement account address")
	cmd.Flags().StringVar(&manager, "manager", "", "schedule manager identity (default: caller)")
	cmd.Flags().StringVar(&fundingAcct, "funding-account", "", "funding account address")
	cmd.Flags().StringVar(&period, "period", "monthly", "billing period (daily/weekly/monthly/quarterly/yearly)")
	cmd.Flags().Int64Var(&budget, "budget", 0, "per-period budget in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "budget currency code")
	cmd.Flags().Int64Var(&totalBudget, "total-budget", 0, "lifetime spending cap in minor units (0 = none)")
	cmd.Flags().StringVar(&nextRebill, "next-rebill", "", "first scheduled charge time (RFC3339)")
	cmd.Flags().Uint32Var(&rebillMax, "rebill-max", 0, "maximum number of scheduled charges (0 = unlimited)")
	cmd.Flags().DurationVar(&maxDelay, "max-delay", 0, "grace window after the scheduled time (0 = unbounded)")
	cmd.Flags().StringVar(&validUntil, "until", "", "contract expiry (RFC3339)")
	cmd.Flags().Int64Var(&initialAmount, "initial", 0, "immediate first charge in minor units")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("merchant-account")
	_ = cmd.MarkFlagRequired("funding-account")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func newProcessCmd(a *app) *cobra.Command {
	var (
		caller   string
		amount   int64
		currency string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "process <address>",
		Short: "Settle one scheduled charge",
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

			p := payagent.ProcessParams{PaymentID: uuid.New()}
			if token != "" {
				p.PaymentID, err = uuid.Parse(token)
				if err != nil {
					return fmt.Errorf("parse payment id: %w", err)
				}
			}
			if amount > 0 {
				p.Amount, err = parseMoney(amount, currency)
				if err != nil {
					return err
				}
			}

			event, err := eng.Process(cmd.Context(), callerID, addr, p)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tgross=%s fee=%s net=%s\n",
				event.Token, event.Gross, event.Fee, event.Net)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "owner, manager or merchant identity")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units (0 = full period budget)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code (required with --amount)")
	cmd.Flags().StringVar(&token, "payment-id", "", "idempotency token (default: random)")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func newSubscriptionUpdateCmd(a *app) *cobra.Command {
	var (
		caller      string
		period      string
		budget      int64
		currency    string
		useTotal    bool
		totalBudget int64
		nextRebill  string
		rebillMax   uint32
		maxDelay    time.Duration
		validFrom   string
		validUntil  string
		manager     string
	)

	cmd := &cobra.Command{
		Use:   "update <address>",
		Short: "Change the terms of a live contract",
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

			var p payagent.UpdateSubscriptionParams
			if cmd.Flags().Changed("period") {
				per, err := subscription.ParsePeriod(period)
				if err != nil {
					return err
				}
				p.Period = &per
			}
			if cmd.Flags().Changed("budget") {
				b, err := parseMoney(budget, currency)
				if err != nil {
					return err
				}
				p.PeriodBudget = &b
			}
			if cmd.Flags().Changed("use-total") {
				p.UseTotalBudget = &useTotal
			}
			if cmd.Flags().Changed("total-budget") {
				tb, err := parseMoney(totalBudget, currency)
				if err != nil {
					return err
				}
				p.TotalBudget = &tb
			}
			if cmd.Flags().Changed("next-rebill") {
				anchor, err := parseTimeFlag(nextRebill)
				if err != nil {
					return err
				}
				p.NextRebill = &anchor
			}
			if cmd.Flags().Changed("rebill-max") {
				p.RebillMax = &rebillMax
			}
			if cmd.Flags().Changed("max-delay") {
				p.MaxDelay = &maxDelay
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
			if cmd.Flags().Changed("manager") {
				m, err := parseIdentity(manager)
				if err != nil {
					return err
				}
				p.Manager = &m
			}

			sub, err := eng.UpdateSubscription(cmd.Context(), callerID, addr, p)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tbudget=%s next_rebill=%s\n",
				sub.Address, sub.PeriodBudget, sub.NextRebill.Format(time.RFC3339))
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "contract owner identity")
	cmd.Flags().StringVar(&period, "period", "", "new billing period (daily/weekly/monthly/quarterly/yearly)")
	cmd.Flags().Int64Var(&budget, "budget", 0, "new per-period budget in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "budget currency code")
	cmd.Flags().BoolVar(&useTotal, "use-total", false, "enforce the lifetime spending cap")
	cmd.Flags().Int64Var(&totalBudget, "total-budget", 0, "new lifetime spending cap in minor units")
	cmd.Flags().StringVar(&nextRebill, "next-rebill", "", "new schedule anchor (RFC3339)")
	cmd.Flags().Uint32Var(&rebillMax, "rebill-max", 0, "new maximum number of scheduled charges")
	cmd.Flags().DurationVar(&maxDelay, "max-delay", 0, "new grace window")
	cmd.Flags().StringVar(&validFrom, "from", "", "new contract start (RFC3339)")
	cmd.Flags().StringVar(&validUntil, "until", "", "new contract expiry (RFC3339)")
	cmd.Flags().StringVar(&manager, "manager", "", "new schedule manager identity")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func newSubscriptionCloseCmd(a *app) *cobra.Command {
	var caller string

	cmd := &cobra.Command{
		Use:   "close <address>",
		Short: "Close a contract permanently",
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

			if err := eng.CloseSubscription(cmd.Context(), callerID, addr); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "closed")
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "contract owner identity")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func newSubscriptionGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Show a contract",
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

			sub, err := eng.GetSubscription(cmd.Context(), addr)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"%s\tmerchant=%s budget=%s/%s rebills=%d next=%s active=%t\n",
				sub.Address, sub.Merchant.Short(), sub.PeriodBudget, sub.Period,
				sub.RebillCount, sub.NextRebill.Format(time.RFC3339), sub.Active)
			return err
		},
	}
}

func newSubscriptionListCmd(a *app) *cobra.Command {
	var (
		owner      string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts by owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			ownerID, err := parseIdentity(owner)
			if err != nil {
				return err
			}

			subs, err := eng.ListSubscriptions(cmd.Context(), ownerID, subscription.ListOpts{
				ActiveOnly: activeOnly,
			})
			if err != nil {
				return err
			}

			for _, sub := range subs {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(),
					"%s\tmerchant=%s budget=%s/%s next=%s active=%t\n",
					sub.Address, sub.Merchant.Short(), sub.PeriodBudget, sub.Period,
					sub.NextRebill.Format(time.RFC3339), sub.Active)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "contract owner identity")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show active contracts")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
