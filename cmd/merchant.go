package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/payment"
)

func newMerchantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchant",
		Short: "One-off merchant settlements",
	}

	cmd.AddCommand(
		newMerchantPayCmd(a),
		newMerchantReceiveCmd(a),
		newPaymentsCmd(a),
	)

	return cmd
}

func newMerchantPayCmd(a *app) *cobra.Command {
	var (
		caller       string
		fundingAcct  string
		merchant     string
		merchantAcct string
		amount       int64
		currency     string
	)

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Push a one-off payment to a merchant",
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
			merchantID, err := parseIdentity(merchant)
			if err != nil {
				return err
			}
			merchantAcctID, err := parseIdentity(merchantAcct)
			if err != nil {
				return err
			}
			sum, err := parseMoney(amount, currency)
			if err != nil {
				return err
			}

			event, err := eng.MerchantPayment(cmd.Context(), callerID, payagent.MerchantPaymentParams{
				FundingAccount:  fundingID,
				Merchant:        merchantID,
				MerchantAccount: merchantAcctID,
				Amount:          sum,
				PaymentID:       uuid.New(),
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tgross=%s fee=%s net=%s\n",
				event.Token, event.Gross, event.Fee, event.Net)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "funding account owner identity")
	cmd.Flags().StringVar(&fundingAcct, "funding-account", "", "funding account address")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant identity")
	cmd.Flags().StringVar(&merchantAcct, "merchant-account", "", "merchant settlement account address")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("funding-account")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("merchant-account")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func newMerchantReceiveCmd(a *app) *cobra.Command {
	var (
		caller       string
		fundingAcct  string
		merchantAcct string
		amount       int64
		currency     string
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Pull a payment against an allowance as the merchant",
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
			merchantAcctID, err := parseIdentity(merchantAcct)
			if err != nil {
				return err
			}
			sum, err := parseMoney(amount, currency)
			if err != nil {
				return err
			}

			event, err := eng.MerchantReceive(cmd.Context(), callerID, payagent.MerchantReceiveParams{
				FundingAccount:  fundingID,
				MerchantAccount: merchantAcctID,
				Amount:          sum,
				PaymentID:       uuid.New(),
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tgross=%s fee=%s net=%s\n",
				event.Token, event.Gross, event.Fee, event.Net)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "merchant identity (allowance delegate)")
	cmd.Flags().StringVar(&fundingAcct, "funding-account", "", "funding account address")
	cmd.Flags().StringVar(&merchantAcct, "merchant-account", "", "merchant settlement account address")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("funding-account")
	_ = cmd.MarkFlagRequired("merchant-account")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func newPaymentsCmd(a *app) *cobra.Command {
	var merchant string

	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List settled payments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.agent(cmd.Context())
			if err != nil {
				return err
			}

			var opts payment.ListOpts
			if merchant != "" {
				merchantID, err := parseIdentity(merchant)
				if err != nil {
					return err
				}
				opts.Merchant = merchantID
			}

			events, err := eng.ListPayments(cmd.Context(), opts)
			if err != nil {
				return err
			}

			for _, event := range events {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tgross=%s fee=%s net=%s\n",
					event.Token, event.Origin, event.Gross, event.Fee, event.Net)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&merchant, "merchant", "", "filter by merchant identity")

	return cmd
}
