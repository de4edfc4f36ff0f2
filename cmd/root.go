// Package cmd implements the payagent command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	payagent "github.com/xraph/payagent"
	"github.com/xraph/payagent/netreg"
	"github.com/xraph/payagent/store/connect"
	"github.com/xraph/payagent/swap"
)

func Execute() error {
	return newRootCmd().Execute()
}

// app carries the lazily opened agent shared by all subcommands.
type app struct {
	storeDSN     string
	registryPath string

	engine *payagent.Agent
}

// agent opens the store and constructs the engine on first use.
func (a *app) agent(ctx context.Context) (*payagent.Agent, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	st, err := connect.Open(ctx, a.storeDSN)
	if err != nil {
		return nil, err
	}

	opts := []payagent.Option{}
	if a.registryPath != "" {
		reg, err := netreg.Load(a.registryPath)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		opts = append(opts,
			payagent.WithNamespace(reg.Namespace),
			payagent.WithFeeSchedule(reg.Fees),
		)
		if !reg.FeeAccount.IsNil() {
			opts = append(opts, payagent.WithFeeAccount(reg.FeeAccount))
		}
		if reg.Swap != nil {
			opts = append(opts, payagent.WithSwapAdapter(&swap.FixedRate{
				RateNum: reg.Swap.RateNum,
				RateDen: reg.Swap.RateDen,
			}))
		}
	}

	eng := payagent.New(st, opts...)
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}

	a.engine = eng
	return eng, nil
}

func (a *app) close() error {
	if a.engine == nil {
		return nil
	}
	return a.engine.Stop()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "payagent",
		Short:         "payagent: delegated spending and recurring billing from the terminal",
		Long:          "payagent manages spending allowances, recurring subscriptions, and merchant settlements against a configurable store backend.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.storeDSN, "store", "memory://",
		"store DSN (memory://, sqlite://path, postgres://..., mongodb://...)")
	rootCmd.PersistentFlags().StringVar(&a.registryPath, "registry", "",
		"path to a TOML network registry file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(a),
		newAllowanceCmd(a),
		newSubscriptionCmd(a),
		newMerchantCmd(a),
	)

	return rootCmd
}
