package main

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"sak/internal/anchor"
	"sak/pkg/errors"
)

func newQuoteCmd(c *cli) *cobra.Command {
	var amount, rate, commission string
	cmd := &cobra.Command{
		Use:   "quote --amount ARS",
		Short: "Price an ARS amount in USDC",
		Long: `Prints the commission, net amount and USDC received for an ARS deposit.
Rate and commission default to ANCHOR_EXCHANGE_RATE and ANCHOR_COMMISSION_RATE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return errors.New("amount must be a number")
			}
			if amt.IsNegative() {
				return errors.ErrNegativeAmount
			}
			if amt.IsZero() {
				return errors.ErrAmountRequired
			}

			p := anchor.Pricing{Rate: c.cfg.Anchor.ExchangeRate, Commission: c.cfg.Anchor.CommissionRate}
			if rate != "" {
				if p.Rate, err = decimal.NewFromString(rate); err != nil || !p.Rate.IsPositive() {
					return errors.New("rate must be a positive number")
				}
			}
			if commission != "" {
				if p.Commission, err = decimal.NewFromString(commission); err != nil || p.Commission.IsNegative() {
					return errors.New("commission must be a non-negative number")
				}
			}
			return printJSON(cmd.OutOrStdout(), p.Quote(amt).View())
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "ARS amount to convert")
	cmd.Flags().StringVar(&rate, "rate", "", "ARS per USDC")
	cmd.Flags().StringVar(&commission, "commission", "", "commission as a fraction, e.g. 0.005")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
