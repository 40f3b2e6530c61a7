package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/data"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/parity"
)

func expiriesCmd() *cobra.Command {
	var (
		ticker   string
		minDTE   int
		maxDTE   int
		offline  bool
		chainDir string
	)

	cmd := &cobra.Command{
		Use:   "expiries",
		Short: "List option expiries inside the DTE window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker = strings.ToUpper(strings.TrimSpace(ticker))
			if ticker == "" {
				return fmt.Errorf("%w: ticker is required", parity.ErrInvalidInput)
			}

			prov := buildProvider(offline, chainDir)
			asOf := time.Now().UTC()
			expiries, err := prov.ListExpiries(cmd.Context(), ticker, asOf, minDTE, maxDTE)
			if err != nil {
				return fmt.Errorf("list expiries for %s: %w", ticker, err)
			}
			if len(expiries) == 0 {
				return fmt.Errorf("%w: %s window [%d, %d] days", data.ErrNoExpiries, ticker, minDTE, maxDTE)
			}
			for _, expiry := range expiries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %4d days\n",
					expiry.Format("2006-01-02"), data.DaysUntil(asOf, expiry))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "underlying ticker, e.g. SPY")
	cmd.Flags().IntVar(&minDTE, "min-dte", 7, "minimum days to expiry")
	cmd.Flags().IntVar(&maxDTE, "max-dte", 120, "maximum days to expiry")
	cmd.Flags().BoolVar(&offline, "offline", false, "use the synthetic provider instead of Yahoo")
	cmd.Flags().StringVar(&chainDir, "chain-dir", "", "read chains from csv snapshots in this directory")
	return cmd
}
