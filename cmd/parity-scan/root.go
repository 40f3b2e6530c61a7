package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/data"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/logger"
)

var verbosity int

// Execute builds the command tree and runs it.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "parity-scan",
		Short: "Put-call parity scanner for listed option chains",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional, absence is not an error
			_ = godotenv.Load()
			logger.SetVerbosity(verbosity)
		},
	}
	root.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 1, "log verbosity: 0=error 1=info 2=debug 3=trace")
	root.AddCommand(scanCmd(), expiriesCmd())
	return root.ExecuteContext(ctx)
}

// buildProvider picks the chain source: synthetic when offline, live Yahoo
// otherwise. A snapshot directory wraps either one in the csv provider,
// keeping the original source as secondary for anything not on disk.
func buildProvider(offline bool, chainDir string) data.ChainProvider {
	var prov data.ChainProvider
	if offline {
		prov = data.NewSyntheticProvider()
		logger.Infof("synthetic provider enabled")
	} else {
		prov = data.NewYahooProvider()
		logger.Infof("yahoo provider enabled")
	}
	if chainDir != "" {
		prov = data.NewCSVChainProvider(chainDir, prov)
		logger.Infof("csv snapshot provider enabled: %s", chainDir)
	}
	return prov
}
