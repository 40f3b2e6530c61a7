package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/logger"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/report"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/scan"
)

func scanCmd() *cobra.Command {
	var (
		ticker      string
		expiries    []string
		minDTE      int
		maxDTE      int
		dividends   bool
		rfOverride  float64
		spreadCents float64
		filter      string
		outDir      string
		plots       bool
		offline     bool
		chainDir    string
		configPath  string
		rest        bool
		port        string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan an option chain for put-call parity violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg scan.Config
			if configPath != "" {
				b, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
				if err := json.Unmarshal(b, &cfg); err != nil {
					return fmt.Errorf("invalid config %s: %w", configPath, err)
				}
			}

			// Flags override the config file only when given on the command
			// line; without a file every flag (defaults included) applies.
			fl := cmd.Flags()
			set := func(name string) bool { return configPath == "" || fl.Changed(name) }
			if set("ticker") {
				cfg.Ticker = ticker
			}
			if set("expiries") {
				cfg.Expiries = expiries
			}
			if set("min-dte") {
				cfg.MinDTE = minDTE
			}
			if set("max-dte") {
				cfg.MaxDTE = maxDTE
			}
			if set("use-dividends") {
				cfg.UseDividends = dividends
			}
			if fl.Changed("rf-override") {
				// the zero default must not pin the rate to 0%
				cfg.RFOverride = &rfOverride
			}
			if set("stock-spread-cents") {
				cfg.StockSpreadCents = spreadCents
			}
			if set("filter") {
				cfg.Filter = filter
			}
			if set("out") {
				cfg.OutDir = outDir
			}
			if set("plots") {
				cfg.Plots = plots
			}
			if set("verbosity") {
				cfg.Verbosity = verbosity
			}

			engine := scan.NewEngine(&cfg, buildProvider(offline, chainDir))

			if rest {
				return runREST(engine, port)
			}

			start := time.Now()
			res, err := engine.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := report.WriteAll(res, cfg.OutDir, cfg.Plots); err != nil {
				return fmt.Errorf("writing reports: %w", err)
			}
			printSummary(cmd.OutOrStdout(), res)
			logger.Infof("scan finished in %v, wrote %d rows to %s",
				time.Since(start).Round(time.Millisecond), len(res.Rows), cfg.OutDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "underlying ticker, e.g. SPY")
	cmd.Flags().StringSliceVar(&expiries, "expiries", nil, "explicit expiries (YYYY-MM-DD), bypasses the DTE window")
	cmd.Flags().IntVar(&minDTE, "min-dte", 7, "minimum days to expiry")
	cmd.Flags().IntVar(&maxDTE, "max-dte", 120, "maximum days to expiry")
	cmd.Flags().BoolVar(&dividends, "use-dividends", false, "adjust spot for dividends until expiry")
	cmd.Flags().Float64Var(&rfOverride, "rf-override", 0, "annual risk-free rate override, e.g. 0.045")
	cmd.Flags().Float64Var(&spreadCents, "stock-spread-cents", 0, "assumed stock bid-ask spread in cents")
	cmd.Flags().StringVar(&filter, "filter", "", "strike predicate, e.g. \"MONEYNESS >= 0.8 && MONEYNESS <= 1.2\"")
	cmd.Flags().StringVar(&outDir, "out", "outputs", "report directory")
	cmd.Flags().BoolVar(&plots, "plots", false, "write plot input data")
	cmd.Flags().BoolVar(&offline, "offline", false, "use the synthetic provider instead of Yahoo")
	cmd.Flags().StringVar(&chainDir, "chain-dir", "", "read chains from csv snapshots in this directory")
	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config, flags given on the command line win")
	cmd.Flags().BoolVar(&rest, "rest", false, "run as REST server (accept scan jobs)")
	cmd.Flags().StringVar(&port, "port", ":8080", "REST server listen address")
	return cmd
}

// runREST serves the configured scan over HTTP. /run executes it once per
// request and returns the JSON result, /health answers ok.
func runREST(engine *scan.Engine, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		logger.Infof("received /run request")
		res, err := engine.Run(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	logger.Infof("starting REST server on %s", port)
	return http.ListenAndServe(port, mux)
}

func printSummary(w io.Writer, res *scan.Result) {
	fmt.Fprintf(w, "%s  spot %.2f  rate %.2f%%  as of %s\n\n",
		res.Ticker, res.Spot, res.Rate*100, res.AsOf.Format("2006-01-02"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "expiry\tstrikes\tmid>1c\tmid>5c\texec>0\tavg|mid|\tmax|mid|")
	for _, s := range res.Summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.1f%%\t%.1f%%\t%.4f\t%.4f\n",
			s.Expiry.Format("2006-01-02"), s.NStrikes,
			s.PctMidAbove1c, s.PctMidAbove5c, s.PctExecPositive,
			s.AvgAbsMidGap, s.MaxAbsMidGap)
	}
	_ = tw.Flush()

	sk := res.Skipped
	if sk.MissingQuote+sk.InvalidInput+sk.Filtered+sk.Expiries > 0 {
		fmt.Fprintf(w, "\nskipped: %d missing quotes, %d invalid, %d filtered, %d expiries\n",
			sk.MissingQuote, sk.InvalidInput, sk.Filtered, sk.Expiries)
	}
}
