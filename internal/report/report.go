// Package report writes scan results to disk: per-strike and per-expiry
// CSVs, the expiry summary, a JSON dump, and the numeric inputs for plots.
// Rendering of the plots themselves is left to external tooling.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/parity"
	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/scan"
)

// histogramBins is the bin count of the gap distribution plots.
const histogramBins = 60

// WriteAll writes every configured artifact for one scan under outDir:
//
//	outDir/summary_TICKER.csv            per-expiry summary
//	outDir/parity_results_TICKER.csv     combined per-strike rows
//	outDir/TICKER/parity_TICKER_DATE.csv one file per expiry
//	outDir/TICKER/scan_TICKER.json       full result dump
//	outDir/TICKER/plotdata_TICKER.json   plot inputs (when plots is true)
func WriteAll(res *scan.Result, outDir string, plots bool) error {
	if err := os.MkdirAll(tickerDir(res, outDir), 0755); err != nil {
		return err
	}
	if err := WriteSummaryCSV(res, outDir); err != nil {
		return err
	}
	if err := WriteStrikeCSVs(res, outDir); err != nil {
		return err
	}
	if err := WriteJSON(res, outDir); err != nil {
		return err
	}
	if plots {
		if err := WritePlotData(res, outDir); err != nil {
			return err
		}
	}
	return nil
}

func WriteJSON(res *scan.Result, outDir string) error {
	dir := tickerDir(res, outDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("scan_%s.json", res.Ticker)
	return os.WriteFile(filepath.Join(dir, name), b, 0644)
}

// WriteSummaryCSV writes the per-expiry aggregation.
func WriteSummaryCSV(res *scan.Result, outDir string) error {
	name := fmt.Sprintf("summary_%s.csv", res.Ticker)
	f, err := os.Create(filepath.Join(outDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"expiry", "n_strikes", "pct_mid_gt_1c", "pct_mid_gt_5c", "pct_exec_gt_0", "avg_abs_mid_gap", "max_abs_mid_gap"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, s := range res.Summaries {
		row := []string{
			s.Expiry.Format("2006-01-02"),
			fmt.Sprintf("%d", s.NStrikes),
			fmt.Sprintf("%.2f", s.PctMidAbove1c),
			fmt.Sprintf("%.2f", s.PctMidAbove5c),
			fmt.Sprintf("%.2f", s.PctExecPositive),
			fmt.Sprintf("%.4f", s.AvgAbsMidGap),
			fmt.Sprintf("%.4f", s.MaxAbsMidGap),
		}
		_ = w.Write(row)
	}
	return nil
}

// WriteStrikeCSVs writes the combined per-strike file plus one file per
// expiry under the ticker directory.
func WriteStrikeCSVs(res *scan.Result, outDir string) error {
	if err := os.MkdirAll(tickerDir(res, outDir), 0755); err != nil {
		return err
	}

	name := fmt.Sprintf("parity_results_%s.csv", res.Ticker)
	if err := writeStrikeCSV(filepath.Join(outDir, name), res.Rows); err != nil {
		return err
	}

	for _, expiry := range resultExpiries(res.Rows) {
		var grp []parity.Result
		for _, r := range res.Rows {
			if r.Expiry.Equal(expiry) {
				grp = append(grp, r)
			}
		}
		name := fmt.Sprintf("parity_%s_%s.csv", res.Ticker, expiry.Format("2006-01-02"))
		if err := writeStrikeCSV(filepath.Join(tickerDir(res, outDir), name), grp); err != nil {
			return err
		}
	}
	return nil
}

func writeStrikeCSV(path string, rows []parity.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"expiry", "strike", "mid_gap", "exec_gap", "forward"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			r.Expiry.Format("2006-01-02"),
			fmt.Sprintf("%.2f", r.Strike),
			fmt.Sprintf("%.4f", r.MidGap),
			fmt.Sprintf("%.4f", r.ExecGap),
			fmt.Sprintf("%.4f", r.Forward),
		}
		_ = w.Write(row)
	}
	return nil
}

// plotData is the numeric input for external plot rendering: gap
// histograms across all expiries and a per-expiry strike scatter.
type plotData struct {
	Ticker           string          `json:"ticker"`
	MidGapHistogram  histogram       `json:"mid_gap_histogram"`
	ExecGapHistogram histogram       `json:"exec_gap_histogram"`
	Expiries         []expiryScatter `json:"expiries"`
}

type histogram struct {
	BinEdges []float64 `json:"bin_edges"`
	Counts   []int     `json:"counts"`
}

type expiryScatter struct {
	Expiry   string    `json:"expiry"`
	Strikes  []float64 `json:"strikes"`
	MidGaps  []float64 `json:"mid_gaps"`
	ExecGaps []float64 `json:"exec_gaps"`
}

func WritePlotData(res *scan.Result, outDir string) error {
	mids := make([]float64, len(res.Rows))
	execs := make([]float64, len(res.Rows))
	for i, r := range res.Rows {
		mids[i] = r.MidGap
		execs[i] = r.ExecGap
	}

	pd := plotData{
		Ticker:           res.Ticker,
		MidGapHistogram:  buildHistogram(mids, histogramBins),
		ExecGapHistogram: buildHistogram(execs, histogramBins),
	}

	for _, expiry := range resultExpiries(res.Rows) {
		sc := expiryScatter{Expiry: expiry.Format("2006-01-02")}
		for _, r := range res.Rows {
			if !r.Expiry.Equal(expiry) {
				continue
			}
			sc.Strikes = append(sc.Strikes, r.Strike)
			sc.MidGaps = append(sc.MidGaps, r.MidGap)
			sc.ExecGaps = append(sc.ExecGaps, r.ExecGap)
		}
		pd.Expiries = append(pd.Expiries, sc)
	}

	dir := tickerDir(res, outDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("plotdata_%s.json", res.Ticker)
	return os.WriteFile(filepath.Join(dir, name), b, 0644)
}

// buildHistogram bins values into equal-width buckets over [min, max].
// Values at the top edge land in the last bucket.
func buildHistogram(values []float64, bins int) histogram {
	if len(values) == 0 || bins <= 0 {
		return histogram{}
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if hi == lo {
		return histogram{BinEdges: []float64{lo, hi}, Counts: []int{len(values)}}
	}

	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	return histogram{BinEdges: edges, Counts: counts}
}

// resultExpiries returns the distinct expiries of sorted rows, in order.
func resultExpiries(rows []parity.Result) []time.Time {
	var out []time.Time
	for _, r := range rows {
		if len(out) == 0 || !out[len(out)-1].Equal(r.Expiry) {
			out = append(out, r.Expiry)
		}
	}
	return out
}

func tickerDir(res *scan.Result, outDir string) string {
	return filepath.Join(outDir, res.Ticker)
}
