package parity

import (
	"math"
	"sort"
	"time"
)

// Breach thresholds for the summary columns, in dollars per share.
const (
	thresholdSmall  = 0.01
	thresholdMedium = 0.05
)

// ExpirySummary aggregates the per-strike results of one expiration.
// Percentages run 0-100 over the strikes that produced a result.
type ExpirySummary struct {
	Expiry          time.Time `json:"expiry"`
	NStrikes        int       `json:"n_strikes"`
	PctMidAbove1c   float64   `json:"pct_mid_gt_1c"`
	PctMidAbove5c   float64   `json:"pct_mid_gt_5c"`
	PctExecPositive float64   `json:"pct_exec_gt_0"`
	AvgAbsMidGap    float64   `json:"avg_abs_mid_gap"`
	MaxAbsMidGap    float64   `json:"max_abs_mid_gap"`
}

// Summarize groups per-strike results by expiry and reduces each group.
//
// Threshold comparisons are strict: a mid gap of exactly one cent does not
// count as a one-cent breach, and an executable gap counts only when it is
// strictly positive. Expiries that produced no results simply do not appear.
// The returned slice is sorted by expiry ascending.
func Summarize(rows []Result) []ExpirySummary {
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[time.Time][]Result)
	for _, r := range rows {
		groups[r.Expiry] = append(groups[r.Expiry], r)
	}

	out := make([]ExpirySummary, 0, len(groups))
	for expiry, grp := range groups {
		n := len(grp)

		var (
			gtSmall  int
			gtMedium int
			gtZero   int
			sumAbs   float64
			maxAbs   float64
		)
		for _, r := range grp {
			abs := math.Abs(r.MidGap)
			if abs > thresholdSmall {
				gtSmall++
			}
			if abs > thresholdMedium {
				gtMedium++
			}
			if r.ExecGap > 0 {
				gtZero++
			}
			sumAbs += abs
			if abs > maxAbs {
				maxAbs = abs
			}
		}

		out = append(out, ExpirySummary{
			Expiry:          expiry,
			NStrikes:        n,
			PctMidAbove1c:   100.0 * float64(gtSmall) / float64(n),
			PctMidAbove5c:   100.0 * float64(gtMedium) / float64(n),
			PctExecPositive: 100.0 * float64(gtZero) / float64(n),
			AvgAbsMidGap:    sumAbs / float64(n),
			MaxAbsMidGap:    maxAbs,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })
	return out
}

// SortResults orders rows by expiry then strike, the order every report
// writer expects.
func SortResults(rows []Result) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Expiry.Equal(rows[j].Expiry) {
			return rows[i].Expiry.Before(rows[j].Expiry)
		}
		return rows[i].Strike < rows[j].Strike
	})
}
