package parity

import (
	"math"
	"testing"
	"time"
)

var (
	sep = time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	oct = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
)

// Counts and averages over one expiry: four strikes, three past one cent,
// two past five cents, two with executable edge.
func TestSummarizeCounts(t *testing.T) {
	rows := []Result{
		{Expiry: sep, Strike: 440, MidGap: 0.005, ExecGap: 0},
		{Expiry: sep, Strike: 445, MidGap: 0.02, ExecGap: 0},
		{Expiry: sep, Strike: 450, MidGap: -0.06, ExecGap: 0.01},
		{Expiry: sep, Strike: 455, MidGap: 0.30, ExecGap: 0.25},
	}

	sums := Summarize(rows)
	if len(sums) != 1 {
		t.Fatalf("expected one summary, got %d", len(sums))
	}
	s := sums[0]

	if s.NStrikes != 4 {
		t.Fatalf("expected 4 strikes, got %d", s.NStrikes)
	}
	if s.PctMidAbove1c != 75.0 {
		t.Fatalf("expected 75%% past one cent, got %v", s.PctMidAbove1c)
	}
	if s.PctMidAbove5c != 50.0 {
		t.Fatalf("expected 50%% past five cents, got %v", s.PctMidAbove5c)
	}
	if s.PctExecPositive != 50.0 {
		t.Fatalf("expected 50%% executable, got %v", s.PctExecPositive)
	}
	want := (0.005 + 0.02 + 0.06 + 0.30) / 4
	if math.Abs(s.AvgAbsMidGap-want) > 1e-12 {
		t.Fatalf("expected avg %v, got %v", want, s.AvgAbsMidGap)
	}
	if s.MaxAbsMidGap != 0.30 {
		t.Fatalf("expected max 0.30, got %v", s.MaxAbsMidGap)
	}
}

// Gaps sitting exactly on a threshold do not count as breaches.
func TestSummarizeStrictThresholds(t *testing.T) {
	rows := []Result{
		{Expiry: sep, Strike: 440, MidGap: 0.01, ExecGap: 0},
		{Expiry: sep, Strike: 445, MidGap: 0.05, ExecGap: 0},
	}

	s := Summarize(rows)[0]
	if s.PctMidAbove1c != 50.0 {
		t.Fatalf("expected only the 0.05 row past one cent, got %v%%", s.PctMidAbove1c)
	}
	if s.PctMidAbove5c != 0.0 {
		t.Fatalf("expected no five-cent breaches, got %v%%", s.PctMidAbove5c)
	}
	if s.PctExecPositive != 0.0 {
		t.Fatalf("expected no executable rows, got %v%%", s.PctExecPositive)
	}
}

// Each expiry is reduced on its own and summaries come back sorted.
func TestSummarizeGroupsByExpiry(t *testing.T) {
	rows := []Result{
		{Expiry: oct, Strike: 450, MidGap: 0.20, ExecGap: 0.1},
		{Expiry: sep, Strike: 450, MidGap: 0.002, ExecGap: 0},
	}

	sums := Summarize(rows)
	if len(sums) != 2 {
		t.Fatalf("expected two summaries, got %d", len(sums))
	}
	if !sums[0].Expiry.Equal(sep) || !sums[1].Expiry.Equal(oct) {
		t.Fatalf("summaries out of order: %v, %v", sums[0].Expiry, sums[1].Expiry)
	}
	if sums[0].PctMidAbove1c != 0.0 || sums[1].PctMidAbove1c != 100.0 {
		t.Fatalf("groups leaked into each other: %v, %v", sums[0], sums[1])
	}
}

// No rows, no summaries. An expiry without results never appears at all.
func TestSummarizeEmpty(t *testing.T) {
	if sums := Summarize(nil); sums != nil {
		t.Fatalf("expected nil, got %v", sums)
	}
}

func TestSortResults(t *testing.T) {
	rows := []Result{
		{Expiry: oct, Strike: 100},
		{Expiry: sep, Strike: 110},
		{Expiry: sep, Strike: 90},
		{Expiry: oct, Strike: 95},
	}
	SortResults(rows)

	wantStrikes := []float64{90, 110, 95, 100}
	for i, r := range rows {
		if r.Strike != wantStrikes[i] {
			t.Fatalf("row %d: expected strike %v, got %v", i, wantStrikes[i], r.Strike)
		}
	}
	if !rows[0].Expiry.Equal(sep) || !rows[3].Expiry.Equal(oct) {
		t.Fatalf("rows not grouped by expiry: %+v", rows)
	}
}
