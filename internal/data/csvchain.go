package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcravi8/OptionsParityChecker-yfinance/internal/logger"
)

// csvChainProvider implements ChainProvider from chain snapshots saved on
// disk, with an optional secondary provider for anything the files cannot
// answer. The directory layout is
//
//	spots.csv                     ticker,spot
//	dividends_SPY.csv             ex_date,amount
//	chain_SPY_2026-09-18.csv      strike,call_bid,call_ask,put_bid,put_ask
//
// Empty quote cells mean the side was not quoted in the snapshot.
type csvChainProvider struct {
	dir       string
	secondary ChainProvider
}

// NewCSVChainProvider convenience constructor.
func NewCSVChainProvider(dir string, secondary ChainProvider) *csvChainProvider {
	return &csvChainProvider{dir: dir, secondary: secondary}
}

func (csvProv *csvChainProvider) Secondary() ChainProvider {
	return csvProv.secondary
}

func (csvProv *csvChainProvider) FetchSpot(ctx context.Context, ticker string) (float64, error) {
	records, err := csvProv.readAll("spots.csv")
	if err == nil {
		for _, row := range records {
			if len(row) < 2 {
				continue
			}
			if !strings.EqualFold(strings.TrimSpace(row[0]), ticker) {
				continue
			}
			spot, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
			if err != nil {
				continue
			}
			return spot, nil
		}
	}

	if csvProv.secondary != nil {
		logger.Debugf("no snapshot spot for %s, delegating", ticker)
		return csvProv.secondary.FetchSpot(ctx, ticker)
	}
	return 0, fmt.Errorf("%w: no snapshot spot for %s", ErrDataUnavailable, ticker)
}

func (csvProv *csvChainProvider) FetchDividends(ctx context.Context, ticker string) (DividendStream, error) {
	name := fmt.Sprintf("dividends_%s.csv", strings.ToUpper(ticker))
	records, err := csvProv.readAll(name)
	if err != nil {
		if csvProv.secondary != nil {
			return csvProv.secondary.FetchDividends(ctx, ticker)
		}
		// no snapshot file simply means no dividends recorded
		return DividendStream{}, nil
	}

	var payments []DividendPayment
	for _, row := range records {
		if len(row) < 2 {
			continue
		}
		exDate, err := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
		if err != nil {
			continue // header or malformed row
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			continue
		}
		payments = append(payments, DividendPayment{ExDate: exDate.UTC(), Amount: amount})
	}
	return DividendStream{Payments: payments}, nil
}

// FetchRiskFreeRate always delegates; rate snapshots are not kept on disk.
// Runs against pure snapshots pass the rate explicitly instead.
func (csvProv *csvChainProvider) FetchRiskFreeRate(ctx context.Context) (float64, error) {
	if csvProv.secondary != nil {
		return csvProv.secondary.FetchRiskFreeRate(ctx)
	}
	return 0, fmt.Errorf("%w: no snapshot risk-free rate", ErrDataUnavailable)
}

// ListExpiries scans the directory for chain snapshot files of the ticker
// and keeps the expiry dates inside the DTE window.
func (csvProv *csvChainProvider) ListExpiries(ctx context.Context, ticker string, asOf time.Time, minDTE, maxDTE int) ([]time.Time, error) {
	pattern := filepath.Join(csvProv.dir, fmt.Sprintf("chain_%s_*.csv", strings.ToUpper(ticker)))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 && csvProv.secondary != nil {
		logger.Debugf("no chain snapshots for %s, delegating", ticker)
		return csvProv.secondary.ListExpiries(ctx, ticker, asOf, minDTE, maxDTE)
	}

	var kept []time.Time
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".csv")
		parts := strings.Split(base, "_")
		if len(parts) != 3 {
			continue
		}
		expiry, err := time.Parse("2006-01-02", parts[2])
		if err != nil {
			continue
		}
		expiry = expiry.UTC()
		dte := int(expiry.Sub(asOf).Hours() / 24)
		if dte >= minDTE && dte <= maxDTE {
			kept = append(kept, expiry)
		}
	}

	SortExpiries(kept)
	return kept, nil
}

func (csvProv *csvChainProvider) FetchChain(ctx context.Context, ticker string, expiry, asOf time.Time) ([]ChainRecord, error) {
	name := fmt.Sprintf("chain_%s_%s.csv", strings.ToUpper(ticker), expiry.Format("2006-01-02"))
	records, err := csvProv.readAll(name)
	if err != nil {
		if csvProv.secondary != nil {
			logger.Debugf("no chain snapshot %s, delegating", name)
			return csvProv.secondary.FetchChain(ctx, ticker, expiry, asOf)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, name, err)
	}

	days := DaysUntil(asOf, expiry)

	var out []ChainRecord
	for _, row := range records {
		if len(row) < 5 {
			continue
		}
		strike, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			continue // header or malformed row
		}
		out = append(out, ChainRecord{
			Strike:       strike,
			Expiry:       expiry,
			DaysToExpiry: days,
			Call:         &Quote{Bid: parseCell(row[1]), Ask: parseCell(row[2])},
			Put:          &Quote{Bid: parseCell(row[3]), Ask: parseCell(row[4])},
		})
	}

	SortChain(out)
	return out, nil
}

// readAll reads one CSV file under the snapshot directory.
func (csvProv *csvChainProvider) readAll(name string) ([][]string, error) {
	f, err := os.Open(filepath.Join(csvProv.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// parseCell turns an empty or malformed quote cell into zero, which the
// usability rule treats as an unquoted side.
func parseCell(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
