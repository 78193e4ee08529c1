package eod

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"aitradebot/internal/journal"

	"github.com/shopspring/decimal"
)

// aggRow is one symbol's filled activity for the day.
type aggRow struct {
	Symbol      string
	Fills       int
	BuyQty      decimal.Decimal
	BuyValue    decimal.Decimal
	SellQty     decimal.Decimal
	SellValue   decimal.Decimal
	Fees        decimal.Decimal
	RealizedPnL decimal.Decimal
}

func newAggRow(symbol string) *aggRow {
	return &aggRow{
		Symbol:      symbol,
		BuyQty:      decimal.Zero,
		BuyValue:    decimal.Zero,
		SellQty:     decimal.Zero,
		SellValue:   decimal.Zero,
		Fees:        decimal.Zero,
		RealizedPnL: decimal.Zero,
	}
}

type eodSummarizer struct {
	dir string
	now func() time.Time
}

func eodCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, "eod", t.UTC().Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates the day's filled orders from the journal into a CSV.
// A day without fills writes nothing and returns an empty path.
func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	events, err := journal.ReadDay(s.dir, t)
	if err != nil {
		return "", err
	}

	aggs := map[string]*aggRow{}
	for _, e := range events {
		if e.Kind != journal.KindOrder || e.State != "FILLED" {
			continue
		}
		row := aggs[e.Symbol]
		if row == nil {
			row = newAggRow(e.Symbol)
			aggs[e.Symbol] = row
		}
		row.Fills++
		value := e.Qty.Mul(e.Price)
		switch e.Side {
		case "BUY":
			row.BuyQty = row.BuyQty.Add(e.Qty)
			row.BuyValue = row.BuyValue.Add(value)
		case "SELL":
			row.SellQty = row.SellQty.Add(e.Qty)
			row.SellValue = row.SellValue.Add(value)
		}
		row.Fees = row.Fees.Add(e.Fee)
		row.RealizedPnL = row.RealizedPnL.Add(e.RealizedPnL)
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(s.dir, t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "fills", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "fees", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	total := newAggRow("TOTAL")
	for _, k := range keys {
		r := aggs[k]
		if err := w.Write(r.record()); err != nil {
			return "", err
		}
		total.Fills += r.Fills
		total.BuyValue = total.BuyValue.Add(r.BuyValue)
		total.SellValue = total.SellValue.Add(r.SellValue)
		total.Fees = total.Fees.Add(r.Fees)
		total.RealizedPnL = total.RealizedPnL.Add(r.RealizedPnL)
	}
	if err := w.Write([]string{
		"TOTAL", fmt.Sprint(total.Fills), "", "", "", "",
		total.Fees.StringFixed(8), total.RealizedPnL.StringFixed(8),
		total.BuyValue.StringFixed(2), total.SellValue.StringFixed(2),
	}); err != nil {
		return "", err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (r *aggRow) record() []string {
	return []string{
		r.Symbol,
		fmt.Sprint(r.Fills),
		r.BuyQty.String(),
		avg(r.BuyValue, r.BuyQty).StringFixed(4),
		r.SellQty.String(),
		avg(r.SellValue, r.SellQty).StringFixed(4),
		r.Fees.StringFixed(8),
		r.RealizedPnL.StringFixed(8),
		r.BuyValue.StringFixed(2),
		r.SellValue.StringFixed(2),
	}
}

func avg(value, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return value.Div(qty)
}

func (s *eodSummarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(s.now())
}
