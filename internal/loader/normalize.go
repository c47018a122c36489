package loader

import (
	"fmt"
	"math"
	"sort"
	"time"

	"QuantFeed/internal/collector"
	"QuantFeed/internal/model"
)

// normalize turns a provider response into a PriceTable over [start, end]
// whose columns follow symbols. Symbols the provider did not return become
// all-NaN columns; rows where every column is NaN are dropped.
func normalize(resp *collector.Response, symbols []string, start, end time.Time) (*model.PriceTable, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}

	bySymbol := resp.BySymbol
	if bySymbol == nil {
		// single-symbol shape: flat bars belong to the only requested symbol
		if len(symbols) != 1 {
			return nil, fmt.Errorf("single-symbol response for %d symbols", len(symbols))
		}
		bySymbol = map[string][]model.OHLCV{symbols[0]: resp.Bars}
	}

	closes := make([]map[time.Time]float64, len(symbols))
	dateSet := make(map[time.Time]struct{})
	for i, sym := range symbols {
		closes[i] = make(map[time.Time]float64)
		for _, bar := range bySymbol[sym] {
			d := model.TruncateDate(bar.Time)
			if d.Before(start) || d.After(end) {
				continue
			}
			closes[i][d] = bar.Close
			dateSet[d] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	tbl := &model.PriceTable{
		Dates:   dates,
		Symbols: append([]string(nil), symbols...),
		Values:  make([][]float64, len(dates)),
	}
	for r, d := range dates {
		row := make([]float64, len(symbols))
		for c := range symbols {
			v, ok := closes[c][d]
			if !ok {
				v = math.NaN()
			}
			row[c] = v
		}
		tbl.Values[r] = row
	}
	tbl.DropEmptyRows()
	return tbl, nil
}
