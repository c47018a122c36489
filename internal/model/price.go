package model

import (
	"math"
	"time"
)

// PriceTable is a date x symbol grid of closing prices.
// Missing values are NaN. Dates are strictly increasing calendar dates.
type PriceTable struct {
	Dates   []time.Time
	Symbols []string
	Values  [][]float64 // Values[row][col]
}

// Series is a single column of a PriceTable.
type Series struct {
	Symbol string
	Dates  []time.Time
	Values []float64
}

// Len returns the number of rows.
func (t *PriceTable) Len() int { return len(t.Dates) }

// ColumnIndex returns the position of symbol, or -1.
func (t *PriceTable) ColumnIndex(symbol string) int {
	for i, s := range t.Symbols {
		if s == symbol {
			return i
		}
	}
	return -1
}

// Column extracts the series for symbol. The second return value is false
// if the table has no such column.
func (t *PriceTable) Column(symbol string) (*Series, bool) {
	idx := t.ColumnIndex(symbol)
	if idx < 0 {
		return nil, false
	}
	s := &Series{
		Symbol: symbol,
		Dates:  append([]time.Time(nil), t.Dates...),
		Values: make([]float64, len(t.Values)),
	}
	for i, row := range t.Values {
		s.Values[i] = row[idx]
	}
	return s, true
}

// Reindex returns a table whose columns follow symbols. Columns absent from
// t are filled with NaN.
func (t *PriceTable) Reindex(symbols []string) *PriceTable {
	pos := make([]int, len(symbols))
	for i, s := range symbols {
		pos[i] = t.ColumnIndex(s)
	}
	out := &PriceTable{
		Dates:   append([]time.Time(nil), t.Dates...),
		Symbols: append([]string(nil), symbols...),
		Values:  make([][]float64, len(t.Values)),
	}
	for r, row := range t.Values {
		nr := make([]float64, len(symbols))
		for c, p := range pos {
			if p < 0 {
				nr[c] = math.NaN()
			} else {
				nr[c] = row[p]
			}
		}
		out.Values[r] = nr
	}
	return out
}

// DropEmptyRows removes every row in which all values are missing.
func (t *PriceTable) DropEmptyRows() {
	dates := t.Dates[:0]
	values := t.Values[:0]
	for i, row := range t.Values {
		if allMissing(row) {
			continue
		}
		dates = append(dates, t.Dates[i])
		values = append(values, row)
	}
	t.Dates = dates
	t.Values = values
}

func allMissing(row []float64) bool {
	for _, v := range row {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Last returns the most recent non-missing value and its date.
func (s *Series) Last() (time.Time, float64, bool) {
	for i := len(s.Values) - 1; i >= 0; i-- {
		if !math.IsNaN(s.Values[i]) {
			return s.Dates[i], s.Values[i], true
		}
	}
	return time.Time{}, math.NaN(), false
}
