package loader

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"QuantFeed/internal/model"
)

// maxNameLen caps cache file names well below common filesystem limits.
const maxNameLen = 200

// plainSymbol matches symbols that can appear verbatim in a file name
// without making the "_" separated key ambiguous.
var plainSymbol = regexp.MustCompile(`^[A-Za-z0-9.^=-]+$`)

// CacheKey returns the artifact file name for a request. It depends only on
// the sorted symbol set and the date bounds. Long names, and names whose
// symbols would be ambiguous or unsafe in a path, fall back to a SHA-256
// digest of the symbol set.
func CacheKey(symbols []string, start, end time.Time) string {
	set := uniqueSymbols(symbols)
	sort.Strings(set)

	from := start.Format(model.DateLayout)
	to := end.Format(model.DateLayout)

	plain := true
	for _, s := range set {
		if !plainSymbol.MatchString(s) {
			plain = false
			break
		}
	}
	if plain {
		name := fmt.Sprintf("prices_%s_%s_%s.csv", strings.Join(set, "_"), from, to)
		if len(name) <= maxNameLen {
			return name
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(set, "\x00")))
	return fmt.Sprintf("prices_%s_%s_%s.csv", hex.EncodeToString(sum[:])[:16], from, to)
}

// uniqueSymbols trims symbols and drops blanks and repeats, keeping the
// first occurrence order.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// writeCache persists tbl as CSV. The file is written under a temporary
// name and renamed into place so readers never observe a partial artifact.
func writeCache(path string, tbl *model.PriceTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prices-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	header := append([]string{"date"}, tbl.Symbols...)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for i, d := range tbl.Dates {
		record[0] = d.Format(model.DateLayout)
		for j, v := range tbl.Values[i] {
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// readCache decodes an artifact written by writeCache. A missing file
// yields an error matching os.ErrNotExist.
func readCache(path string) (*model.PriceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	if len(records) == 0 || len(records[0]) < 2 || records[0][0] != "date" {
		return nil, fmt.Errorf("%w: missing header", ErrCorruptCache)
	}

	tbl := &model.PriceTable{
		Symbols: append([]string(nil), records[0][1:]...),
		Dates:   make([]time.Time, 0, len(records)-1),
		Values:  make([][]float64, 0, len(records)-1),
	}
	for n, rec := range records[1:] {
		d, err := time.Parse(model.DateLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorruptCache, n+1, err)
		}
		if len(tbl.Dates) > 0 && !d.After(tbl.Dates[len(tbl.Dates)-1]) {
			return nil, fmt.Errorf("%w: row %d: dates not increasing", ErrCorruptCache, n+1)
		}
		row := make([]float64, len(rec)-1)
		for j, cell := range rec[1:] {
			if cell == "" {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", ErrCorruptCache, n+1, err)
			}
			row[j] = v
		}
		tbl.Dates = append(tbl.Dates, d)
		tbl.Values = append(tbl.Values, row)
	}
	return tbl, nil
}
