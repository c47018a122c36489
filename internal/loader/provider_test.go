package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantFeed/internal/collector"
)

// newEastYahoo serves daily bars for an exchange at UTC+11, honouring the
// period1/period2 window on raw UTC timestamps.
func newEastYahoo(t *testing.T) *collector.YahooFetcher {
	t.Helper()
	// 23:00 UTC on 12-31, 01-01, 01-02 and 01-03: local 01-01 .. 01-04
	stamps := []int64{1704063600, 1704150000, 1704236400, 1704322800}
	closes := []float64{43.8, 44.1, 44.6, 45.0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p1, _ := strconv.ParseInt(r.URL.Query().Get("period1"), 10, 64)
		p2, _ := strconv.ParseInt(r.URL.Query().Get("period2"), 10, 64)
		var ts, cs []string
		for i, s := range stamps {
			if s >= p1 && s < p2 {
				ts = append(ts, strconv.FormatInt(s, 10))
				cs = append(cs, strconv.FormatFloat(closes[i], 'g', -1, 64))
			}
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"gmtoffset":39600},"timestamp":[%s],
"indicators":{"quote":[{"close":[%s]}]}}],"error":null}}`,
			strings.Join(ts, ","), strings.Join(cs, ","))
	}))
	t.Cleanup(srv.Close)
	f := collector.NewYahooFetcher("", quietLog())
	f.BaseURL = srv.URL
	return f
}

func TestLoadEastOfUTCExchangeKeepsRangeInclusive(t *testing.T) {
	l, _ := newTestLoader(t, newEastYahoo(t))

	tbl, err := l.Load(context.Background(), Request{Symbols: []string{"BHP.AX"}, Start: date(1, 2), End: date(1, 3)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(1, 2), date(1, 3)}, tbl.Dates)
	assert.Equal(t, [][]float64{{44.1}, {44.6}}, tbl.Values)
}
