package notifier

import (
	"fmt"
	"html"
	"strings"

	"QuantFeed/internal/model"
)

// FormatRefresh summarises a refreshed watchlist: row count, last date and
// the latest close per symbol.
func FormatRefresh(watchlist string, tbl *model.PriceTable) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> refreshed | %d days\n", html.EscapeString(watchlist), tbl.Len()))
	if tbl.Len() > 0 {
		b.WriteString(fmt.Sprintf("last date: %s\n", tbl.Dates[tbl.Len()-1].Format(model.DateLayout)))
	}
	for _, sym := range tbl.Symbols {
		s, _ := tbl.Column(sym)
		if d, v, ok := s.Last(); ok {
			b.WriteString(fmt.Sprintf("  %s: %.2f (%s)\n", html.EscapeString(sym), v, d.Format(model.DateLayout)))
		} else {
			b.WriteString(fmt.Sprintf("  %s: no data\n", html.EscapeString(sym)))
		}
	}
	return b.String()
}

// FormatFailure reports a failed refresh.
func FormatFailure(watchlist string, err error) string {
	return fmt.Sprintf("❌ <b>%s</b> refresh failed: %s", html.EscapeString(watchlist), html.EscapeString(err.Error()))
}
