package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"QuantFeed/internal/loader"
	"QuantFeed/internal/model"
)

var pricesCmd = &cobra.Command{
	Use:   "prices <SYMBOL>...",
	Short: "Print daily closing prices",
	Long: `Print a date x symbol table of daily closing prices. Results are read
from the cache when present; --force downloads again and overwrites it.

Examples:
  quantfeed prices AAPL MSFT --start 2024-01-01
  quantfeed prices SPY --start 2020-01-01 --end 2020-12-31 --format csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrices,
}

var (
	pricesStart  string
	pricesEnd    string
	pricesForce  bool
	pricesFormat string
)

func init() {
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.Flags().StringVar(&pricesStart, "start", "", "first date (YYYY-MM-DD)")
	pricesCmd.Flags().StringVar(&pricesEnd, "end", "", "last date (YYYY-MM-DD), defaults to today")
	pricesCmd.Flags().BoolVar(&pricesForce, "force", false, "ignore the cache and download again")
	pricesCmd.Flags().StringVar(&pricesFormat, "format", "table", "output format: table or csv")
	_ = pricesCmd.MarkFlagRequired("start")
}

func runPrices(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(model.DateLayout, pricesStart)
	if err != nil {
		return fmt.Errorf("bad --start: %w", err)
	}
	var end time.Time
	if pricesEnd != "" {
		if end, err = time.Parse(model.DateLayout, pricesEnd); err != nil {
			return fmt.Errorf("bad --end: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rec := newRecorder(cfg)
	defer rec.Close()
	l, err := newLoader(cfg, rec)
	if err != nil {
		return err
	}

	tbl, err := l.Load(cmd.Context(), loader.Request{
		Symbols:      args,
		Start:        start,
		End:          end,
		ForceRefresh: pricesForce,
	})
	if err != nil {
		return err
	}

	switch pricesFormat {
	case "csv":
		return writeCSV(cmd.OutOrStdout(), tbl)
	case "table":
		return writeTable(cmd.OutOrStdout(), tbl)
	default:
		return fmt.Errorf("unknown format %q", pricesFormat)
	}
}

func formatPrice(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func writeCSV(out io.Writer, tbl *model.PriceTable) error {
	w := csv.NewWriter(out)
	if err := w.Write(append([]string{"date"}, tbl.Symbols...)); err != nil {
		return err
	}
	for i, d := range tbl.Dates {
		rec := []string{d.Format(model.DateLayout)}
		for _, v := range tbl.Values[i] {
			rec = append(rec, formatPrice(v, -1))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeTable(out io.Writer, tbl *model.PriceTable) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "date\t")
	for _, s := range tbl.Symbols {
		fmt.Fprintf(tw, "%s\t", s)
	}
	fmt.Fprintln(tw)
	for i, d := range tbl.Dates {
		fmt.Fprintf(tw, "%s\t", d.Format(model.DateLayout))
		for _, v := range tbl.Values[i] {
			p := formatPrice(v, 2)
			if p == "" {
				p = "-"
			}
			fmt.Fprintf(tw, "%s\t", p)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
