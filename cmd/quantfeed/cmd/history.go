package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"QuantFeed/internal/model"
	"QuantFeed/internal/recorder"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent loads",
	Long: `List recent price loads recorded in the SQLite database named by
database.sqlite_path, newest first.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of events to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is not configured")
	}
	r, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logrus.WithField("component", "recorder"))
	if err != nil {
		return err
	}
	defer r.Close()

	events, err := r.RecentLoads(historyLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "time\tsource\tsymbols\trange\trows\tattempts\tduration\terror")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%d\t%d\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Source, strings.Join(e.Symbols, ","),
			e.Start.Format(model.DateLayout), e.End.Format(model.DateLayout),
			e.Rows, e.Attempts, e.Duration, e.Err)
	}
	return tw.Flush()
}
