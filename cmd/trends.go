package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/report"
)

var (
	trendsGranularity string
	trendsSource      string
	trendsWindow      int
	trendsFormat      string
	trendsExport      string
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Track quality and fraud over time",
	Long: `Builds period-over-period trend series at daily, weekly, or monthly
granularity, newest period first. With --source, restricts the series to one
source; low-volume periods are dropped from per-source series.

Examples:
  # Daily trend over the configured window
  trends

  # Weekly series for one source
  trends --granularity weekly --source "Google Ads"

  # Monthly history to a spreadsheet
  trends --granularity monthly --window 365 --export trends.xlsx`,
	RunE: runTrends,
}

func init() {
	trendsCmd.Flags().StringVar(&trendsGranularity, "granularity", "daily", "period granularity: daily, weekly, or monthly")
	trendsCmd.Flags().StringVar(&trendsSource, "source", "", "restrict the series to one source")
	trendsCmd.Flags().IntVar(&trendsWindow, "window", 0, "window in days (0 = configured default)")
	trendsCmd.Flags().StringVar(&trendsFormat, "format", "text", "output format: text or json")
	trendsCmd.Flags().StringVar(&trendsExport, "export", "", "also export the series to a .csv or .xlsx file")
	rootCmd.AddCommand(trendsCmd)
}

func runTrends(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if trendsFormat != "text" && trendsFormat != "json" {
		return eris.Errorf("trends: --format must be text or json (got %q)", trendsFormat)
	}

	st, err := openStore(ctx, "trends")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	days := trendsWindow
	if days == 0 {
		days = cfg.Trends.WindowDays
	}

	rep, err := report.NewBuilder(st, cfg).Trends(ctx,
		model.Granularity(trendsGranularity), trendsSource, windowFlag(days))
	if err != nil {
		return err
	}

	if trendsFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		fmt.Print(report.FormatTrends(rep))
	}

	if trendsExport != "" {
		if err := exportTrends(rep, trendsExport); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Trend series exported to %s\n", trendsExport)
	}
	return nil
}

func exportTrends(rep *report.TrendReport, path string) error {
	if filepath.Ext(path) == ".xlsx" {
		return report.ExportTrendsXLSX(rep, path)
	}
	return report.ExportTrendsCSV(rep, path)
}
