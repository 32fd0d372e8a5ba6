package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/report"
)

var (
	sourcesWindow   int
	sourcesToday    bool
	sourcesWorst    bool
	sourcesMinLeads int
	sourcesFormat   string
	sourcesExport   string
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Rank and grade lead sources over a window",
	Long: `Builds the per-source scorecard: volume, quality and fraud statistics,
letter grades, ranks, and the remediation queue of worst offenders.

Examples:
  # Scorecard over the default 30-day window
  sources

  # Today only, worst offenders first
  sources --today --worst

  # Export the quarter to a spreadsheet
  sources --window 90 --export scorecard.xlsx`,
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().IntVar(&sourcesWindow, "window", 30, "window in days (0 = all time)")
	sourcesCmd.Flags().BoolVar(&sourcesToday, "today", false, "restrict the window to the current UTC day")
	sourcesCmd.Flags().BoolVar(&sourcesWorst, "worst", false, "print only the remediation queue")
	sourcesCmd.Flags().IntVar(&sourcesMinLeads, "min-leads", 0, "hide sources with fewer leads in window")
	sourcesCmd.Flags().StringVar(&sourcesFormat, "format", "text", "output format: text or json")
	sourcesCmd.Flags().StringVar(&sourcesExport, "export", "", "also export the scorecard to a .csv or .xlsx file")
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if sourcesFormat != "text" && sourcesFormat != "json" {
		return eris.Errorf("sources: --format must be text or json (got %q)", sourcesFormat)
	}

	st, err := openStore(ctx, "sources")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	window := windowFlag(sourcesWindow)
	if sourcesToday {
		window = model.Day(time.Now().UTC())
	}

	card, err := report.NewBuilder(st, cfg).Scorecard(ctx, window)
	if err != nil {
		return err
	}
	if sourcesMinLeads > 0 {
		card.Sources = filterAggregates(card.Sources, sourcesMinLeads)
		card.Worst = filterAggregates(card.Worst, sourcesMinLeads)
	}

	if sourcesFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(card); err != nil {
			return err
		}
	} else if sourcesWorst {
		printWorstSources(card)
	} else {
		fmt.Print(report.FormatScorecard(card))
	}

	if sourcesExport != "" {
		if err := exportScorecard(card, sourcesExport); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Scorecard exported to %s\n", sourcesExport)
	}
	return nil
}

// filterAggregates drops sources below the volume floor. Ranks and grades
// were computed over the full set and keep their original values.
func filterAggregates(aggs []model.SourceAggregate, minLeads int) []model.SourceAggregate {
	var out []model.SourceAggregate
	for i := range aggs {
		if aggs[i].TotalLeads >= minLeads {
			out = append(out, aggs[i])
		}
	}
	return out
}

func printWorstSources(card *report.SourceScorecard) {
	if card.NoData || len(card.Worst) == 0 {
		fmt.Fprintln(os.Stderr, "No sources need remediation.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSOURCE\tGRADE\tLEADS\tFAKE%\tPROBLEM\tISSUE")
	fmt.Fprintln(w, "----\t------\t-----\t-----\t-----\t-------\t-----")
	for i := range card.Worst {
		s := &card.Worst[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f\t%.1f\t%s\n",
			s.RemediationPriority, s.Source, s.Grade, s.TotalLeads,
			s.FakeLeadPct, s.ProblemScore, s.PrimaryIssue)
	}
	w.Flush() //nolint:errcheck
}

func exportScorecard(card *report.SourceScorecard, path string) error {
	if filepath.Ext(path) == ".xlsx" {
		return report.ExportScorecardXLSX(card, path)
	}
	return report.ExportScorecardCSV(card, path)
}
