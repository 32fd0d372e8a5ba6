package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/report"
	"github.com/sells-group/leadval-cli/internal/store"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored volumes, data freshness, and recent ETL runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "status")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.Counts(ctx)
		if err != nil {
			return err
		}
		last, err := st.LatestRun(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Raw tasks:\t%d\n", counts.RawTasks)
		fmt.Fprintf(w, "Validations:\t%d\n", counts.Validations)
		fmt.Fprintf(w, "Parse errors:\t%d\n", counts.ParseErrors)
		fmt.Fprintf(w, "Fake leads:\t%d\n", counts.FakeLeads)
		fmt.Fprintf(w, "Distinct leads:\t%d\n", counts.DistinctLeads)
		fmt.Fprintf(w, "Distinct sources:\t%d\n", counts.DistinctSources)
		if !counts.NewestValidated.IsZero() {
			fmt.Fprintf(w, "Oldest validated:\t%s\n", counts.OldestValidated.UTC().Format("2006-01-02 15:04"))
			fmt.Fprintf(w, "Newest validated:\t%s\n", counts.NewestValidated.UTC().Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "Freshness:\t%s\n", report.FreshnessOf(counts.NewestValidated, time.Now().UTC()))
		if last != nil {
			fmt.Fprintf(w, "Last run:\t%s %s (started %s)\n",
				last.Kind, last.Status, last.StartedAt.UTC().Format("2006-01-02 15:04"))
			if last.Error != "" {
				fmt.Fprintf(w, "Last run error:\t%s\n", last.Error)
			}
		}
		w.Flush() //nolint:errcheck

		if statusRuns > 0 {
			fmt.Println()
			runs, err := st.ListRuns(ctx, statusRuns)
			if err != nil {
				return err
			}
			printRuns(runs)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 0, "also list the N most recent ETL runs")
	rootCmd.AddCommand(statusCmd)
}

func printRuns(runs []store.ETLRun) {
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No runs found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tKIND\tSTATUS\tSTARTED\tDURATION\tSTORED\tERRORS")
	fmt.Fprintln(w, "---\t----\t------\t-------\t--------\t------\t------")
	for i := range runs {
		r := &runs[i]
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			truncateID(r.ID), r.Kind, r.Status,
			r.StartedAt.UTC().Format("2006-01-02 15:04"),
			duration, r.Counters.Stored, r.Counters.ParseErrors)
	}
	w.Flush() //nolint:errcheck
}

// truncateID shortens a run UUID for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
