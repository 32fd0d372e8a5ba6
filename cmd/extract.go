package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/etl"
	"github.com/sells-group/leadval-cli/internal/resilience"
	"github.com/sells-group/leadval-cli/internal/store"
)

var (
	extractDaysBack       int
	extractForceRefresh   bool
	extractValidationOnly bool
	extractConcurrency    int
	extractBackup         bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Pull validation tasks from the CRM and parse them into the store",
	Long:  "Fetches Lead Validation tasks modified within the lookback window, parses the validation sections out of each description, and upserts the results. --validation-only re-parses stored raw tasks without calling Salesforce.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Reparse touches only the store; a full extract also needs CRM
		// credentials.
		mode := "extract"
		if extractValidationOnly {
			mode = "reparse"
		}

		st, err := openStore(ctx, mode)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		retry, circuit := resilience.FromConfig(cfg.Resilience)
		opts := etl.Options{
			DaysBack:     extractDaysBack,
			ForceRefresh: extractForceRefresh,
			Concurrency:  extractConcurrency,
		}
		if extractBackup {
			opts.BackupDir = cfg.Report.OutputDir
		}

		var run *store.ETLRun
		if extractValidationOnly {
			runner := etl.NewRunner(nil, st, retry, circuit)
			run, err = runner.Reparse(ctx, opts)
		} else {
			sf, sfErr := initSalesforce()
			if sfErr != nil {
				return sfErr
			}
			runner := etl.NewRunner(sf, st, retry, circuit)
			run, err = runner.Extract(ctx, opts)
		}
		if err != nil {
			return err
		}

		printRunSummary(run)
		return nil
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractDaysBack, "days-back", 0, "lookback window in days (default from config)")
	extractCmd.Flags().BoolVar(&extractForceRefresh, "force-refresh", false, "ignore the lookback window and fetch the full task history")
	extractCmd.Flags().BoolVar(&extractValidationOnly, "validation-only", false, "re-parse stored raw tasks without calling Salesforce")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "parse worker count (default from config)")
	extractCmd.Flags().BoolVar(&extractBackup, "backup", false, "write a CSV backup of parsed records to the report output dir")
	rootCmd.AddCommand(extractCmd)
}

// printRunSummary writes the run-log entry as a small table.
func printRunSummary(run *store.ETLRun) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", run.Kind)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Tasks fetched:\t%d\n", run.Counters.TasksFetched)
	_, _ = fmt.Fprintf(w, "Parsed:\t%d\n", run.Counters.Parsed)
	_, _ = fmt.Fprintf(w, "Parse errors:\t%d\n", run.Counters.ParseErrors)
	_, _ = fmt.Fprintf(w, "Stored:\t%d\n", run.Counters.Stored)
	if run.Counters.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", run.Counters.Skipped)
	}
	if run.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	_ = w.Flush()
}
