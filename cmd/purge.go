package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/etl"
	"github.com/sells-group/leadval-cli/internal/resilience"
)

var (
	purgeOlderThan int
	purgeDryRun    bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove stored data past the retention window",
	Long:  "Deletes raw tasks, validations, and parse failures older than the retention window. With --dry-run, reports what would be removed without touching anything.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "purge")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		days := purgeOlderThan
		if days == 0 {
			days = cfg.Retention.Days
		}

		retry, circuit := resilience.FromConfig(cfg.Resilience)
		res, err := etl.NewRunner(nil, st, retry, circuit).Purge(ctx, days, purgeDryRun)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if res.DryRun {
			fmt.Fprintf(w, "Dry run:\tolder than %d days, nothing deleted\n", days)
		}
		fmt.Fprintf(w, "Tasks:\t%d\n", res.Tasks)
		fmt.Fprintf(w, "Validations:\t%d\n", res.Validations)
		fmt.Fprintf(w, "Parse failures:\t%d\n", res.ParseFailures)
		w.Flush() //nolint:errcheck
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&purgeOlderThan, "older-than", 0, "retention in days (0 = configured default)")
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "report what would be purged without deleting")
	rootCmd.AddCommand(purgeCmd)
}
