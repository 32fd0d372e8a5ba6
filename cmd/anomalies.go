package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/anomaly"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/score"
	sfpkg "github.com/sells-group/leadval-cli/pkg/salesforce"
)

var (
	anomaliesWindow  int
	anomaliesLimit   int
	anomaliesFormat  string
	anomaliesOffline bool
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Flag leads whose fraud signal conflicts with their CRM status",
	Long: `Selects leads whose validation flagged fraud, looks up each lead's
current CRM status, and reports the conflicts in investigation order. The
worst case is a fake-flagged lead that the pipeline accepted anyway.

With --offline no CRM lookups are made and every anomaly is reported with
status "unknown".`,
	RunE: runAnomalies,
}

func init() {
	anomaliesCmd.Flags().IntVar(&anomaliesWindow, "window", 0, "lookback window in days (0 = configured default)")
	anomaliesCmd.Flags().IntVar(&anomaliesLimit, "limit", 0, "maximum anomalies to report (0 = all)")
	anomaliesCmd.Flags().StringVar(&anomaliesFormat, "format", "table", "output format: table, json, or csv")
	anomaliesCmd.Flags().BoolVar(&anomaliesOffline, "offline", false, "skip CRM status lookups")
	rootCmd.AddCommand(anomaliesCmd)
}

// crmStatusFeed resolves lead statuses through the Salesforce client.
type crmStatusFeed struct {
	client sfpkg.Client
}

func (f *crmStatusFeed) CurrentStatus(ctx context.Context, leadID string) (string, error) {
	return sfpkg.LeadStatus(ctx, f.client, leadID)
}

func runAnomalies(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if anomaliesFormat != "table" && anomaliesFormat != "json" && anomaliesFormat != "csv" {
		return eris.Errorf("anomalies: --format must be table, json, or csv (got %q)", anomaliesFormat)
	}

	// Offline detection never touches the CRM; validate like the other
	// store-and-scoring commands.
	mode := "anomalies"
	if anomaliesOffline {
		mode = "sources"
	}
	st, err := openStore(ctx, mode)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	var feed anomaly.StatusFeed
	if !anomaliesOffline {
		client, err := initSalesforce()
		if err != nil {
			return err
		}
		feed = &crmStatusFeed{client: client}
	}

	days := anomaliesWindow
	if days == 0 {
		days = cfg.Anomaly.LookbackDays
	}

	records, err := st.LatestPerLead(ctx, windowFlag(days))
	if err != nil {
		return err
	}

	sc, err := scoringConfig()
	if err != nil {
		return err
	}
	res := score.AssessBatch(records, sc)

	detector := anomaly.NewDetector(feed, cfg.Anomaly, sc.HighVolumeSources)
	anomalies := detector.Detect(ctx, res.Assessments, records)
	if anomaliesLimit > 0 && len(anomalies) > anomaliesLimit {
		anomalies = anomalies[:anomaliesLimit]
	}
	if len(anomalies) == 0 {
		fmt.Fprintln(os.Stderr, "No anomalies found.")
		return nil
	}

	switch anomaliesFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(anomalies)
	case "csv":
		return writeAnomaliesCSV(os.Stdout, anomalies)
	default:
		printAnomalies(anomalies)
	}
	return nil
}

func printAnomalies(anomalies []model.AnomalyRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LEAD\tSOURCE\tFLAG\tSEVERITY\tFRAUD\tSTATUS\tIMPACT\tVALIDATED")
	fmt.Fprintln(w, "----\t------\t----\t--------\t-----\t------\t------\t---------")
	for i := range anomalies {
		a := &anomalies[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
			a.LeadID, a.Source, a.Flag, a.Severity, a.FraudScore,
			a.CurrentStatus, a.Impact, a.ValidatedAt.UTC().Format("2006-01-02"))
	}
	w.Flush() //nolint:errcheck
	fmt.Printf("\n%d anomalies\n", len(anomalies))
}

func writeAnomaliesCSV(out *os.File, anomalies []model.AnomalyRecord) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{"lead_id", "task_id", "source", "first_name", "last_name", "company",
		"flag", "severity", "priority", "impact", "fraud_score", "fake_flag",
		"current_status", "validated_at", "description"}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "anomalies: write CSV header")
	}
	for i := range anomalies {
		a := &anomalies[i]
		row := []string{
			a.LeadID,
			a.TaskID,
			a.Source,
			a.FirstName,
			a.LastName,
			a.Company,
			string(a.Flag),
			string(a.Severity),
			strconv.Itoa(a.Priority),
			string(a.Impact),
			strconv.FormatFloat(a.FraudScore, 'f', 1, 64),
			strconv.FormatBool(a.FakeFlag),
			a.CurrentStatus,
			a.ValidatedAt.UTC().Format(timeFormatCSV),
			a.Description,
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "anomalies: write CSV row")
		}
	}
	return nil
}
