package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/report"
	"github.com/sells-group/leadval-cli/internal/resilience"
	"github.com/sells-group/leadval-cli/pkg/anthropic"
	"github.com/sells-group/leadval-cli/pkg/notion"
)

var (
	reportDate      string
	reportHourly    bool
	reportNarrative bool
	reportExport    string
	reportArchive   bool
	reportNotion    bool
	reportAlerts    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build and deliver the daily validation report",
	Long: `Builds the daily summary for one UTC day and prints it. Delivery is
opt-in per channel: file export, FTP archive, fake-lead webhook alerts, and
Notion publishing with an optional model-written narrative.

Examples:
  # Print today's report
  report

  # Yesterday with the hourly breakdown
  report --date 2026-08-24 --hourly

  # Full delivery run
  report --export xlsx --archive --alerts --notion --narrative`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "report day as YYYY-MM-DD (default today UTC)")
	reportCmd.Flags().BoolVar(&reportHourly, "hourly", false, "include the hourly volume breakdown")
	reportCmd.Flags().BoolVar(&reportNarrative, "narrative", false, "add a model-written narrative summary")
	reportCmd.Flags().StringVar(&reportExport, "export", "", "export the report to the output dir: csv or xlsx")
	reportCmd.Flags().BoolVar(&reportArchive, "archive", false, "upload the export to the FTP archive")
	reportCmd.Flags().BoolVar(&reportNotion, "notion", false, "publish the report to the Notion database")
	reportCmd.Flags().BoolVar(&reportAlerts, "alerts", false, "post fake-lead alerts to the report webhook")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reportExport != "" && reportExport != "csv" && reportExport != "xlsx" {
		return eris.Errorf("report: --export must be csv or xlsx (got %q)", reportExport)
	}

	date := time.Now().UTC()
	if reportDate != "" {
		var err error
		date, err = time.Parse("2006-01-02", reportDate)
		if err != nil {
			return eris.Wrapf(err, "report: parse date %q", reportDate)
		}
	}

	st, err := openStore(ctx, "report")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rep, err := report.NewBuilder(st, cfg).Daily(ctx, date, report.DailyOptions{Hourly: reportHourly})
	if err != nil {
		return err
	}
	fmt.Print(report.FormatDaily(rep))

	var narrative string
	if reportNarrative {
		if cfg.Anthropic.Key == "" {
			return eris.New("report: anthropic key not configured")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key)
		narrative, err = report.Narrative(ctx, client, cfg.Anthropic.Model, rep)
		if err != nil {
			return err
		}
		fmt.Printf("## Narrative\n%s\n", narrative)
	}

	exportPath := ""
	if reportExport != "" {
		exportPath, err = exportDaily(rep, reportExport)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report exported to %s\n", exportPath)
	}

	if reportArchive {
		// The archive takes a file, so archiving without --export implies
		// a CSV export first.
		if exportPath == "" {
			exportPath, err = exportDaily(rep, "csv")
			if err != nil {
				return err
			}
		}
		retry, _ := resilience.FromConfig(cfg.Resilience)
		if err := report.NewArchiver(cfg.Archive, retry).Upload(ctx, exportPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report archived to %s\n", cfg.Archive.URL)
	}

	if reportAlerts {
		if err := report.SendAlerts(ctx, nil, cfg.Report.AlertWebhookURL, rep); err != nil {
			return err
		}
		if len(rep.Alerts) > 0 {
			fmt.Fprintf(os.Stderr, "Sent %d alert(s) to the report webhook.\n", len(rep.Alerts))
		}
	}

	if reportNotion {
		if cfg.Notion.Token == "" {
			return eris.New("report: notion token not configured")
		}
		client := notion.NewClient(cfg.Notion.Token)
		pageID, err := report.PublishDaily(ctx, client, cfg.Notion.ReportDB, rep, narrative)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report published to Notion page %s.\n", pageID)
	}

	return nil
}

func exportDaily(rep *report.DailyReport, kind string) (string, error) {
	dir := cfg.Report.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create output dir %s", dir)
	}

	path := filepath.Join(dir, report.ExportName("daily", kind))
	if kind == "xlsx" {
		if err := report.ExportDailyXLSX(rep, path); err != nil {
			return "", err
		}
		return path, nil
	}
	if err := report.ExportDailyCSV(rep, path); err != nil {
		return "", err
	}
	return path, nil
}
