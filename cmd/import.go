package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/ingest"
)

var (
	importFile    string
	importCharset string
	importSource  string
	importSheet   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import validation records from a CSV or XLSX file",
	Long:  "Loads validation results that bypassed the CRM task feed. The file may be a local path or an ftp:// URL; .xlsx opens a workbook, anything else streams CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		im := ingest.NewImporter(st)
		run, err := im.Run(ctx, ingest.Options{
			Path:        importFile,
			Charset:     importCharset,
			Source:      importSource,
			Sheet:       importSheet,
			FTPTimeout:  time.Duration(cfg.Archive.TimeoutSecs) * time.Second,
			FTPUsername: cfg.Archive.Username,
			FTPPassword: cfg.Archive.Password,
		})
		if err != nil {
			return err
		}

		printRunSummary(run)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path or ftp:// URL of the file to import (required)")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "CSV character set (utf-8, latin-1, windows-1252)")
	importCmd.Flags().StringVar(&importSource, "source", "", "acquisition source for rows that carry none")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "workbook sheet to read (default first)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
