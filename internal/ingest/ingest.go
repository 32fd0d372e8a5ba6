// Package ingest imports validation records from CSV and XLSX files, local
// or FTP-hosted, for backfills and for lead sources that bypass the CRM
// task feed. Rows are header-mapped; a malformed row is counted and
// skipped, never coerced.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/feed"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/store"
)

// Options configures an import pass.
type Options struct {
	// Path is a local file path or an ftp:// URL. The extension picks the
	// format: .xlsx opens a workbook, anything else streams CSV.
	Path string
	// Charset names the CSV encoding; empty means UTF-8. Workbook content
	// is always UTF-8 and ignores this.
	Charset string
	// Source fills the acquisition source on rows that carry none.
	Source string
	// Sheet names the workbook sheet to read; empty means the first sheet.
	Sheet string

	FTPTimeout  time.Duration
	FTPUsername string
	FTPPassword string
}

// Importer loads validation records from files into the store.
type Importer struct {
	store store.Store
}

func NewImporter(st store.Store) *Importer {
	return &Importer{store: st}
}

// Run executes an import pass under a run-log entry. The returned run
// carries final status and counters; on failure it is returned alongside
// the error with the failure already recorded.
func (im *Importer) Run(ctx context.Context, opts Options) (*store.ETLRun, error) {
	run, err := im.store.StartRun(ctx, store.RunKindImport)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: start run")
	}
	log := runLogger(run, opts.Path)

	counters, err := im.load(ctx, opts, log)
	if err != nil {
		im.failRun(ctx, run, err, log)
		return run, err
	}
	return run, im.completeRun(ctx, run, *counters, log)
}

func (im *Importer) load(ctx context.Context, opts Options, log *zap.Logger) (*store.RunCounters, error) {
	rows, err := readRows(ctx, opts)
	if err != nil {
		return nil, err
	}

	var counters store.RunCounters
	counters.TasksFetched = len(rows.Records)
	if len(rows.Records) == 0 {
		log.Info("no data rows in file")
		return &counters, nil
	}

	colIdx := mapColumns(rows.Header)
	if err := checkColumns(colIdx); err != nil {
		return nil, err
	}

	records := make([]model.ValidationRecord, 0, len(rows.Records))
	for i, row := range rows.Records {
		rec, err := buildRecord(row, colIdx, opts.Source)
		if err != nil {
			counters.ParseErrors++
			// Row numbers are 1-based and count the header.
			log.Warn("row skipped", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	counters.Parsed = len(records)
	if len(records) == 0 {
		return &counters, nil
	}

	stored, err := im.store.UpsertValidations(ctx, records)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: store records")
	}
	counters.Stored = stored
	counters.Skipped = len(records) - stored
	return &counters, nil
}

// readRows opens the source and parses it into header plus data rows.
func readRows(ctx context.Context, opts Options) (*feed.Rows, error) {
	isFTP := strings.HasPrefix(opts.Path, "ftp://")
	isXLSX := strings.EqualFold(filepath.Ext(opts.Path), ".xlsx")

	switch {
	case isXLSX && isFTP:
		local, cleanup, err := fetchTemp(ctx, opts)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return feed.ReadXLSX(local, opts.Sheet)
	case isXLSX:
		return feed.ReadXLSX(opts.Path, opts.Sheet)
	case isFTP:
		rc, err := newFTP(opts).Download(ctx, opts.Path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: ftp download")
		}
		defer rc.Close()
		return readCSV(ctx, rc, opts.Charset)
	default:
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open file")
		}
		defer f.Close()
		return readCSV(ctx, f, opts.Charset)
	}
}

func newFTP(opts Options) *feed.FTPClient {
	return feed.NewFTPClient(feed.FTPOptions{
		Timeout:  opts.FTPTimeout,
		Username: opts.FTPUsername,
		Password: opts.FTPPassword,
	})
}

// fetchTemp downloads an FTP-hosted workbook to a temp file; the workbook
// reader needs a local path.
func fetchTemp(ctx context.Context, opts Options) (string, func(), error) {
	tmp, err := os.CreateTemp("", "leadval_import_*.xlsx")
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: temp file")
	}
	path := tmp.Name()
	tmp.Close()

	if _, err := newFTP(opts).DownloadToFile(ctx, opts.Path, path); err != nil {
		os.Remove(path)
		return "", nil, eris.Wrap(err, "ingest: ftp download")
	}
	return path, func() { os.Remove(path) }, nil
}

func readCSV(ctx context.Context, r io.Reader, charset string) (*feed.Rows, error) {
	decoded, err := feed.DecodeReader(r, charset)
	if err != nil {
		return nil, err
	}
	return feed.ReadCSV(ctx, decoded, feed.CSVOptions{})
}

func (im *Importer) completeRun(ctx context.Context, run *store.ETLRun, counters store.RunCounters, log *zap.Logger) error {
	if err := im.store.CompleteRun(ctx, run.ID, counters); err != nil {
		return eris.Wrap(err, "ingest: complete run")
	}
	run.Status = store.RunCompleted
	run.Counters = counters
	log.Info("import complete",
		zap.Int("rows", counters.TasksFetched),
		zap.Int("converted", counters.Parsed),
		zap.Int("bad_rows", counters.ParseErrors),
		zap.Int("stored", counters.Stored),
		zap.Int("skipped", counters.Skipped),
	)
	return nil
}

func (im *Importer) failRun(ctx context.Context, run *store.ETLRun, cause error, log *zap.Logger) {
	if err := im.store.FailRun(ctx, run.ID, cause.Error()); err != nil {
		log.Error("failed to record run failure", zap.Error(err))
	}
	run.Status = store.RunFailed
	run.Error = cause.Error()
	log.Error("import failed", zap.Error(cause))
}

func runLogger(run *store.ETLRun, path string) *zap.Logger {
	return zap.L().With(
		zap.String("component", "import"),
		zap.String("run_id", run.ID),
		zap.String("file", filepath.Base(path)),
	)
}
