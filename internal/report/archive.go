package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/feed"
	"github.com/sells-group/leadval-cli/internal/resilience"
)

// Archiver uploads generated report files to the FTP archive.
type Archiver struct {
	cfg   config.ArchiveConfig
	retry resilience.RetryConfig
}

// NewArchiver creates an archiver with retry on transient upload failures.
func NewArchiver(cfg config.ArchiveConfig, retry resilience.RetryConfig) *Archiver {
	retry.OnRetry = resilience.RetryLogger("archive", "upload report")
	return &Archiver{cfg: cfg, retry: retry}
}

// Upload sends the local file to the archive under its base name.
func (a *Archiver) Upload(ctx context.Context, path string) error {
	if a.cfg.URL == "" {
		return eris.New("report: archive URL not configured")
	}

	remote := strings.TrimRight(a.cfg.URL, "/") + "/" + filepath.Base(path)
	ftp := feed.NewFTPClient(feed.FTPOptions{
		Timeout:  time.Duration(a.cfg.TimeoutSecs) * time.Second,
		Username: a.cfg.Username,
		Password: a.cfg.Password,
	})

	err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		// Reopen per attempt; a consumed reader cannot be resent.
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrap(err, "report: open export file")
		}
		defer f.Close()
		return ftp.Upload(ctx, remote, f)
	})
	if err != nil {
		return eris.Wrap(err, "report: archive upload")
	}

	zap.L().Info("report archived",
		zap.String("file", filepath.Base(path)),
		zap.String("remote", remote),
	)
	return nil
}
