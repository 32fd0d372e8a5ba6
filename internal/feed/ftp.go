package feed

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures FTP transfers.
type FTPOptions struct {
	Timeout  time.Duration
	Username string // default "anonymous"
	Password string // default "anonymous@"
}

// FTPClient moves files to and from FTP drops. Each transfer opens its own
// connection, so one client can be shared across imports and archive uploads.
type FTPClient struct {
	opts FTPOptions
}

// NewFTPClient returns a client with anonymous credentials and a 30s dial
// timeout unless the options say otherwise.
func NewFTPClient(opts FTPOptions) *FTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Username == "" {
		opts.Username = "anonymous"
	}
	if opts.Password == "" {
		opts.Password = "anonymous@"
	}
	return &FTPClient{opts: opts}
}

// Download retrieves the file named by ftpURL. Closing the returned reader
// releases both the transfer and the control connection.
func (c *FTPClient) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, remote, err := splitFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp download", zap.String("host", host), zap.String("remote", remote))

	conn, err := c.connect(ctx, host)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "feed: ftp retrieve")
	}

	return &transferReader{resp: resp, conn: conn}, nil
}

// DownloadToFile fetches ftpURL into dest and reports bytes written.
func (c *FTPClient) DownloadToFile(ctx context.Context, ftpURL, dest string) (int64, error) {
	rc, err := c.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "feed: create local file")
	}
	defer out.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, eris.Wrap(err, "feed: write local file")
	}
	return n, nil
}

// Upload stores r at the path named by ftpURL.
func (c *FTPClient) Upload(ctx context.Context, ftpURL string, r io.Reader) error {
	host, remote, err := splitFTPURL(ftpURL)
	if err != nil {
		return err
	}

	zap.L().Debug("ftp upload", zap.String("host", host), zap.String("remote", remote))

	conn, err := c.connect(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Stor(remote, r); err != nil {
		return eris.Wrap(err, "feed: ftp store")
	}
	return nil
}

// connect dials and logs in. The caller owns the connection and must Quit.
func (c *FTPClient) connect(ctx context.Context, host string) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(c.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "feed: ftp dial")
	}

	if err := conn.Login(c.opts.Username, c.opts.Password); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "feed: ftp login")
	}
	return conn, nil
}

// splitFTPURL breaks an ftp:// URL into a dialable host:port and remote path.
// Port 21 is assumed when the URL names none.
func splitFTPURL(rawURL string) (host, remote string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "feed: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("feed: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" {
		return "", "", eris.New("feed: ftp url has no path")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

// transferReader ties a data transfer to its control connection so closing
// the reader tears both down.
type transferReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *transferReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *transferReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "feed: close ftp transfer")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "feed: quit ftp connection")
	}
	return nil
}
