package ingest

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/resilience"
)

// FTPOptions configures the drop-zone fetcher. A zero Retry applies the
// package defaults; permanent FTP failures are never retried.
type FTPOptions struct {
	Timeout time.Duration
	User    string
	Pass    string
	Retry   resilience.RetryConfig
}

// FTPFetcher downloads report files from an FTP drop zone.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a fetcher. Anonymous login is the default.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Pass = "anonymous@"
	}
	return &FTPFetcher{opts: opts}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("ingest: empty path in ftp url")
	}

	return host, path, nil
}

// ftpConnReader ties the response's lifetime to the connection: closing the
// reader also quits the server session.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ingest: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "ingest: quit ftp connection")
	}
	return nil
}

// Download retrieves the file behind ftpURL. The caller must close the
// returned ReadCloser to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: ftp dial")
	}

	if err := conn.Login(f.opts.User, f.opts.Pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ingest: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ingest: ftp retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// DownloadToFile writes the FTP URL's contents to a local file and returns
// bytes written. Transient failures are retried with backoff.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger("ftp", "download")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (int64, error) {
		return f.downloadToFile(ctx, ftpURL, path)
	})
}

func (f *FTPFetcher) downloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: create file")
	}
	defer file.Close()

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrap(err, "ingest: write file")
	}

	return n, nil
}

// ImportFTP downloads a workbook from an FTP drop zone into a temp file and
// imports it. Entries created this way carry the ftp source id.
func (im *Importer) ImportFTP(ctx context.Context, fetcher *FTPFetcher, companyID, ftpURL string) (Summary, error) {
	tmp, err := os.CreateTemp("", "refinery-ingest-*"+filepath.Ext(ftpURL))
	if err != nil {
		return Summary{}, eris.Wrap(err, "ingest: temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	n, err := fetcher.DownloadToFile(ctx, ftpURL, tmpPath)
	if err != nil {
		return Summary{}, err
	}
	zap.L().Info("ftp report downloaded",
		zap.String("url", ftpURL), zap.Int64("bytes", n))

	sourced := *im
	sourced.sourceID = "ftp"
	return sourced.ImportXLSX(ctx, companyID, tmpPath)
}
