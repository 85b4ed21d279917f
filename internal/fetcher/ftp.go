package fetcher

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

// FTPFetcher pulls seed drops from anonymous FTP servers. Some directory
// partners still publish their exports that way, so the import command
// accepts ftp:// sources next to http ones.
type FTPFetcher struct {
	dialTimeout time.Duration
}

// NewFTPFetcher creates an FTP fetcher. A zero dial timeout means 30s.
func NewFTPFetcher(dialTimeout time.Duration) *FTPFetcher {
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	return &FTPFetcher{dialTimeout: dialTimeout}
}

// splitFTPSource turns an ftp:// seed URL into a dialable address and the
// remote file path. Port 21 is assumed when the URL names none.
func splitFTPSource(source string) (addr, remote string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("fetcher: not an ftp url: %q", source)
	}

	addr = u.Host
	if _, _, hostErr := net.SplitHostPort(addr); hostErr != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	if u.Path == "" {
		return "", "", eris.Errorf("fetcher: ftp url %q names no file", source)
	}
	return addr, u.Path, nil
}

// ftpTransfer ties a data transfer to its control connection. Closing the
// reader finishes the transfer and logs the session out.
type ftpTransfer struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (t *ftpTransfer) Read(p []byte) (int, error) {
	return t.resp.Read(p)
}

func (t *ftpTransfer) Close() error {
	respErr := t.resp.Close()
	quitErr := t.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: finish ftp transfer")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: ftp quit")
	}
	return nil
}

// Download logs into the server anonymously and starts retrieving the
// remote file. The caller owns the returned reader and must close it to
// release the connection.
func (f *FTPFetcher) Download(ctx context.Context, source string) (io.ReadCloser, error) {
	addr, remote, err := splitFTPSource(source)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("fetching seed over ftp",
		zap.String("addr", addr), zap.String("remote", remote))

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.dialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: dial %s", addr)
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "fetcher: anonymous login")
	}
	resp, err := conn.Retr(remote)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: retrieve %s", remote)
	}
	return &ftpTransfer{resp: resp, conn: conn}, nil
}

// DownloadToFile retrieves the remote file into path and reports the
// bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, source, path string) (int64, error) {
	rc, err := f.Download(ctx, source)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", path)
	}
	defer out.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}
