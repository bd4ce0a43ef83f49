package fetcher

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type ftpFetcher struct {
	timeout time.Duration
}

// parseFTPURL extracts host:port, path, and credentials from an FTP URL.
// Credentials default to anonymous.
func parseFTPURL(rawURL string) (host, filePath, user, pass string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", "", "", eris.New("ftp: empty path in url")
	}

	user, pass = "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	return host, u.Path, user, pass, nil
}

// ftpReader closes the transfer and the control connection together.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "ftp: quit")
	}
	return nil
}

func (f *ftpFetcher) retrieve(ctx context.Context, rawURL string) (*ftpReader, error) {
	host, filePath, user, pass, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", filePath))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", host)
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(filePath)
	if err != nil {
		_ = conn.Quit()
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable {
			return nil, &NotFoundError{Source: rawURL, Detail: tpErr.Msg}
		}
		return nil, eris.Wrapf(err, "ftp: retrieve %s", filePath)
	}
	return &ftpReader{resp: resp, conn: conn}, nil
}

func (f *Fetcher) openFTP(ctx context.Context, source string) (*Handle, error) {
	if isZIP(source) {
		return nil, eris.Errorf("fetcher: ZIP archives over FTP are not supported: %s", source)
	}
	r, err := f.ftp.retrieve(ctx, source)
	if err != nil {
		return nil, err
	}
	return &Handle{ReadCloser: r, Name: BaseName(source)}, nil
}
