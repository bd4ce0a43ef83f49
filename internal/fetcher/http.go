package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func (f *Fetcher) openHTTP(ctx context.Context, source string) (*Handle, error) {
	archive, member, _ := splitMember(source)

	body, err := f.download(ctx, archive)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			nf.Source = source
		}
		return nil, err
	}

	if !isZIP(source) {
		return &Handle{ReadCloser: body, Name: BaseName(source)}, nil
	}

	// ZIP needs random access, so spool the archive to a temp file first.
	defer body.Close() //nolint:errcheck
	tmp, err := os.CreateTemp("", "anomaly-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp archive")
	}
	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}
	n, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err != nil {
		cleanup()
		return nil, eris.Wrap(err, "fetcher: spool archive")
	}
	if closeErr != nil {
		cleanup()
		return nil, eris.Wrap(closeErr, "fetcher: close temp archive")
	}
	zap.L().Debug("fetcher: spooled remote archive",
		zap.String("source", archive),
		zap.Int64("bytes", n),
	)
	return openZIPMember(source, tmp.Name(), member, cleanup)
}

// download performs a GET with per-host rate limiting, retrying transient
// failures. A 404 or 410 becomes a NotFoundError.
func (f *Fetcher) download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := retry(ctx, f.opts.MaxAttempts, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		if err := f.limiterFor(req.URL.Host).Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limiter wait")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return eris.Wrapf(err, "fetcher: GET %s", rawURL)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = resp.Body
			return nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			_ = resp.Body.Close()
			return &NotFoundError{Source: rawURL, Detail: resp.Status}
		case isTransientStatus(resp.StatusCode):
			_ = resp.Body.Close()
			return &transientError{err: eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL)}
		default:
			_ = resp.Body.Close()
			return eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
		}
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("fetcher: downloaded", zap.String("url", rawURL), zap.String("name", path.Base(rawURL)))
	return body, nil
}
