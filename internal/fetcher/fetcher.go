// Package fetcher opens raw byte streams for source references: local files,
// members of ZIP archives, and HTTP(S) or FTP URLs.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ZIPMemberSep separates an archive path from the member to read,
// e.g. "nab.zip#realTraffic/speed_t4013.csv".
const ZIPMemberSep = "#"

// NotFoundError reports a source that does not exist: a missing file or
// archive member, an HTTP 404, or an FTP 550.
type NotFoundError struct {
	Source string
	Detail string
}

func (e *NotFoundError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("fetcher: source %q not found", e.Source)
	}
	return fmt.Sprintf("fetcher: source %q not found: %s", e.Source, e.Detail)
}

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int // total HTTP attempts for transient failures; 1 disables retry
	UserAgent   string
	HostRate    rate.Limit // per-host HTTP request rate
}

// Handle is an open source. Name is the base name of the underlying file or
// member and drives format detection.
type Handle struct {
	io.ReadCloser
	Name string
}

// Fetcher resolves source references to open handles.
type Fetcher struct {
	opts   Options
	client *http.Client
	ftp    *ftpFetcher

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher, filling zero options with defaults.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "anomaly-cli/1.0"
	}
	if opts.HostRate == 0 {
		opts.HostRate = 5
	}
	return &Fetcher{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		ftp:      &ftpFetcher{timeout: opts.Timeout},
		limiters: make(map[string]*rate.Limiter),
	}
}

// Open resolves source and returns an open handle. The caller must Close it.
func (f *Fetcher) Open(ctx context.Context, source string) (*Handle, error) {
	scheme := schemeOf(source)
	switch scheme {
	case "http", "https":
		return f.openHTTP(ctx, source)
	case "ftp":
		return f.openFTP(ctx, source)
	case "", "file":
		return openLocal(strings.TrimPrefix(source, "file://"))
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %q", scheme, source)
	}
}

// IsRemote reports whether source is fetched over the network.
func IsRemote(source string) bool {
	switch schemeOf(source) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// BaseName returns the name used for format detection: the ZIP member when
// one is selected, otherwise the last path element.
func BaseName(source string) string {
	if _, member, ok := splitMember(source); ok {
		return path.Base(member)
	}
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return path.Base(u.Path)
	}
	return filepath.Base(source)
}

// schemeOf returns the lower-cased URL scheme, or "" for plain paths.
// Single-letter schemes are Windows drive letters, not URLs.
func schemeOf(source string) string {
	i := strings.Index(source, "://")
	if i <= 1 {
		return ""
	}
	return strings.ToLower(source[:i])
}

// splitMember splits "archive.zip#member". ok is false when no member is
// selected.
func splitMember(source string) (archive, member string, ok bool) {
	i := strings.LastIndex(source, ZIPMemberSep)
	if i < 0 || !strings.HasSuffix(strings.ToLower(source[:i]), ".zip") {
		return source, "", false
	}
	return source[:i], source[i+1:], true
}

func isZIP(source string) bool {
	archive, _, _ := splitMember(source)
	u, err := url.Parse(archive)
	if err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		archive = u.Path
	}
	return strings.EqualFold(path.Ext(archive), ".zip")
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.HostRate, 1)
		f.limiters[host] = lim
	}
	return lim
}
