// Package loader reads a univariate time series from a tabular source:
// CSV/TSV, XLSX, JSON or NDJSON files (local, remote or inside a ZIP
// archive), a SQLite table or query, or a PostgreSQL query.
package loader

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/fetcher"
	"github.com/sells-group/anomaly-cli/internal/model"
)

// Supported formats.
const (
	FormatCSV      = "csv"
	FormatTSV      = "tsv"
	FormatXLSX     = "xlsx"
	FormatJSON     = "json"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

// Default field names.
const (
	DefaultTimestampField = "timestamp"
	DefaultValueField     = "value"
)

// Options controls how a source is read.
type Options struct {
	Format          string // empty = detect from scheme or extension
	TimestampField  string
	ValueField      string
	TimestampLayout string // Go layout; empty = try the default layouts
	Encoding        string // WHATWG label, e.g. "windows-1252"; empty = UTF-8
	Sheet           string // XLSX sheet name; empty = first sheet
	Table           string // SQLite/PostgreSQL table
	Query           string // SQLite/PostgreSQL query; overrides Table
}

func (o Options) withDefaults() Options {
	if o.TimestampField == "" {
		o.TimestampField = DefaultTimestampField
	}
	if o.ValueField == "" {
		o.ValueField = DefaultValueField
	}
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	return o
}

// table is a decoded source before field selection.
type table struct {
	header []string
	rows   [][]any
}

// Loader turns source references into Series.
type Loader struct {
	fetcher   *fetcher.Fetcher
	connectPG func(ctx context.Context, dsn string) (pgQuerier, error)
}

// New creates a Loader that opens file and URL sources through f. A nil f
// uses a Fetcher with default options.
func New(f *fetcher.Fetcher) *Loader {
	if f == nil {
		f = fetcher.New(fetcher.Options{})
	}
	return &Loader{fetcher: f, connectPG: connectPostgres}
}

// Load reads source with a default Loader.
func Load(ctx context.Context, source string, opts Options) (*model.Series, error) {
	return New(nil).Load(ctx, source, opts)
}

// Load reads source into a Series. Failures are one of SourceNotFoundError,
// EmptySourceError, SchemaError or ParseError, or a wrapped operational
// error.
func (l *Loader) Load(ctx context.Context, source string, opts Options) (*model.Series, error) {
	start := time.Now()
	opts = opts.withDefaults()

	format := opts.Format
	if format == "" {
		format = formatFromScheme(source)
	}

	var (
		tbl *table
		err error
	)
	switch format {
	case FormatSQLite:
		tbl, err = readSQLite(ctx, source, opts)
	case FormatPostgres:
		tbl, err = l.readPostgres(ctx, source, opts)
	default:
		tbl, format, err = l.readFile(ctx, source, format, opts)
	}
	if err != nil {
		return nil, err
	}

	series, err := buildSeries(redact(source), tbl, opts)
	if err != nil {
		return nil, err
	}

	zap.L().Info("loader: loaded series",
		zap.String("source", series.Source),
		zap.String("format", format),
		zap.Int("points", series.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return series, nil
}

// readFile opens a byte-stream source and decodes it. The handle is closed
// before returning.
func (l *Loader) readFile(ctx context.Context, source, format string, opts Options) (*table, string, error) {
	h, err := l.fetcher.Open(ctx, source)
	if err != nil {
		var nf *fetcher.NotFoundError
		if errors.As(err, &nf) {
			return nil, format, &SourceNotFoundError{Source: source, Detail: nf.Detail}
		}
		return nil, format, eris.Wrapf(err, "loader: open %s", source)
	}
	defer h.Close() //nolint:errcheck

	if format == "" {
		format = formatFromName(h.Name)
	}

	var tbl *table
	switch format {
	case FormatCSV, FormatTSV:
		r, derr := decodeText(h, opts.Encoding)
		if derr != nil {
			return nil, format, derr
		}
		delim := ','
		if format == FormatTSV {
			delim = '\t'
		}
		tbl, err = readDelimited(ctx, source, r, delim)
	case FormatJSON:
		r, derr := decodeText(h, opts.Encoding)
		if derr != nil {
			return nil, format, derr
		}
		tbl, err = readJSON(ctx, source, r)
	case FormatXLSX:
		tbl, err = readXLSX(ctx, h, opts.Sheet)
	default:
		return nil, format, eris.Errorf("loader: unsupported format %q", format)
	}
	return tbl, format, err
}

// formatFromScheme recognizes database sources by scheme; everything else
// is left to the file name.
func formatFromScheme(source string) string {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		return FormatSQLite
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return FormatPostgres
	}
	switch strings.ToLower(path.Ext(fetcher.BaseName(source))) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	}
	return ""
}

// formatFromName maps a file extension to a format, defaulting to CSV.
func formatFromName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".xlsx":
		return FormatXLSX
	case ".json", ".ndjson", ".jsonl":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// buildSeries selects the timestamp and value fields and parses each row.
func buildSeries(source string, tbl *table, opts Options) (*model.Series, error) {
	if tbl == nil || len(tbl.header) == 0 {
		return nil, &EmptySourceError{Source: source}
	}

	tsIdx, valIdx := -1, -1
	for i, name := range tbl.header {
		switch normalizeHeader(name) {
		case opts.TimestampField:
			if tsIdx < 0 {
				tsIdx = i
			}
		case opts.ValueField:
			if valIdx < 0 {
				valIdx = i
			}
		}
	}
	var missing []string
	if tsIdx < 0 {
		missing = append(missing, opts.TimestampField)
	}
	if valIdx < 0 {
		missing = append(missing, opts.ValueField)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Source: source, Missing: missing}
	}

	if len(tbl.rows) == 0 {
		return nil, &EmptySourceError{Source: source}
	}

	obs := make([]model.Observation, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		tsCell, valCell := cellAt(row, tsIdx), cellAt(row, valIdx)

		ts, err := parseTimestamp(tsCell, opts.TimestampLayout)
		if err != nil {
			return nil, &ParseError{Source: source, Row: i + 1, Field: opts.TimestampField, Value: cellString(tsCell), Reason: err.Error()}
		}
		v, err := parseValue(valCell)
		if err != nil {
			return nil, &ParseError{Source: source, Row: i + 1, Field: opts.ValueField, Value: cellString(valCell), Reason: err.Error()}
		}
		obs = append(obs, model.Observation{Timestamp: ts, Value: v, Row: i + 1})
	}
	return &model.Series{Source: source, Observations: obs}, nil
}

func cellAt(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

func normalizeHeader(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}

// redact hides URL passwords, e.g. in PostgreSQL DSNs.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.User == nil {
		return source
	}
	return u.Redacted()
}

// Preview returns up to n leading observations.
func Preview(series *model.Series, n int) []model.Observation {
	if series == nil || n <= 0 {
		return nil
	}
	if n > len(series.Observations) {
		n = len(series.Observations)
	}
	out := make([]model.Observation, n)
	copy(out, series.Observations[:n])
	return out
}
