package loader

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLoad_CSV(t *testing.T) {
	p := writeSource(t, "speed_t4013.csv",
		"timestamp,value,label\n"+
			"2015-09-17 16:08:00,59,a\n"+
			"2015-09-17 16:13:00,\"61.5\",b\n")

	series, err := Load(context.Background(), p, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, p, series.Source)
	assert.Equal(t, ts("2015-09-17 16:08:00"), series.Observations[0].Timestamp)
	assert.Equal(t, 59.0, series.Observations[0].Value)
	assert.Equal(t, 1, series.Observations[0].Row)
	assert.Equal(t, 61.5, series.Observations[1].Value)
	assert.Equal(t, 2, series.Observations[1].Row)
}

func TestLoad_CSVWithBOMAndPaddedHeader(t *testing.T) {
	p := writeSource(t, "bom.csv", "\ufeff timestamp , value\n2015-09-17 16:08:00,1\n")

	series, err := Load(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, series.Values())
}

func TestLoad_TSV(t *testing.T) {
	p := writeSource(t, "series.tsv", "timestamp\tvalue\n2015-09-17\t3\n2015-09-18\t4\n")

	series, err := Load(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, series.Values())
	assert.Equal(t, time.Date(2015, 9, 18, 0, 0, 0, 0, time.UTC), series.Observations[1].Timestamp)
}

func TestLoad_ExplicitFormatOverridesExtension(t *testing.T) {
	p := writeSource(t, "series.txt", "timestamp\tvalue\n2015-09-17\t3\n")

	series, err := Load(context.Background(), p, Options{Format: "TSV"})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, series.Values())
}

func TestLoad_CustomFields(t *testing.T) {
	p := writeSource(t, "custom.csv", "when,speed\n2015-09-17T16:08:00Z,7\n")

	series, err := Load(context.Background(), p, Options{TimestampField: "when", ValueField: "speed"})
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, series.Values())
}

func TestLoad_TimestampLayout(t *testing.T) {
	p := writeSource(t, "eu.csv", "timestamp,value\n17.09.2015 16:08,1\n")

	series, err := Load(context.Background(), p, Options{TimestampLayout: "02.01.2006 15:04"})
	require.NoError(t, err)
	assert.Equal(t, ts("2015-09-17 16:08:00"), series.Observations[0].Timestamp)

	_, err = Load(context.Background(), p, Options{})
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "timestamp", pe.Field)
}

func TestLoad_WindowsEncoding(t *testing.T) {
	p := writeSource(t, "latin.csv", "timestamp,value,note\n2015-09-17,1,caf\xe9\n")

	series, err := Load(context.Background(), p, Options{Encoding: "windows-1252"})
	require.NoError(t, err)
	assert.Equal(t, 1, series.Len())

	_, err = Load(context.Background(), p, Options{Encoding: "klingon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestLoad_JSONArray(t *testing.T) {
	p := writeSource(t, "series.json", `[
  {"timestamp": "2015-09-17 16:08:00", "value": 59, "extra": true},
  {"timestamp": "2015-09-17 16:13:00", "value": "61"}
]`)

	series, err := Load(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{59, 61}, series.Values())
}

func TestLoad_NDJSON(t *testing.T) {
	p := writeSource(t, "series.ndjson",
		`{"timestamp": 1442505600, "value": 1.5}`+"\n"+
			`{"timestamp": 1442505900, "value": 2.5}`+"\n")

	series, err := Load(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, series.Values())
	assert.Equal(t, time.Unix(1442505600, 0).UTC(), series.Observations[0].Timestamp)
}

func TestLoad_JSONMalformed(t *testing.T) {
	p := writeSource(t, "bad.json", `[{"timestamp": "2015-09-17", "value": 1}, {"timestamp": ]`)

	_, err := Load(context.Background(), p, Options{})
	assert.True(t, errors.Is(err, ErrParse))
}

func TestLoad_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	_, err := f.AddSheet("Notes")
	require.NoError(t, err)
	sheet, err := f.AddSheet("Data")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"timestamp", "value"},
		{"2015-09-17 16:08:00", "59"},
		{"2015-09-17 16:13:00", "61.25"},
	} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	p := filepath.Join(t.TempDir(), "series.xlsx")
	require.NoError(t, f.Save(p))

	series, err := Load(context.Background(), p, Options{Sheet: "Data"})
	require.NoError(t, err)
	assert.Equal(t, []float64{59, 61.25}, series.Values())

	_, err = Load(context.Background(), p, Options{Sheet: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)

	// First sheet has no rows.
	_, err = Load(context.Background(), p, Options{})
	assert.True(t, errors.Is(err, ErrEmptySource))
}

func TestLoad_ZIPMember(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nab.zip")
	out, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("realTraffic/speed_t4013.tsv")
	require.NoError(t, err)
	_, err = w.Write([]byte("timestamp\tvalue\n2015-09-17\t8\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	series, err := Load(context.Background(), p+"#realTraffic/speed_t4013.tsv", Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{8}, series.Values())

	_, err = Load(context.Background(), p+"#realTraffic/missing.csv", Options{})
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestLoad_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/series.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, "timestamp,value\n2015-09-17,1\n2015-09-18,2\n")
	}))
	defer srv.Close()

	series, err := Load(context.Background(), srv.URL+"/data/series.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, series.Values())

	_, err = Load(context.Background(), srv.URL+"/data/missing.csv", Options{})
	var nf *SourceNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, srv.URL+"/data/missing.csv", nf.Source)
}

func TestLoad_SourceNotFound(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing.csv")

	_, err := Load(context.Background(), p, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceNotFound))

	var nf *SourceNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, p, nf.Source)
}

func TestLoad_Empty(t *testing.T) {
	tests := map[string]string{
		"zero bytes":  "",
		"header only": "timestamp,value\n",
		"blank lines": "\n\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			p := writeSource(t, "empty.csv", content)
			_, err := Load(context.Background(), p, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEmptySource))
		})
	}
}

func TestLoad_MissingValueField(t *testing.T) {
	p := writeSource(t, "novalue.csv", "timestamp,speed\n2015-09-17,1\n")

	_, err := Load(context.Background(), p, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchema))

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"value"}, se.Missing)
	assert.Contains(t, err.Error(), "value")
}

func TestLoad_MissingBothFields(t *testing.T) {
	p := writeSource(t, "neither.csv", "a,b\n1,2\n")

	_, err := Load(context.Background(), p, Options{})
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"timestamp", "value"}, se.Missing)
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		row     int
		field   string
		value   string
	}{
		{"bad timestamp", "timestamp,value\n2015-09-17,1\nyesterday,2\n", 2, "timestamp", "yesterday"},
		{"bad value", "timestamp,value\n2015-09-17,abc\n", 1, "value", "abc"},
		{"empty value", "timestamp,value\n2015-09-17,1\n2015-09-18,\n", 2, "value", ""},
		{"nan value", "timestamp,value\n2015-09-17,NaN\n", 1, "value", "NaN"},
		{"inf value", "timestamp,value\n2015-09-17,+Inf\n", 1, "value", "+Inf"},
		{"short row", "timestamp,value\n2015-09-17\n", 1, "value", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeSource(t, "bad.csv", tt.content)
			_, err := Load(context.Background(), p, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.row, pe.Row)
			assert.Equal(t, tt.field, pe.Field)
			assert.Equal(t, tt.value, pe.Value)
		})
	}
}

func TestLoad_ContextCancelled(t *testing.T) {
	p := writeSource(t, "series.csv", "timestamp,value\n2015-09-17,1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, p, Options{})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	p := writeSource(t, "series.csv", "timestamp,value\n2015-09-17,1\n2015-09-18,2\n2015-09-19,3\n")
	series, err := Load(context.Background(), p, Options{})
	require.NoError(t, err)

	head := Preview(series, 2)
	require.Len(t, head, 2)
	assert.Equal(t, 1.0, head[0].Value)
	assert.Equal(t, 2.0, head[1].Value)

	head[0].Value = 99
	assert.Equal(t, 1.0, series.Observations[0].Value)

	assert.Len(t, Preview(series, 10), 3)
	assert.Nil(t, Preview(series, 0))
	assert.Nil(t, Preview(nil, 5))
}

func TestFormatDetection(t *testing.T) {
	assert.Equal(t, FormatSQLite, formatFromScheme("sqlite://data/nab.db"))
	assert.Equal(t, FormatSQLite, formatFromScheme("data/nab.sqlite3"))
	assert.Equal(t, FormatPostgres, formatFromScheme("postgres://u:p@localhost/nab"))
	assert.Equal(t, FormatPostgres, formatFromScheme("postgresql://localhost/nab"))
	assert.Equal(t, "", formatFromScheme("data/nab.csv"))

	assert.Equal(t, FormatCSV, formatFromName("a.csv"))
	assert.Equal(t, FormatCSV, formatFromName("a"))
	assert.Equal(t, FormatTSV, formatFromName("a.TSV"))
	assert.Equal(t, FormatXLSX, formatFromName("a.xlsx"))
	assert.Equal(t, FormatJSON, formatFromName("a.jsonl"))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2015, 9, 17, 16, 8, 0, 0, time.UTC)
	for _, in := range []any{
		"2015-09-17T16:08:00Z",
		"2015-09-17T18:08:00+02:00",
		"2015-09-17 16:08:00",
		"2015-09-17T16:08:00",
		"2015-09-17 16:08",
		"09/17/2015 16:08",
		"1442506080",
		int64(1442506080),
		want.In(time.FixedZone("x", 3600)),
	} {
		got, err := parseTimestamp(in, "")
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%v -> %v", in, got)
	}

	_, err := parseTimestamp("not a time", "")
	assert.Error(t, err)
	_, err = parseTimestamp(nil, "")
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://nab:xxxxx@db:5432/nab", redact("postgres://nab:secret@db:5432/nab"))
	assert.Equal(t, "data/series.csv", redact("data/series.csv"))
}

func createSQLite(t *testing.T, stmts ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "nab.db")
	db, err := sql.Open("sqlite", p)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return p
}

func TestLoad_SQLite(t *testing.T) {
	p := createSQLite(t,
		`CREATE TABLE readings (timestamp TEXT, value REAL, sensor TEXT)`,
		`INSERT INTO readings VALUES ('2015-09-17 16:08:00', 59, 'a'), ('2015-09-17 16:13:00', 61, 'b'), ('2015-09-17 16:18:00', 65, 'a')`,
	)

	series, err := Load(context.Background(), "sqlite://"+p, Options{Table: "readings"})
	require.NoError(t, err)
	assert.Equal(t, []float64{59, 61, 65}, series.Values())

	// Sole table is picked automatically; plain .db paths are recognized.
	series, err = Load(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, series.Len())

	series, err = Load(context.Background(), "sqlite://"+p, Options{
		Query:          `SELECT timestamp AS ts, value AS v FROM readings WHERE sensor = 'a'`,
		TimestampField: "ts",
		ValueField:     "v",
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{59, 65}, series.Values())
}

func TestLoad_SQLiteNotFound(t *testing.T) {
	_, err := Load(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "missing.db"), Options{Table: "readings"})
	assert.True(t, errors.Is(err, ErrSourceNotFound))

	p := createSQLite(t, `CREATE TABLE readings (timestamp TEXT, value REAL)`)
	_, err = Load(context.Background(), "sqlite://"+p, Options{Table: "nope"})
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestLoad_SQLiteEmptyTable(t *testing.T) {
	p := createSQLite(t, `CREATE TABLE readings (timestamp TEXT, value REAL)`)

	_, err := Load(context.Background(), "sqlite://"+p, Options{Table: "readings"})
	assert.True(t, errors.Is(err, ErrEmptySource))
}

func TestLoad_SQLiteAmbiguousTable(t *testing.T) {
	p := createSQLite(t,
		`CREATE TABLE a (timestamp TEXT, value REAL)`,
		`CREATE TABLE b (timestamp TEXT, value REAL)`,
	)

	_, err := Load(context.Background(), "sqlite://"+p, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 2 tables")
}
