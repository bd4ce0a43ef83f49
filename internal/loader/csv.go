package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// ctxCheckRows is how many rows are read between context checks.
const ctxCheckRows = 1024

// readDelimited reads a header row followed by data rows. Rows may have
// varying widths; blank lines are skipped.
func readDelimited(ctx context.Context, source string, r io.Reader, delim rune) (*table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &table{}, nil
	}
	if err != nil {
		return nil, csvError(source, err)
	}

	tbl := &table{header: header}
	for n := 0; ; n++ {
		if n%ctxCheckRows == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return tbl, nil
		}
		if err != nil {
			return nil, csvError(source, err)
		}
		row := make([]any, len(record))
		for i, field := range record {
			row[i] = field
		}
		tbl.rows = append(tbl.rows, row)
	}
}

// csvError turns a malformed record into a ParseError. Row counts data rows,
// so the header line is subtracted.
func csvError(source string, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &ParseError{Source: source, Row: max(perr.StartLine-1, 0), Field: "record", Reason: perr.Err.Error()}
	}
	return eris.Wrap(err, "csv: read row")
}
