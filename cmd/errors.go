package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/anomaly-cli/internal/loader"
	"github.com/sells-group/anomaly-cli/internal/lof"
)

// runError carries a user-facing message while keeping the cause matchable.
type runError struct {
	msg string
	err error
}

func (e *runError) Error() string { return e.msg }

func (e *runError) Unwrap() error { return e.err }

// describeError turns a detection failure into a message naming its kind.
// Errors outside the taxonomy pass through unchanged.
func describeError(err error) error {
	var (
		notFound     *loader.SourceNotFoundError
		empty        *loader.EmptySourceError
		schema       *loader.SchemaError
		parse        *loader.ParseError
		invalid      *lof.InvalidParameterError
		insufficient *lof.InsufficientDataError
	)

	var msg string
	switch {
	case errors.As(err, &notFound):
		msg = fmt.Sprintf("source not found: %s", notFound.Source)
		if notFound.Detail != "" {
			msg += " (" + notFound.Detail + ")"
		}
	case errors.As(err, &empty):
		msg = fmt.Sprintf("source has no data rows: %s", empty.Source)
	case errors.As(err, &schema):
		msg = fmt.Sprintf("source %s is missing required field(s): %s", schema.Source, strings.Join(schema.Missing, ", "))
	case errors.As(err, &parse):
		msg = fmt.Sprintf("cannot parse %s %q at row %d of %s", parse.Field, parse.Value, parse.Row, parse.Source)
		if parse.Reason != "" {
			msg += ": " + parse.Reason
		}
	case errors.As(err, &invalid):
		msg = fmt.Sprintf("invalid parameter %s=%v: %s", invalid.Name, invalid.Value, invalid.Reason)
	case errors.As(err, &insufficient):
		msg = fmt.Sprintf("not enough data: %d point(s) but neighborhood size %d needs at least %d",
			insufficient.Points, insufficient.NeighborhoodSize, insufficient.NeighborhoodSize+1)
	default:
		return err
	}
	return &runError{msg: msg, err: err}
}
