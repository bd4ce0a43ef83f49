package loader

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrEmptySource    = errors.New("empty source")
	ErrSchema         = errors.New("schema mismatch")
	ErrParse          = errors.New("parse failure")
)

// SourceNotFoundError reports a data source that does not exist.
type SourceNotFoundError struct {
	Source string
	Detail string
}

func (e *SourceNotFoundError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("loader: source %q not found", e.Source)
	}
	return fmt.Sprintf("loader: source %q not found: %s", e.Source, e.Detail)
}

func (e *SourceNotFoundError) Unwrap() error { return ErrSourceNotFound }

// EmptySourceError reports a source with no data rows.
type EmptySourceError struct {
	Source string
}

func (e *EmptySourceError) Error() string {
	return fmt.Sprintf("loader: source %q has no data rows", e.Source)
}

func (e *EmptySourceError) Unwrap() error { return ErrEmptySource }

// SchemaError reports required fields absent from the source.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("loader: source %q is missing required field(s): %s", e.Source, strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ParseError reports a cell that could not be parsed. Row is the 1-based
// data row, not counting the header.
type ParseError struct {
	Source string
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("loader: %s row %d: cannot parse %s %q", e.Source, e.Row, e.Field, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ParseError) Unwrap() error { return ErrParse }
