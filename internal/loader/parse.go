package loader

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// timestampLayouts are tried in order when no explicit layout is given.
// Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// parseTimestamp converts a cell to a time. Strings go through layout (or
// the default layouts, then integer Unix seconds). Native times pass through.
func parseTimestamp(cell any, layout string) (time.Time, error) {
	switch v := cell.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int32:
		return time.Unix(int64(v), 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case json.Number:
		return parseTimestampString(v.String(), layout)
	case string:
		return parseTimestampString(v, layout)
	case []byte:
		return parseTimestampString(string(v), layout)
	case nil:
		return time.Time{}, eris.Errorf("empty")
	default:
		return time.Time{}, eris.Errorf("unsupported type %T", cell)
	}
}

func parseTimestampString(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.Errorf("empty")
	}
	if layout != "" {
		t, err := time.Parse(layout, s)
		if err != nil {
			return time.Time{}, eris.Errorf("does not match layout %q", layout)
		}
		return t, nil
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, eris.Errorf("unrecognized timestamp format")
}

// parseValue converts a cell to a finite float64.
func parseValue(cell any) (float64, error) {
	var f float64
	switch v := cell.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case int16:
		f = float64(v)
	case int:
		f = float64(v)
	case json.Number:
		return parseValueString(v.String())
	case string:
		return parseValueString(v)
	case []byte:
		return parseValueString(string(v))
	case nil:
		return 0, eris.Errorf("empty")
	default:
		return 0, eris.Errorf("unsupported type %T", cell)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("must be finite")
	}
	return f, nil
}

func parseValueString(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.Errorf("empty")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("must be finite")
	}
	return f, nil
}

// cellString renders a cell for error messages.
func cellString(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// ParseTimestamp parses s with layout, or with the default layouts and then
// integer Unix seconds when layout is empty. Naive times are UTC.
func ParseTimestamp(s, layout string) (time.Time, error) {
	return parseTimestampString(s, layout)
}
