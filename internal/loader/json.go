package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"unicode"

	"github.com/rotisserie/eris"
)

// readJSON reads either a JSON array of objects or newline-delimited
// objects. The header is the sorted key set of the first object; later
// objects are projected onto it.
func readJSON(ctx context.Context, source string, r io.Reader) (*table, error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if errors.Is(err, io.EOF) {
		return &table{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: read")
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	isArray := first == '['
	if isArray {
		if _, err := dec.Token(); err != nil {
			return nil, &ParseError{Source: source, Row: 0, Field: "record", Reason: err.Error()}
		}
	}

	tbl := &table{}
	var index map[string]int
	for n := 0; ; n++ {
		if n%ctxCheckRows == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "json: context cancelled")
		}
		if isArray && !dec.More() {
			break
		}

		var obj map[string]any
		err := dec.Decode(&obj)
		if !isArray && errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Source: source, Row: n + 1, Field: "record", Reason: err.Error()}
		}

		if index == nil {
			tbl.header, index = jsonHeader(obj)
		}
		row := make([]any, len(tbl.header))
		for k, v := range obj {
			if i, ok := index[normalizeHeader(k)]; ok {
				row[i] = v
			}
		}
		tbl.rows = append(tbl.rows, row)
	}
	return tbl, nil
}

func jsonHeader(obj map[string]any) ([]string, map[string]int) {
	header := make([]string, 0, len(obj))
	for k := range obj {
		header = append(header, normalizeHeader(k))
	}
	sort.Strings(header)
	index := make(map[string]int, len(header))
	for i, k := range header {
		index[k] = i
	}
	return header, index
}

func firstNonSpace(br *bufio.Reader) (rune, error) {
	for {
		r, _, err := br.ReadRune()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(r) {
			return r, br.UnreadRune()
		}
	}
}
