package loader

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText returns r transcoded to UTF-8. label is a WHATWG encoding name;
// empty means UTF-8. A byte order mark, if present, wins over label and is
// stripped.
func decodeText(r io.Reader, label string) (io.Reader, error) {
	var enc encoding.Encoding = unicode.UTF8
	if label = strings.TrimSpace(label); label != "" {
		e, err := htmlindex.Get(label)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: unsupported encoding %q", label)
		}
		enc = e
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
