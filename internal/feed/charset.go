package feed

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeReader wraps r so it yields UTF-8 regardless of the export's source
// encoding. Charset names are case-insensitive; an empty or UTF-8 name
// returns r unchanged.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
