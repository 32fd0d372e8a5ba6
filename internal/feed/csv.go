package feed

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the delimited-export reader.
type CSVOptions struct {
	Delimiter  rune // field separator, ',' when zero
	LazyQuotes bool // tolerate stray quotes in sloppy exports
}

// ReadCSV parses a delimited export. The first row is the header and every
// field is whitespace-trimmed. Row width may vary; short rows are kept so
// they surface as per-record parse failures instead of aborting the import.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Rows, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	out := &Rows{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "feed: csv read cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "feed: csv read row")
		}

		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}

		if out.Header == nil {
			out.Header = record
			continue
		}
		out.Records = append(out.Records, record)
	}
}
