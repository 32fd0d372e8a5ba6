package feed

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX parses one sheet of a workbook. An empty sheet name selects the
// first sheet. The first row is the header and cells are whitespace-trimmed,
// matching the CSV reader.
func ReadXLSX(path, sheet string) (*Rows, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open workbook")
	}

	sh, err := pickSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	out := &Rows{}
	for i, row := range sh.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if i == 0 {
			out.Header = cells
			continue
		}
		out.Records = append(out.Records, cells)
	}
	return out, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sh, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("feed: sheet %q not found", name)
		}
		return sh, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("feed: workbook has no sheets")
	}
	return f.Sheets[0], nil
}
