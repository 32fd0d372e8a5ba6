package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

type sheetDef struct {
	name string
	rows [][]string
}

// writeWorkbook builds an xlsx file with sheets in the given order.
func writeWorkbook(t *testing.T, sheets ...sheetDef) string {
	t.Helper()

	f := xlsx.NewFile()
	for _, def := range sheets {
		sh, err := f.AddSheet(def.name)
		require.NoError(t, err)
		for _, row := range def.rows {
			r := sh.AddRow()
			for _, val := range row {
				r.AddCell().SetString(val)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_FirstSheet(t *testing.T) {
	path := writeWorkbook(t, sheetDef{
		name: "Leads",
		rows: [][]string{
			{"Lead ID", "Email", "Source"},
			{"00Q1", "ana@acme.com", "Web"},
			{"00Q2", "luis@forge.io", "PaidSocial"},
		},
	})

	rows, err := ReadXLSX(path, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Lead ID", "Email", "Source"}, rows.Header)
	require.Len(t, rows.Records, 2)
	assert.Equal(t, []string{"00Q1", "ana@acme.com", "Web"}, rows.Records[0])
	assert.Equal(t, []string{"00Q2", "luis@forge.io", "PaidSocial"}, rows.Records[1])
}

func TestReadXLSX_SheetByName(t *testing.T) {
	path := writeWorkbook(t,
		sheetDef{name: "Summary", rows: [][]string{{"ignore", "me"}}},
		sheetDef{name: "Leads", rows: [][]string{
			{"Lead ID", "Source"},
			{"00Q1", "Web"},
		}},
	)

	rows, err := ReadXLSX(path, "Leads")
	require.NoError(t, err)

	assert.Equal(t, []string{"Lead ID", "Source"}, rows.Header)
	require.Len(t, rows.Records, 1)
	assert.Equal(t, []string{"00Q1", "Web"}, rows.Records[0])
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := writeWorkbook(t, sheetDef{name: "Leads", rows: [][]string{{"Lead ID"}}})

	_, err := ReadXLSX(path, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestReadXLSX_EmptySheet(t *testing.T) {
	path := writeWorkbook(t, sheetDef{name: "Leads"})

	rows, err := ReadXLSX(path, "")
	require.NoError(t, err)
	assert.Nil(t, rows.Header)
	assert.Empty(t, rows.Records)
}

func TestReadXLSX_TrimsCells(t *testing.T) {
	path := writeWorkbook(t, sheetDef{
		name: "Leads",
		rows: [][]string{
			{" Lead ID ", " Email "},
			{" 00Q1 ", " ana@acme.com "},
		},
	})

	rows, err := ReadXLSX(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead ID", "Email"}, rows.Header)
	assert.Equal(t, []string{"00Q1", "ana@acme.com"}, rows.Records[0])
}

func TestReadXLSX_OpenError(t *testing.T) {
	_, err := ReadXLSX("/nonexistent/export.xlsx", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: open workbook")
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not an xlsx file"), 0o644))

	_, err := ReadXLSX(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: open workbook")
}
