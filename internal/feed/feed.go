// Package feed moves lead export files in and out of the system: delimited
// and workbook exports on the way in, report archives on the way out. CRM
// exports arrive as CSV or XLSX, locally or on an FTP drop, and not always
// in UTF-8.
package feed

// Rows holds one parsed export: the header row and the data rows under it.
// An empty export has a nil Header.
type Rows struct {
	Header  []string
	Records [][]string
}
