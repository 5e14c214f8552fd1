package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableData accumulates rows for a columned table.
type TableData struct {
	headers []string
	rows    [][]string
}

// NewTableData creates an empty table with the given column headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

// AddRow appends one row to the table.
func (t *TableData) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// PrintTable renders the table to w with uppercased headers and no borders.
func PrintTable(w io.Writer, data *TableData) error {
	table := newTable(w, "")
	table.SetAutoFormatHeaders(true)
	table.SetHeader(data.headers)
	for _, row := range data.rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

// SimpleTable renders key-value pairs as a headerless two-column table.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w, ":")
	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
	return nil
}

// newTable returns a borderless left-aligned writer; colSep separates the
// columns ("" for plain padding).
func newTable(w io.Writer, colSep string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(colSep)
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
