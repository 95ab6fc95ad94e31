package report

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Alignment selects a column's horizontal alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

func (a Alignment) text() text.Align {
	if a == AlignRight {
		return text.AlignRight
	}
	return text.AlignLeft
}

// tableStyle is the rounded box style with headers printed as given.
var tableStyle = func() table.Style {
	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	s.Format.Footer = text.FormatDefault
	return s
}()

// Table renders headers and rows as a box table. Rows shorter than headers
// are padded and extra cells are dropped. Columns without an alignment are
// left aligned.
func Table(headers []string, rows [][]string, aligns []Alignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(tableStyle)
	tw.AppendHeader(cells(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(cells(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		align := AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align.text(), AlignHeader: align.text()}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func cells(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(values) {
			row[i] = values[i]
		}
	}
	return row
}
