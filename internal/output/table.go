package output

import (
	"io"
	"strings"
	"unicode/utf8"
)

// Column describes one table column.
type Column struct {
	Title    string
	Right    bool
	MaxWidth int
}

// Col returns a left-aligned column.
func Col(title string) Column {
	return Column{Title: title}
}

// AlignRight returns c right-aligned. Used for amounts.
func (c Column) AlignRight() Column {
	c.Right = true
	return c
}

// Truncate returns c with cells longer than n runes shortened in the middle,
// which keeps both ends of addresses and transaction IDs readable.
func (c Column) Truncate(n int) Column {
	c.MaxWidth = n
	return c
}

// Table renders aligned text columns.
type Table struct {
	cols     []Column
	rows     [][]string
	header   bool
	gap      string
	widths   []int
	hasTitle bool
}

// NewTable creates a table with a header line built from the column titles.
func NewTable(cols ...Column) *Table {
	t := &Table{cols: cols, header: true, gap: "  ", widths: make([]int, len(cols))}
	for i, c := range cols {
		if c.Title != "" {
			t.hasTitle = true
		}
		t.widths[i] = utf8.RuneCountInString(c.Title)
	}
	return t
}

// KeyValue creates a headerless two-column table of labels and values.
func KeyValue() *Table {
	t := NewTable(Col(""), Col(""))
	t.header = false
	return t
}

// AddRow appends a row. Missing cells render empty and extra cells are
// dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.cols))
	for i := range row {
		if i >= len(cells) {
			break
		}
		cell := cells[i]
		if n := t.cols[i].MaxWidth; n > 0 {
			cell = truncateMiddle(cell, n)
		}
		row[i] = cell
		t.widths[i] = max(t.widths[i], utf8.RuneCountInString(cell))
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	if len(t.cols) == 0 {
		return nil
	}

	var sb strings.Builder
	if t.header && t.hasTitle {
		titles := make([]string, len(t.cols))
		rules := make([]string, len(t.cols))
		for i, c := range t.cols {
			titles[i] = c.Title
			rules[i] = strings.Repeat("-", t.widths[i])
		}
		t.writeLine(&sb, titles)
		t.writeLine(&sb, rules)
	}
	for _, row := range t.rows {
		t.writeLine(&sb, row)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// String returns the rendered table.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

func (t *Table) writeLine(sb *strings.Builder, cells []string) {
	var line strings.Builder
	for i, cell := range cells {
		if i > 0 {
			line.WriteString(t.gap)
		}
		pad := strings.Repeat(" ", t.widths[i]-utf8.RuneCountInString(cell))
		if t.cols[i].Right {
			line.WriteString(pad + cell)
		} else {
			line.WriteString(cell + pad)
		}
	}
	sb.WriteString(strings.TrimRight(line.String(), " "))
	sb.WriteByte('\n')
}

// truncateMiddle shortens s to at most n runes, keeping both ends.
func truncateMiddle(s string, n int) string {
	r := []rune(s)
	if n < 5 || len(r) <= n {
		return s
	}
	head := (n - 3) / 2
	tail := n - 3 - head
	return string(r[:head]) + "..." + string(r[len(r)-tail:])
}
