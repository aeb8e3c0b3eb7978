package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// TableFormatter renders binding sets and facts as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatBindings formats a binding set as a markdown table. Columns are the
// given variables, or every bound name in sorted order when columns is empty.
func (tf *TableFormatter) FormatBindings(bindings []query.Binding, columns []string) string {
	if len(bindings) == 0 {
		return "_No results_"
	}
	if len(columns) == 0 {
		columns = bindingColumns(bindings)
	}

	rows := make([][]string, len(bindings))
	for i, b := range bindings {
		row := make([]string, len(columns))
		for j, col := range columns {
			if v, ok := b[col]; ok {
				row[j] = tf.formatValue(v)
			}
		}
		rows[i] = row
	}

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = query.VariableSigil + col
	}
	return tf.formatTable(headers, rows)
}

// FormatFacts formats facts as an entity/attribute/value table.
func (tf *TableFormatter) FormatFacts(facts []datalog.Fact) string {
	if len(facts) == 0 {
		return "_No facts_"
	}
	rows := make([][]string, len(facts))
	for i, f := range facts {
		rows[i] = []string{tf.formatValue(f.E()), tf.formatValue(f.A()), tf.formatValue(f.V())}
	}
	return tf.formatTable([]string{"entity", "attribute", "value"}, rows)
}

// formatTable formats headers and rows as a markdown table
func (tf *TableFormatter) formatTable(headers []string, rows [][]string) string {
	tableString := &strings.Builder{}

	// AlignNone keeps the separator row plain
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))
	return tableString.String()
}

// formatValue converts a value to a cell, truncating long strings
func (tf *TableFormatter) formatValue(val datalog.Value) string {
	s := datalog.FormatValue(val)
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		cut := tf.MaxWidth - len(tf.TruncateString)
		if cut < 0 {
			cut = 0
		}
		s = s[:cut] + tf.TruncateString
	}
	return s
}

func bindingColumns(bindings []query.Binding) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, b := range bindings {
		for _, name := range b.Names() {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// BindingsString returns a table of a result's bindings
func BindingsString(res query.Result) string {
	return NewTableFormatter().FormatBindings(res.Bindings, nil)
}
