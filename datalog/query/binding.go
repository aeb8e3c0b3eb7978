package query

import (
	"sort"
	"strings"

	"github.com/wbrown/janus-reactive/datalog"
)

// Binding maps variable names (without the sigil) to values: one row of a
// result set. A Binding is never mutated after it is built; Merge returns a new
// map.
type Binding map[string]datalog.Value

// Merge combines an outer and an inner binding. Outer values win on key
// collision, which is how a variable bound earlier in a join constrains the
// rows produced later.
func Merge(outer, inner Binding) Binding {
	out := make(Binding, len(outer)+len(inner))
	for k, v := range inner {
		out[k] = v
	}
	for k, v := range outer {
		out[k] = v
	}
	return out
}

// Names returns the bound variable names in sorted order.
func (b Binding) Names() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (b Binding) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range b.Names() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(datalog.FormatValue(b[name]))
	}
	sb.WriteByte('}')
	return sb.String()
}
