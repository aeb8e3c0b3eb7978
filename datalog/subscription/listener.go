package subscription

import (
	"encoding/json"
	"fmt"

	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// Pattern is a listen pattern: each slot holds a literal, or nil for a
// wildcard.
type Pattern [3]datalog.Value

// Key returns the canonical JSON form of the pattern, e.g.
// ["chet","friend",null]. Equal patterns have equal keys.
func (p Pattern) Key() string {
	data, err := json.Marshal([3]interface{}{p[0], p[1], p[2]})
	if err != nil {
		// Normalized values always marshal
		panic(fmt.Sprintf("pattern key: %v", err))
	}
	return string(data)
}

func (p Pattern) String() string {
	return p.Key()
}

// InverseBinding names, per slot, the variable that a matching fact's value
// binds. An empty name means the slot was a literal.
type InverseBinding [3]string

// MarshalJSON encodes empty slots as null.
func (ib InverseBinding) MarshalJSON() ([]byte, error) {
	var out [3]interface{}
	for i, name := range ib {
		if name != "" {
			out[i] = name
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a 3-element array of names or nulls.
func (ib *InverseBinding) UnmarshalJSON(data []byte) error {
	var raw [3]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("inverse binding: %w", err)
	}
	for i, name := range raw {
		ib[i] = ""
		if name != nil {
			ib[i] = *name
		}
	}
	return nil
}

// Resolve binds the named slots to the fact's values. It reports false when
// one variable names two slots holding different values: the fact cannot
// satisfy that statement.
func (ib InverseBinding) Resolve(f datalog.Fact) (query.Binding, bool) {
	b := make(query.Binding, 3)
	for i, name := range ib {
		if name == "" {
			continue
		}
		if prev, ok := b[name]; ok && !datalog.ValuesEqual(prev, f[i]) {
			return nil, false
		}
		b[name] = f[i]
	}
	return b, true
}

// Listener is the reverse-matching form of one statement.
type Listener struct {
	Pattern        Pattern
	InverseBinding InverseBinding
}

// ListenerFor derives the listener of one expression: known slots become
// literals, unknown slots become wildcards bound back to their variable.
func ListenerFor(e query.Expression) Listener {
	var l Listener
	for i, t := range e.Slots() {
		if t.IsKnown() {
			l.Pattern[i] = t.Value()
		} else {
			l.InverseBinding[i] = t.Name()
		}
	}
	return l
}

// ListenersForQuery returns one listener per statement, in statement order.
func ListenersForQuery(q query.Query) []Listener {
	clause := query.ParseStatements(q.Statements)
	listeners := make([]Listener, len(clause))
	for i, e := range clause {
		listeners[i] = ListenerFor(e)
	}
	return listeners
}

// ListenPatternsForFact returns the 8 projections of f: every subset of its
// slots kept, the rest wildcarded. A listener can only match f if its
// pattern is one of these.
func ListenPatternsForFact(f datalog.Fact) []Pattern {
	patterns := make([]Pattern, 0, 8)
	for mask := 0; mask < 8; mask++ {
		var p Pattern
		for i := 0; i < 3; i++ {
			if mask&(1<<i) != 0 {
				p[i] = f[i]
			}
		}
		patterns = append(patterns, p)
	}
	return patterns
}
