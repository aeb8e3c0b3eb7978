package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wbrown/janus-reactive/datalog"
	"golang.org/x/text/unicode/norm"
)

// VariableSigil marks a statement slot as an unknown to solve for.
const VariableSigil = "?"

// Statement is one raw triple of a query. Slots holding a string that starts
// with VariableSigil are variables; every other slot is a literal.
type Statement = datalog.Fact

// SortKey orders results by one variable. Variable carries the sigil, as on
// the wire: ["?name", 1].
type SortKey struct {
	Variable  string
	Direction datalog.Direction
}

// MarshalJSON encodes the key as a [variable, direction] pair.
func (k SortKey) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{k.Variable, int(k.Direction)})
}

// UnmarshalJSON decodes a [variable, 1|-1] pair.
func (k *SortKey) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sort key: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("sort key: expected [variable, direction], got %d elements", len(raw))
	}
	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return fmt.Errorf("sort key variable: %w", err)
	}
	var dir int
	if err := json.Unmarshal(raw[1], &dir); err != nil {
		return fmt.Errorf("sort key direction: %w", err)
	}
	if dir != int(datalog.Ascending) && dir != int(datalog.Descending) {
		return fmt.Errorf("sort key direction must be 1 or -1, got %d", dir)
	}
	k.Variable = norm.NFC.String(name)
	k.Direction = datalog.Direction(dir)
	return nil
}

// Name returns the variable name without the sigil, in the same form
// ParseTerm gives it.
func (k SortKey) Name() string {
	return norm.NFC.String(strings.TrimPrefix(k.Variable, VariableSigil))
}

// Query is a conjunction of statements plus an optional sort.
//
// Example:
//
//	{
//		"statements": [
//			["?pageId", "type", "page"],
//			["?pageId", "sort", "?sort"]
//		],
//		"sort": [["?sort", -1], ["?pageId", 1]]
//	}
type Query struct {
	Statements []Statement `json:"statements"`
	Sort       []SortKey   `json:"sort,omitempty"`
}

// String returns the JSON form of the query.
func (q Query) String() string {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("<invalid query: %v>", err)
	}
	return string(data)
}

// Canonical returns a copy of q with variable names in Unicode NFC form, so
// queries that differ only in how a variable name is encoded share one
// identity. Literals are left alone: they must match stored facts exactly.
func (q Query) Canonical() Query {
	out := Query{Statements: make([]Statement, len(q.Statements))}
	for i, st := range q.Statements {
		for col, v := range st {
			if s, ok := v.(string); ok && strings.HasPrefix(s, VariableSigil) {
				v = norm.NFC.String(s)
			}
			out.Statements[i][col] = v
		}
	}
	if q.Sort != nil {
		out.Sort = make([]SortKey, len(q.Sort))
		for i, k := range q.Sort {
			out.Sort[i] = SortKey{Variable: norm.NFC.String(k.Variable), Direction: k.Direction}
		}
	}
	return out
}

// ParseQuery decodes a JSON query.
func ParseQuery(data []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, fmt.Errorf("parse query: %w", err)
	}
	return q, nil
}

// Result is the outcome of evaluating an expression, clause or query: the
// bindings plus the facts consumed to produce them.
type Result struct {
	Bindings []Binding
	Facts    []datalog.Fact
}
