package query

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-reactive/datalog"
	"golang.org/x/text/unicode/norm"
)

// Term is one slot of an Expression: either Known(value) or Unknown(name).
// Statements are parsed into Terms once, at the query boundary, so the join
// never inspects raw strings for the sigil.
type Term struct {
	known bool
	value datalog.Value
	name  string
}

// Known returns a term holding a literal value.
func Known(v datalog.Value) Term {
	return Term{known: true, value: v}
}

// Unknown returns a term naming a variable (without the sigil).
func Unknown(name string) Term {
	return Term{name: name}
}

func (t Term) IsKnown() bool        { return t.known }
func (t Term) Value() datalog.Value { return t.value }
func (t Term) Name() string         { return t.name }

func (t Term) String() string {
	if t.known {
		return datalog.FormatValue(t.value)
	}
	return VariableSigil + t.name
}

// Expression is a Statement translated into three typed slots.
type Expression struct {
	Entity    Term
	Attribute Term
	Value     Term
}

// Slots returns the terms in e, a, v order.
func (e Expression) Slots() [3]Term {
	return [3]Term{e.Entity, e.Attribute, e.Value}
}

// Unknowns counts the unknown slots.
func (e Expression) Unknowns() int {
	n := 0
	for _, t := range e.Slots() {
		if !t.known {
			n++
		}
	}
	return n
}

// Substitute replaces every unknown whose name is bound in b with a Known
// term. Expressions are values, so the receiver is never modified.
func (e Expression) Substitute(b Binding) Expression {
	return Expression{
		Entity:    e.Entity.substitute(b),
		Attribute: e.Attribute.substitute(b),
		Value:     e.Value.substitute(b),
	}
}

func (t Term) substitute(b Binding) Term {
	if t.known {
		return t
	}
	if v, ok := b[t.name]; ok {
		return Known(v)
	}
	return t
}

func (e Expression) String() string {
	return fmt.Sprintf("[%s %s %s]", e.Entity, e.Attribute, e.Value)
}

// ParseTerm turns one statement slot into a Term.
func ParseTerm(v datalog.Value) Term {
	if s, ok := v.(string); ok && strings.HasPrefix(s, VariableSigil) {
		return Unknown(norm.NFC.String(s[len(VariableSigil):]))
	}
	return Known(v)
}

// ParseStatement turns a statement into an Expression.
func ParseStatement(s Statement) Expression {
	return Expression{
		Entity:    ParseTerm(s[datalog.ColEntity]),
		Attribute: ParseTerm(s[datalog.ColAttribute]),
		Value:     ParseTerm(s[datalog.ColValue]),
	}
}

// ParseStatements turns every statement of a query into a clause.
func ParseStatements(statements []Statement) []Expression {
	clause := make([]Expression, len(statements))
	for i, s := range statements {
		clause[i] = ParseStatement(s)
	}
	return clause
}
