package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-reactive/datalog"
)

func TestParseStatement(t *testing.T) {
	expr := ParseStatement(datalog.MustFact("?id", "type", "?kind"))

	assert.False(t, expr.Entity.IsKnown())
	assert.Equal(t, "id", expr.Entity.Name())
	assert.True(t, expr.Attribute.IsKnown())
	assert.Equal(t, "type", expr.Attribute.Value())
	assert.Equal(t, "kind", expr.Value.Name())
	assert.Equal(t, 2, expr.Unknowns())
	assert.Equal(t, "[?id type ?kind]", expr.String())
}

func TestParseTermOnlyStringsAreVariables(t *testing.T) {
	assert.True(t, ParseTerm(1.0).IsKnown())
	assert.True(t, ParseTerm(true).IsKnown())
	assert.True(t, ParseTerm("id?").IsKnown())
	assert.False(t, ParseTerm("?").IsKnown())
	assert.Equal(t, "", ParseTerm("?").Name())
}

func TestParseTermNormalizesVariableNames(t *testing.T) {
	decomposed := ParseTerm("?cafe\u0301")
	assert.Equal(t, "caf\u00e9", decomposed.Name())

	// Literals keep their bytes.
	assert.Equal(t, "cafe\u0301", ParseTerm("cafe\u0301").Value())
}

func TestQueryCanonical(t *testing.T) {
	q := Query{
		Statements: []Statement{datalog.MustFact("?cafe\u0301", "name", "cafe\u0301")},
		Sort:       []SortKey{{Variable: "?cafe\u0301", Direction: datalog.Descending}},
	}
	c := q.Canonical()

	assert.Equal(t, datalog.MustFact("?caf\u00e9", "name", "cafe\u0301"), c.Statements[0])
	assert.Equal(t, []SortKey{{Variable: "?caf\u00e9", Direction: datalog.Descending}}, c.Sort)
	assert.Equal(t, "?cafe\u0301", q.Statements[0].E(), "original untouched")
	assert.Equal(t, c, c.Canonical())
}

func TestSubstituteLeavesOriginalUntouched(t *testing.T) {
	expr := ParseStatement(datalog.MustFact("?id", "name", "?name"))
	sub := expr.Substitute(Binding{"id": "p1"})

	assert.Equal(t, Known("p1"), sub.Entity)
	assert.Equal(t, Unknown("name"), sub.Value)
	assert.Equal(t, 1, sub.Unknowns())
	assert.Equal(t, Unknown("id"), expr.Entity)
}

func TestMergeOuterWins(t *testing.T) {
	outer := Binding{"id": "p1", "name": "Alice"}
	inner := Binding{"id": "p2", "age": 30.0}

	merged := Merge(outer, inner)
	assert.Equal(t, Binding{"id": "p1", "name": "Alice", "age": 30.0}, merged)

	// neither input changes
	assert.Len(t, outer, 2)
	assert.Equal(t, "p2", inner["id"])
}

func TestQueryJSON(t *testing.T) {
	raw := `{"statements":[["?id","type","person"],["?id","name","?name"]],"sort":[["?name",1],["?id",-1]]}`

	q, err := ParseQuery([]byte(raw))
	require.NoError(t, err)
	require.Len(t, q.Statements, 2)
	assert.Equal(t, datalog.MustFact("?id", "type", "person"), q.Statements[0])
	assert.Equal(t, []SortKey{
		{Variable: "?name", Direction: datalog.Ascending},
		{Variable: "?id", Direction: datalog.Descending},
	}, q.Sort)
	assert.Equal(t, "name", q.Sort[0].Name())

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(data))
}

func TestQueryJSONRejectsBadSort(t *testing.T) {
	_, err := ParseQuery([]byte(`{"statements":[],"sort":[["?x",2]]}`))
	assert.Error(t, err)

	_, err = ParseQuery([]byte(`{"statements":[],"sort":[["?x"]]}`))
	assert.Error(t, err)

	_, err = ParseQuery([]byte(`{"statements":[["?x","a",null]]}`))
	assert.Error(t, err)
}
