package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

func TestPlanExpression(t *testing.T) {
	tests := []struct {
		stmt      datalog.Fact
		index     IndexType
		prefix    []datalog.Value
		expensive bool
	}{
		{datalog.MustFact("1", "a", "v"), EAV, []datalog.Value{"1", "a", "v"}, false},
		{datalog.MustFact("1", "a", "?v"), EAV, []datalog.Value{"1", "a"}, false},
		{datalog.MustFact("1", "?a", "v"), VEA, []datalog.Value{"v", "1"}, false},
		{datalog.MustFact("?e", "a", "v"), AVE, []datalog.Value{"a", "v"}, false},
		{datalog.MustFact("1", "?a", "?v"), EAV, []datalog.Value{"1"}, true},
		{datalog.MustFact("?e", "a", "?v"), AVE, []datalog.Value{"a"}, true},
		{datalog.MustFact("?e", "?a", "v"), VEA, []datalog.Value{"v"}, true},
		{datalog.MustFact("?e", "?a", "?v"), EAV, nil, true},
	}

	for _, tt := range tests {
		e := query.ParseStatement(tt.stmt)
		t.Run(e.String(), func(t *testing.T) {
			plan := PlanExpression(e)
			assert.Equal(t, tt.index, plan.Index)
			assert.Equal(t, tt.prefix, plan.Prefix)
			assert.Equal(t, tt.expensive, plan.Expensive)
		})
	}
}

func TestPlanShape(t *testing.T) {
	assert.Equal(t, "E_V", PlanExpression(query.ParseStatement(datalog.MustFact("1", "?a", 2))).Shape())
	assert.Equal(t, "___", PlanExpression(query.ParseStatement(datalog.MustFact("?e", "?a", "?v"))).Shape())
}

func TestBindFactsUnifiesRepeatedVariable(t *testing.T) {
	e := query.ParseStatement(datalog.MustFact("?x", "self", "?x"))
	facts := []datalog.Fact{
		datalog.MustFact("1", "self", "1"),
		datalog.MustFact("2", "self", "3"),
	}

	res := BindFacts(e, facts)
	assert.Equal(t, []datalog.Fact{facts[0]}, res.Facts)
	assert.Equal(t, []query.Binding{{"x": "1"}}, res.Bindings)
}

func TestBindFactsKnownSlotsNotBound(t *testing.T) {
	e := query.ParseStatement(datalog.MustFact("1", "name", "?name"))
	res := BindFacts(e, []datalog.Fact{datalog.MustFact("1", "name", "Alice")})
	assert.Equal(t, []query.Binding{{"name": "Alice"}}, res.Bindings)
}
