package executor

import (
	"sort"
	"time"

	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/annotations"
	"github.com/wbrown/janus-reactive/datalog/query"
	"github.com/wbrown/janus-reactive/datalog/storage"
)

// Executor evaluates clauses and queries against a storage backend. It
// holds no state between calls; callers serialize it against writers to the
// same backend.
type Executor struct {
	backend   storage.Backend
	collector *annotations.Collector
}

// Option configures an Executor.
type Option func(*Executor)

// WithCollector records evaluation events on c.
func WithCollector(c *annotations.Collector) Option {
	return func(x *Executor) { x.collector = c }
}

// NewExecutor creates an executor over backend.
func NewExecutor(backend storage.Backend, opts ...Option) *Executor {
	x := &Executor{backend: backend}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Backend returns the backend the executor reads from.
func (x *Executor) Backend() storage.Backend {
	return x.backend
}

// EvaluateQuery parses the query's statements, joins them and, when the
// query names sort keys, sorts the full binding set.
func (x *Executor) EvaluateQuery(q query.Query) (query.Result, error) {
	start := time.Now()
	if x.collector.Enabled() {
		x.collector.Add(annotations.Event{
			Name:  annotations.QueryInvoked,
			Start: start,
			End:   start,
			Data:  map[string]interface{}{"query": q.String()},
		})
	}

	res, err := x.EvaluateClause(query.ParseStatements(q.Statements))
	if err == nil && len(q.Sort) > 0 {
		SortBindings(res.Bindings, q.Sort)
	}

	if x.collector.Enabled() {
		data := map[string]interface{}{
			"bindings.count": len(res.Bindings),
			"facts.count":    len(res.Facts),
		}
		if err != nil {
			data["error"] = err
		}
		x.collector.AddTiming(annotations.QueryComplete, start, data)
	}
	return res, err
}

// EvaluateClause joins a conjunction of expressions.
//
// At every level the remaining expressions are ordered by their number of
// unknowns and the first is scanned. Each resulting binding is substituted
// into the rest, which are evaluated recursively; inner bindings are merged
// under the outer one. Facts read at any level are collected, so the result
// may hold facts that ended up in no binding.
func (x *Executor) EvaluateClause(clause []query.Expression) (query.Result, error) {
	var facts factSet
	bindings, err := x.evaluate(clause, 0, &facts)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{Bindings: bindings, Facts: facts.list}, nil
}

func (x *Executor) evaluate(clause []query.Expression, depth int, facts *factSet) ([]query.Binding, error) {
	if len(clause) == 0 {
		return nil, nil
	}

	ordered := make([]query.Expression, len(clause))
	copy(ordered, clause)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Unknowns() < ordered[j].Unknowns()
	})
	first, rest := ordered[0], ordered[1:]

	if x.collector.Enabled() {
		now := time.Now()
		x.collector.Add(annotations.Event{
			Name:  annotations.ClauseStep,
			Start: now,
			End:   now,
			Data: map[string]interface{}{
				"depth":      depth,
				"expression": first.String(),
				"unknowns":   first.Unknowns(),
				"remaining":  len(rest),
			},
		})
	}

	res, err := x.evaluateExpression(first)
	if err != nil {
		return nil, err
	}
	facts.add(res.Facts...)

	if len(rest) == 0 {
		return res.Bindings, nil
	}

	var out []query.Binding
	remaining := make([]query.Expression, len(rest))
	for _, outer := range res.Bindings {
		for i, e := range rest {
			remaining[i] = e.Substitute(outer)
		}
		inner, err := x.evaluate(remaining, depth+1, facts)
		if err != nil {
			return nil, err
		}
		for _, b := range inner {
			out = append(out, query.Merge(outer, b))
		}
	}
	return out, nil
}

func (x *Executor) evaluateExpression(e query.Expression) (query.Result, error) {
	if !x.collector.Enabled() {
		return x.backend.EvaluateExpression(e)
	}

	start := time.Now()
	res, err := x.backend.EvaluateExpression(e)
	if err != nil {
		x.collector.AddTiming(annotations.ErrorBackend, start, map[string]interface{}{
			"expression": e.String(),
			"error":      err,
		})
		return res, err
	}

	plan := storage.PlanExpression(e)
	x.collector.AddTiming(annotations.ExpressionEvaluated, start, map[string]interface{}{
		"expression":     e.String(),
		"shape":          plan.Shape(),
		"index":          plan.Index.String(),
		"expensive":      plan.Expensive,
		"variables":      variables(e),
		"bindings.count": len(res.Bindings),
	})
	return res, nil
}

// variables lists the distinct unknown names of e in slot order.
func variables(e query.Expression) []string {
	var names []string
	seen := make(map[string]bool, 3)
	for _, t := range e.Slots() {
		if !t.IsKnown() && !seen[t.Name()] {
			seen[t.Name()] = true
			names = append(names, t.Name())
		}
	}
	return names
}

// SortBindings orders bindings in place by the sort keys, using the same
// cross-type comparator as the indexes. A variable missing from a binding
// sorts as the lowest value. The sort is stable.
func SortBindings(bindings []query.Binding, keys []query.SortKey) {
	directions := make([]datalog.Direction, len(keys))
	for i, k := range keys {
		directions[i] = k.Direction
	}

	tuples := make([][]datalog.Value, len(bindings))
	for i, b := range bindings {
		tuples[i] = sortTuple(b, keys)
	}

	idx := make([]int, len(bindings))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return datalog.CompareTuples(directions, tuples[idx[i]], tuples[idx[j]]) < 0
	})

	sorted := make([]query.Binding, len(bindings))
	for i, j := range idx {
		sorted[i] = bindings[j]
	}
	copy(bindings, sorted)
}

func sortTuple(b query.Binding, keys []query.SortKey) []datalog.Value {
	t := make([]datalog.Value, len(keys))
	for i, k := range keys {
		v, ok := b[k.Name()]
		if !ok {
			v = datalog.Min
		}
		t[i] = v
	}
	return t
}

// factSet keeps facts in first-seen order without duplicates.
type factSet struct {
	seen map[datalog.Fact]struct{}
	list []datalog.Fact
}

func (s *factSet) add(facts ...datalog.Fact) {
	if s.seen == nil {
		s.seen = make(map[datalog.Fact]struct{}, len(facts))
	}
	for _, f := range facts {
		if _, ok := s.seen[f]; ok {
			continue
		}
		s.seen[f] = struct{}{}
		s.list = append(s.list, f)
	}
}
