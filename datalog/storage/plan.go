package storage

import (
	"fmt"

	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// ScanPlan names the permutation to scan and the known leading values.
type ScanPlan struct {
	Index  IndexType
	Prefix []datalog.Value
	// Expensive marks the one-known and zero-known shapes. There is no
	// secondary index behind them: they scan every fact sharing a single
	// column, or every fact.
	Expensive bool
}

// Shape returns the known/unknown pattern, e.g. "EA_".
func (p ScanPlan) Shape() string {
	shape := []byte("___")
	for i := range p.Prefix {
		shape[p.Index.Column(i)] = "EAV"[p.Index.Column(i)]
	}
	return string(shape)
}

func (p ScanPlan) String() string {
	return fmt.Sprintf("%s via %s prefix=%v expensive=%t", p.Shape(), p.Index, p.Prefix, p.Expensive)
}

// PlanExpression dispatches over the eight known/unknown combinations and
// picks the permutation whose leading columns are exactly the known slots.
func PlanExpression(e query.Expression) ScanPlan {
	ent, attr, val := e.Entity, e.Attribute, e.Value

	if ent.IsKnown() {
		if attr.IsKnown() {
			if val.IsKnown() {
				// EAV: point lookup
				return ScanPlan{Index: EAV, Prefix: []datalog.Value{ent.Value(), attr.Value(), val.Value()}}
			}
			// EA_
			return ScanPlan{Index: EAV, Prefix: []datalog.Value{ent.Value(), attr.Value()}}
		}
		if val.IsKnown() {
			// E_V
			return ScanPlan{Index: VEA, Prefix: []datalog.Value{val.Value(), ent.Value()}}
		}
		// E__
		return ScanPlan{Index: EAV, Prefix: []datalog.Value{ent.Value()}, Expensive: true}
	}

	if attr.IsKnown() {
		if val.IsKnown() {
			// _AV
			return ScanPlan{Index: AVE, Prefix: []datalog.Value{attr.Value(), val.Value()}}
		}
		// _A_
		return ScanPlan{Index: AVE, Prefix: []datalog.Value{attr.Value()}, Expensive: true}
	}
	if val.IsKnown() {
		// __V
		return ScanPlan{Index: VEA, Prefix: []datalog.Value{val.Value()}, Expensive: true}
	}
	// ___: full scan
	return ScanPlan{Index: EAV, Expensive: true}
}

// BindFacts fills the expression's unknowns from each scanned fact. A
// variable used in two slots of one expression only binds facts whose two
// slots agree; other facts are dropped from both bindings and facts.
func BindFacts(e query.Expression, facts []datalog.Fact) query.Result {
	slots := e.Slots()
	res := query.Result{
		Bindings: make([]query.Binding, 0, len(facts)),
		Facts:    make([]datalog.Fact, 0, len(facts)),
	}

next:
	for _, f := range facts {
		b := make(query.Binding, 3)
		for i, term := range slots {
			if term.IsKnown() {
				continue
			}
			if prev, ok := b[term.Name()]; ok && !datalog.ValuesEqual(prev, f[i]) {
				continue next
			}
			b[term.Name()] = f[i]
		}
		res.Bindings = append(res.Bindings, b)
		res.Facts = append(res.Facts, f)
	}
	return res
}
