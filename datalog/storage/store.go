package storage

import (
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// IndexType represents different index orderings
type IndexType uint8

const (
	EAV IndexType = iota // Entity-Attribute-Value
	AVE                  // Attribute-Value-Entity
	VEA                  // Value-Entity-Attribute

	numIndexes = 3
)

// Only three permutations are needed to answer every 3-slot expression with
// its known slots as a leading prefix:
//
//	e, ea, eav -> EAV
//	a, av      -> AVE
//	v, ve      -> VEA
var permutations = [numIndexes][3]int{
	EAV: {datalog.ColEntity, datalog.ColAttribute, datalog.ColValue},
	AVE: {datalog.ColAttribute, datalog.ColValue, datalog.ColEntity},
	VEA: {datalog.ColValue, datalog.ColEntity, datalog.ColAttribute},
}

// AllIndexes lists every permutation a backend maintains.
var AllIndexes = []IndexType{EAV, AVE, VEA}

func (t IndexType) String() string {
	switch t {
	case EAV:
		return "EAV"
	case AVE:
		return "AVE"
	case VEA:
		return "VEA"
	default:
		return "UNKNOWN"
	}
}

// Column returns the fact column stored at position i of this index.
func (t IndexType) Column(i int) int {
	return permutations[t][i]
}

// Permute reorders a fact into this index's column order.
func (t IndexType) Permute(f datalog.Fact) [3]datalog.Value {
	p := permutations[t]
	return [3]datalog.Value{f[p[0]], f[p[1]], f[p[2]]}
}

// Unpermute restores a fact from a tuple in this index's column order.
func (t IndexType) Unpermute(tuple []datalog.Value) datalog.Fact {
	p := permutations[t]
	var f datalog.Fact
	for i := 0; i < 3; i++ {
		f[p[i]] = tuple[i]
	}
	return f
}

// Backend is the persistence seam. Query and subscription logic only ever
// talk to a Backend, so sorted in-memory arrays and disk engines are
// interchangeable.
type Backend interface {
	// SetFact adds a fact. Setting a present fact is a no-op.
	SetFact(f datalog.Fact) error
	// UnsetFact removes a fact. Unsetting an absent fact is a no-op.
	UnsetFact(f datalog.Fact) error
	// EvaluateExpression returns the bindings for the expression's unknowns
	// and the facts they were read from.
	EvaluateExpression(e query.Expression) (query.Result, error)
}

// Store is a Backend with a lifecycle.
type Store interface {
	Backend
	Close() error
}
