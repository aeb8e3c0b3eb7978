package datalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fact is the fundamental unit of data: Entity-Attribute-Value.
// The fact set is a mathematical set, so a Fact is comparable and can be used
// directly as a map key.
type Fact [3]Value

// Column positions within a Fact
const (
	ColEntity = iota
	ColAttribute
	ColValue
)

// NewFact builds a fact from arbitrary Go values, normalizing numbers.
func NewFact(e, a, v interface{}) (Fact, error) {
	var f Fact
	for i, raw := range [3]interface{}{e, a, v} {
		val, err := NormalizeValue(raw)
		if err != nil {
			return Fact{}, fmt.Errorf("fact slot %d: %w", i, err)
		}
		f[i] = val
	}
	return f, nil
}

// MustFact is like NewFact but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFact(e, a, v interface{}) Fact {
	f, err := NewFact(e, a, v)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Fact) E() Value { return f[ColEntity] }
func (f Fact) A() Value { return f[ColAttribute] }
func (f Fact) V() Value { return f[ColValue] }

// Tuple returns the fact as a slice in e, a, v order.
func (f Fact) Tuple() []Value {
	return []Value{f[0], f[1], f[2]}
}

// String returns a string representation of the Fact
func (f Fact) String() string {
	parts := make([]string, 3)
	for i, v := range f {
		if s, ok := v.(string); ok {
			parts[i] = fmt.Sprintf("%q", s)
		} else {
			parts[i] = FormatValue(v)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalJSON encodes the fact as a 3-element array.
func (f Fact) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{f[0], f[1], f[2]})
}

// UnmarshalJSON decodes a 3-element array of strings, numbers or booleans.
// null is rejected.
func (f *Fact) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("fact: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("fact: expected 3 elements, got %d", len(raw))
	}
	parsed, err := NewFact(raw[0], raw[1], raw[2])
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Transaction is an atomic batch of additions and removals.
type Transaction struct {
	Sets   []Fact `json:"sets"`
	Unsets []Fact `json:"unsets"`
}

// IsEmpty reports whether the transaction carries no facts.
func (tx Transaction) IsEmpty() bool {
	return len(tx.Sets) == 0 && len(tx.Unsets) == 0
}

// MarshalJSON always emits both arrays, never null.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	type wire struct {
		Sets   []Fact `json:"sets"`
		Unsets []Fact `json:"unsets"`
	}
	w := wire{Sets: tx.Sets, Unsets: tx.Unsets}
	if w.Sets == nil {
		w.Sets = []Fact{}
	}
	if w.Unsets == nil {
		w.Unsets = []Fact{}
	}
	return json.Marshal(w)
}

// Broadcast maps each subscriber id to the minimal transaction its mirror
// needs after one applied Transaction.
type Broadcast map[string]Transaction

// Subscribers returns the subscriber ids in sorted order.
func (b Broadcast) Subscribers() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
