package datalog

import (
	"fmt"
	"strings"
)

// Bound is a sentinel used to frame range scans. Min sorts below every real
// value and Max above every real value, regardless of type.
type Bound int8

const (
	Min Bound = -1
	Max Bound = 1
)

func (b Bound) String() string {
	if b == Min {
		return "MIN"
	}
	return "MAX"
}

// Direction is the sort direction of one tuple column.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Values of different types order as string > number > boolean. The Min and
// Max sentinels bracket everything.
func CompareValues(left, right Value) int {
	// Sentinels first
	if lb, ok := left.(Bound); ok {
		if rb, ok := right.(Bound); ok {
			return compareInts(int(lb), int(rb))
		}
		return int(lb)
	}
	if rb, ok := right.(Bound); ok {
		return -int(rb)
	}

	lt, rt := Type(left), Type(right)
	if lt != rt {
		return compareInts(int(lt), int(rt))
	}

	switch l := left.(type) {
	case string:
		return strings.Compare(l, right.(string))
	case float64:
		r := right.(float64)
		if l < r {
			return -1
		} else if l > r {
			return 1
		}
		return 0
	case bool:
		r := right.(bool)
		if !l && r {
			return -1
		} else if l && !r {
			return 1
		}
		return 0
	}
	return 0
}

// ValuesEqual checks if two values are equal.
func ValuesEqual(a, b Value) bool {
	return CompareValues(a, b) == 0
}

// CompareTuples compares two tuples lexicographically, column by column,
// applying each column's direction. Both tuples must have len(directions)
// columns.
func CompareTuples(directions []Direction, a, b []Value) int {
	if len(a) != len(directions) || len(b) != len(directions) {
		panic(fmt.Sprintf("tuple length mismatch: %d and %d against %d columns",
			len(a), len(b), len(directions)))
	}
	for i, dir := range directions {
		if c := CompareValues(a[i], b[i]) * int(dir); c != 0 {
			return c
		}
	}
	return 0
}

// compareInts compares two int values
func compareInts(a, b int) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
