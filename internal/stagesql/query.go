// Package stagesql rewrites logical queries against a versioned type into
// parameterized SQL over the physical per-stage tables, or over the
// _versions tables when the reading mode pins a historical version.
//
// Callers never name physical tables. They give a filter over logical
// column names plus a reading mode; the compiler substitutes the stage (or
// history) table for every hierarchy table, joins the hierarchy on record
// id, and injects the version filter for archive reads.
//
// Values are always parameterized, never interpolated, and every statement
// carries a deterministic ORDER BY on the base record id.
package stagesql

import "fmt"

// Predicate is a filter condition over logical column names.
//
// This is a sealed interface; the marker method keeps implementations in
// this package so the compiler's type switch stays exhaustive.
//
// Predicate types:
//   - Equals:  column = value
//   - Compare: column <op> value for range scans
//   - And:     conjunction
type Predicate interface {
	predicateNode()
}

// Equals filters on column = value.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// Compare filters on column <op> value. Op is one of "<", "<=", ">", ">=".
type Compare struct {
	Column string
	Op     string
	Value  any
}

func (Compare) predicateNode() {}

// And requires every child predicate to hold. An empty And is vacuously
// true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Query is a logical read against one versioned type: an optional filter
// and an optional restriction of the user columns to return. The record
// id, class name, and hierarchy presence markers are always selected.
type Query struct {
	Filter  Predicate
	Columns []string // empty selects every user column of the hierarchy
}

// ByID is shorthand for a query selecting a single record.
func ByID(id int64) Query {
	return Query{Filter: Equals{Column: ColumnID, Value: id}}
}

// ColumnID is the logical name of the record id in filters; the compiler
// maps it onto the physical id or record_id column depending on mode.
const ColumnID = "id"

// ColumnClass is the logical name of the concrete-class column.
const ColumnClass = "class_name"

func validCompareOp(op string) bool {
	switch op {
	case "<", "<=", ">", ">=":
		return true
	default:
		return false
	}
}

// paramValue converts a filter value to a SQL parameter. The storable
// domain is string, int64, int, bool; anything else is a caller bug.
func paramValue(v any) (any, error) {
	switch val := v.(type) {
	case string, int64, bool:
		return val, nil
	case int:
		return int64(val), nil
	case nil:
		return nil, fmt.Errorf("nil cannot be used as a filter value; filter on IS NULL is not supported")
	default:
		return nil, fmt.Errorf("unsupported filter value type %T", v)
	}
}
