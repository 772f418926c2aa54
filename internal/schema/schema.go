// Package schema describes versioned record types: their table hierarchy,
// configured stages, and the physical table names each (table, stage)
// combination maps onto.
//
// Physical layout for a table T with stages [S1, S2, ...]:
//
//	T             stage S1 (the primal stage, unsuffixed)
//	T_<S2>        every further stage
//	T_versions    immutable version history
//
// The same suffixing applies to every table in a type's hierarchy. The
// descriptor is built once at configuration time and handed to every other
// component; nothing else in the engine concatenates table-name strings.
package schema

import (
	"fmt"
	"regexp"
)

// FieldType enumerates the storable column types.
type FieldType string

const (
	FieldText FieldType = "text"
	FieldInt  FieldType = "int"
	FieldBool FieldType = "bool"
)

// ValidFieldType reports whether t is a known field type.
func ValidFieldType(t FieldType) bool {
	switch t {
	case FieldText, FieldInt, FieldBool:
		return true
	default:
		return false
	}
}

// FieldSpec describes one user column.
type FieldSpec struct {
	Name string
	Type FieldType
}

// TableSpec describes one physical table of a hierarchy: the logical
// (unsuffixed) table name, the concrete class whose columns it stores, and
// those columns.
type TableSpec struct {
	Name   string
	Class  string
	Fields []FieldSpec
}

// TypeSpec is the configuration for one versioned base type: its base
// table, any subclass tables extending it, and the ordered stage list.
//
// The first stage is the primal stage and is stored without a table suffix.
// Versioning is always declared on the hierarchy base; subclasses appear
// only inside their base's TypeSpec.
type TypeSpec struct {
	Name   string   // base type name; also the class stored in the base table
	Stages []string // ordered, >= 2, first is primal

	// NonLivePermission names the permission set required to view stages
	// other than the primal one. Empty means unrestricted.
	NonLivePermission string

	Base       TableSpec
	Subclasses []TableSpec
}

// identRe constrains table, stage, column and class identifiers to names
// that can be spliced into SQL without quoting surprises.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdent reports whether s is a safe SQL identifier.
func ValidIdent(s string) bool {
	return identRe.MatchString(s)
}

// ConfigurationError reports invalid stage or type setup. It is fatal at
// startup and never retried.
type ConfigurationError struct {
	Type    string // base type name, empty for registry-level problems
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("configuration: type %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("configuration: %s", e.Message)
}

func configErr(typeName, format string, args ...any) error {
	return &ConfigurationError{Type: typeName, Message: fmt.Sprintf(format, args...)}
}
