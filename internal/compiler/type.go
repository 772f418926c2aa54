// Package compiler parses CUE type declarations into schema specs. It uses
// the CUE SDK's Go API directly, not a CLI subprocess, so errors carry
// source positions.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/stagehand-dev/stagehand/internal/schema"
)

// CompileTypes parses every declaration under the top-level "type" struct
// of a CUE value. All spec loaders go through here, so type declarations
// parse identically no matter how the CUE was loaded.
func CompileTypes(root cue.Value) ([]schema.TypeSpec, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	typesVal := root.LookupPath(cue.ParsePath("type"))
	if !typesVal.Exists() {
		return nil, &CompileError{
			Field:   "type",
			Message: "no type declarations found",
			Pos:     root.Pos(),
		}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []schema.TypeSpec
	for iter.Next() {
		spec, err := CompileType(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// CompileType parses a CUE value into a TypeSpec.
//
// The CUE value should be the type struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`type: Page: { ... }`)
//	spec, err := CompileType(v.LookupPath(cue.ParsePath("type.Page")))
func CompileType(v cue.Value) (*schema.TypeSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &schema.TypeSpec{}

	// The type name is the struct label (the path selector).
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	stages, err := parseStages(v)
	if err != nil {
		return nil, err
	}
	spec.Stages = stages

	permVal := v.LookupPath(cue.ParsePath("non_live_permission"))
	if permVal.Exists() {
		perm, err := permVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.NonLivePermission = perm
	}

	base, err := parseTable(v, spec.Name)
	if err != nil {
		return nil, err
	}
	spec.Base = base

	subVal := v.LookupPath(cue.ParsePath("subclass"))
	if subVal.Exists() {
		iter, err := subVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			sub, err := parseTable(iter.Value(), iter.Label())
			if err != nil {
				return nil, err
			}
			spec.Subclasses = append(spec.Subclasses, sub)
		}
	}

	return spec, nil
}

// parseStages reads the ordered stage list. The first entry is the primal
// stage stored in the unsuffixed tables.
func parseStages(v cue.Value) ([]string, error) {
	stagesVal := v.LookupPath(cue.ParsePath("stages"))
	if !stagesVal.Exists() {
		return nil, &CompileError{
			Field:   "stages",
			Message: "stages list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := stagesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var stages []string
	for iter.Next() {
		stage, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		stages = append(stages, stage)
	}
	if len(stages) < 2 {
		return nil, &CompileError{
			Field:   "stages",
			Message: fmt.Sprintf("at least 2 stages required, got %d", len(stages)),
			Pos:     stagesVal.Pos(),
		}
	}
	return stages, nil
}

// parseTable reads one hierarchy table: its physical name and its fields.
func parseTable(v cue.Value, class string) (schema.TableSpec, error) {
	t := schema.TableSpec{Class: class}

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return t, &CompileError{
			Field:   "table",
			Message: fmt.Sprintf("%s: table name is required", class),
			Pos:     v.Pos(),
		}
	}
	name, err := tableVal.String()
	if err != nil {
		return t, formatCUEError(err)
	}
	t.Name = name

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return t, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return t, formatCUEError(err)
	}
	for iter.Next() {
		fieldType, err := extractFieldType(iter.Value())
		if err != nil {
			return t, err
		}
		t.Fields = append(t.Fields, schema.FieldSpec{
			Name: iter.Label(),
			Type: fieldType,
		})
	}
	return t, nil
}

// extractFieldType converts a CUE type constraint to a field type. Floats
// are rejected: field values feed content digests, and float encodings are
// not canonical.
func extractFieldType(v cue.Value) (schema.FieldType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return schema.FieldText, nil
	case cue.IntKind:
		return schema.FieldInt, nil
	case cue.BoolKind:
		return schema.FieldBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "fields",
			Message: "float field types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "fields",
			Message: fmt.Sprintf("unsupported field type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
