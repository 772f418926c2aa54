package stagesql

import (
	"fmt"
	"strings"

	"github.com/stagehand-dev/stagehand/internal/reading"
	"github.com/stagehand-dev/stagehand/internal/schema"
)

// ColKind classifies a selected column so the scanner knows how to treat
// it when assembling a record.
type ColKind int

const (
	// ColBaseID is the base table's record id.
	ColBaseID ColKind = iota
	// ColClass is the concrete class name stored on the base table.
	ColClass
	// ColMarker is a subclass table's id; NULL means the subclass table
	// has no row for the record, which readers turn into an integrity
	// fault when the class says the row must exist.
	ColMarker
	// ColField is a user column.
	ColField
)

// ColumnRef describes one column of a compiled statement's select list, in
// order.
type ColumnRef struct {
	Kind  ColKind
	Table string           // logical table the column comes from
	Field schema.FieldSpec // set for ColField
}

// Statement is a compiled, parameterized query.
type Statement struct {
	SQL     string
	Args    []any
	Columns []ColumnRef
}

// Compiler rewrites logical queries for one versioned type.
type Compiler struct {
	Desc *schema.Descriptor
}

// NewCompiler creates a compiler bound to a type descriptor.
func NewCompiler(d *schema.Descriptor) *Compiler {
	return &Compiler{Desc: d}
}

// Compile produces the physical SQL for a logical query under the given
// reading mode.
//
// Stage mode joins the hierarchy's stage tables on id. Archive mode joins
// the hierarchy's _versions tables on (record_id, version) and filters the
// base table to the pinned version. Subclass tables join LEFT so records
// of the base class still match; presence markers let the reader detect a
// missing subclass row instead of silently yielding partial fields.
func (c *Compiler) Compile(q Query, mode reading.Mode) (*Statement, error) {
	if mode.IsZero() {
		return nil, fmt.Errorf("compile: reading mode is unset")
	}
	if !mode.IsArchive() && !c.Desc.HasStage(mode.Stage) {
		return nil, fmt.Errorf("compile: %w",
			&schema.ConfigurationError{Type: c.Desc.Name(), Message: fmt.Sprintf("unknown stage %q", mode.Stage)})
	}

	tables := c.Desc.AllTables()
	aliases := make(map[string]string, len(tables)) // logical table -> tN
	for i, t := range tables {
		aliases[t.Name] = fmt.Sprintf("t%d", i)
	}

	idCol := schema.ColID
	if mode.IsArchive() {
		idCol = schema.ColRecordID
	}

	selectList, columns, err := c.selectList(q, tables, aliases, idCol)
	if err != nil {
		return nil, err
	}

	fromClause, err := c.fromClause(tables, aliases, mode, idCol)
	if err != nil {
		return nil, err
	}

	var args []any
	var conds []string
	if mode.IsArchive() {
		conds = append(conds, fmt.Sprintf("t0.%s = ?", schema.ColVersion))
		args = append(args, mode.Version)
	}
	if q.Filter != nil {
		filterSQL, filterArgs, err := c.compilePredicate(q.Filter, aliases, idCol)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		conds = append(conds, filterSQL)
		args = append(args, filterArgs...)
	}

	var whereClause string
	if len(conds) > 0 {
		whereClause = " WHERE " + strings.Join(conds, " AND ")
	}

	// Deterministic ordering on the base record id, always.
	orderBy := fmt.Sprintf(" ORDER BY t0.%s ASC", idCol)

	sql := fmt.Sprintf("SELECT %s FROM %s%s%s", selectList, fromClause, whereClause, orderBy)

	return &Statement{SQL: sql, Args: args, Columns: columns}, nil
}

// selectList builds the select clause: base id, class name, presence
// markers for subclass tables, and the requested user columns.
func (c *Compiler) selectList(q Query, tables []schema.TableSpec, aliases map[string]string, idCol string) (string, []ColumnRef, error) {
	wanted, err := c.wantedColumns(q)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	var columns []ColumnRef

	for i, t := range tables {
		alias := aliases[t.Name]
		if i == 0 {
			parts = append(parts, fmt.Sprintf("%s.%s", alias, idCol))
			columns = append(columns, ColumnRef{Kind: ColBaseID, Table: t.Name})
			parts = append(parts, fmt.Sprintf("%s.%s", alias, schema.ColClass))
			columns = append(columns, ColumnRef{Kind: ColClass, Table: t.Name})
		} else {
			parts = append(parts, fmt.Sprintf("%s.%s AS %s_%s", alias, idCol, alias, idCol))
			columns = append(columns, ColumnRef{Kind: ColMarker, Table: t.Name})
		}
		for _, f := range t.Fields {
			if wanted != nil && !wanted[f.Name] {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s.%s", alias, f.Name))
			columns = append(columns, ColumnRef{Kind: ColField, Table: t.Name, Field: f})
		}
	}

	return strings.Join(parts, ", "), columns, nil
}

// wantedColumns validates the requested column restriction. nil means all.
func (c *Compiler) wantedColumns(q Query) (map[string]bool, error) {
	if len(q.Columns) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(q.Columns))
	for _, col := range q.Columns {
		if _, ok := c.Desc.TableForColumn(col); !ok {
			return nil, fmt.Errorf("compile: unknown column %q", col)
		}
		wanted[col] = true
	}
	return wanted, nil
}

// fromClause builds the physical FROM with hierarchy joins. Joins always
// use record-id equality; archive mode additionally pins the version so a
// snapshot never mixes rows from different versions.
func (c *Compiler) fromClause(tables []schema.TableSpec, aliases map[string]string, mode reading.Mode, idCol string) (string, error) {
	var b strings.Builder

	for i, t := range tables {
		var physical string
		if mode.IsArchive() {
			physical = c.Desc.VersionsTable(t.Name)
		} else {
			var err error
			physical, err = c.Desc.StageTable(t.Name, mode.Stage)
			if err != nil {
				return "", err
			}
		}

		alias := aliases[t.Name]
		if i == 0 {
			fmt.Fprintf(&b, "%s AS %s", physical, alias)
			continue
		}

		fmt.Fprintf(&b, " LEFT JOIN %s AS %s ON %s.%s = t0.%s",
			physical, alias, alias, idCol, idCol)
		if mode.IsArchive() {
			fmt.Fprintf(&b, " AND %s.%s = t0.%s", alias, schema.ColVersion, schema.ColVersion)
		}
	}

	return b.String(), nil
}

// compilePredicate compiles a predicate tree to a WHERE fragment. Values
// are never interpolated.
func (c *Compiler) compilePredicate(p Predicate, aliases map[string]string, idCol string) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		return c.compileComparison(pred.Column, "=", pred.Value, aliases, idCol)
	case *Equals:
		return c.compileComparison(pred.Column, "=", pred.Value, aliases, idCol)
	case Compare:
		if !validCompareOp(pred.Op) {
			return "", nil, fmt.Errorf("invalid compare op %q", pred.Op)
		}
		return c.compileComparison(pred.Column, pred.Op, pred.Value, aliases, idCol)
	case *Compare:
		if !validCompareOp(pred.Op) {
			return "", nil, fmt.Errorf("invalid compare op %q", pred.Op)
		}
		return c.compileComparison(pred.Column, pred.Op, pred.Value, aliases, idCol)
	case And:
		return c.compileAnd(pred, aliases, idCol)
	case *And:
		return c.compileAnd(*pred, aliases, idCol)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}

func (c *Compiler) compileAnd(and And, aliases map[string]string, idCol string) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var parts []string
	var args []any
	for _, p := range and.Predicates {
		sql, sub, err := c.compilePredicate(p, aliases, idCol)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, sub...)
	}
	return strings.Join(parts, " AND "), args, nil
}

func (c *Compiler) compileComparison(column, op string, value any, aliases map[string]string, idCol string) (string, []any, error) {
	ref, err := c.resolveColumn(column, aliases, idCol)
	if err != nil {
		return "", nil, err
	}
	param, err := paramValue(value)
	if err != nil {
		return "", nil, fmt.Errorf("column %s: %w", column, err)
	}
	return fmt.Sprintf("%s %s ?", ref, op), []any{param}, nil
}

// resolveColumn maps a logical column name onto its qualified physical
// reference.
func (c *Compiler) resolveColumn(column string, aliases map[string]string, idCol string) (string, error) {
	switch column {
	case ColumnID:
		return "t0." + idCol, nil
	case ColumnClass:
		return "t0." + schema.ColClass, nil
	}
	table, ok := c.Desc.TableForColumn(column)
	if !ok {
		return "", fmt.Errorf("unknown column %q", column)
	}
	return aliases[table] + "." + column, nil
}
