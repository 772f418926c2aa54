package versioned

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stagehand-dev/stagehand/internal/reading"
	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/stagesql"
)

// Read executes a logical query under the reading mode carried by ctx.
// With no mode set, the primal stage is read.
func (e *Engine) Read(ctx context.Context, baseType string, q stagesql.Query) ([]record.Record, error) {
	d, err := e.descriptor(baseType)
	if err != nil {
		return nil, err
	}
	mode, ok := reading.FromContext(ctx)
	if !ok {
		mode = reading.StageMode(d.PrimalStage())
	}
	return e.readMode(ctx, d, q, mode)
}

// ReadForStage executes a logical query against one stage's current rows,
// ignoring any mode on ctx.
func (e *Engine) ReadForStage(ctx context.Context, baseType, stage string, q stagesql.Query) ([]record.Record, error) {
	d, err := e.descriptor(baseType)
	if err != nil {
		return nil, err
	}
	return e.readMode(ctx, d, q, reading.StageMode(stage))
}

// ReadForVersion executes a logical query against the _versions tables,
// pinned to one version number.
func (e *Engine) ReadForVersion(ctx context.Context, baseType string, version int64, q stagesql.Query) ([]record.Record, error) {
	d, err := e.descriptor(baseType)
	if err != nil {
		return nil, err
	}
	return e.readMode(ctx, d, q, reading.VersionMode(version))
}

// Get fetches one record by id under the reading mode carried by ctx.
func (e *Engine) Get(ctx context.Context, baseType string, id record.ID) (*record.Record, error) {
	recs, err := e.Read(ctx, baseType, stagesql.ByID(int64(id)))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		d, derr := e.descriptor(baseType)
		mode := "unknown mode"
		if derr == nil {
			m, ok := reading.FromContext(ctx)
			if !ok {
				m = reading.StageMode(d.PrimalStage())
			}
			mode = m.String()
		}
		return nil, engineErr(ErrCodeNotFound, baseType, id, 0, "record not found in %s", mode)
	}
	return &recs[0], nil
}

func (e *Engine) readMode(ctx context.Context, d *schema.Descriptor, q stagesql.Query, mode reading.Mode) ([]record.Record, error) {
	stmt, err := stagesql.NewCompiler(d).Compile(q, mode)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", d.Name(), err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := scanRecord(d, stmt.Columns, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", d.Name(), err)
	}
	return out, nil
}

// scanRecord scans one result row and assembles the logical record.
//
// The concrete class decides which hierarchy tables must have contributed a
// row. A required table whose presence marker came back NULL is an
// integrity fault. An unknown class (its type was reconfigured after the
// row was written) yields the base fields only.
func scanRecord(d *schema.Descriptor, cols []stagesql.ColumnRef, rows *sql.Rows) (*record.Record, error) {
	dest := make([]any, len(cols))
	var id int64
	var class string
	markers := make(map[string]*sql.NullInt64)

	for i, c := range cols {
		switch c.Kind {
		case stagesql.ColBaseID:
			dest[i] = &id
		case stagesql.ColClass:
			dest[i] = &class
		case stagesql.ColMarker:
			m := &sql.NullInt64{}
			markers[c.Table] = m
			dest[i] = m
		case stagesql.ColField:
			dest[i] = scanDest(c.Field.Type)
		default:
			return nil, fmt.Errorf("unhandled column kind %d", c.Kind)
		}
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", d.Name(), err)
	}

	// Tables the class says must hold a row for this record. Unknown
	// classes fall back to the base table alone.
	inChain := map[string]bool{d.BaseTable().Name: true}
	chain, err := d.HierarchyTables(class)
	if err == nil {
		for _, t := range chain {
			inChain[t.Name] = true
		}
	}

	for table, marker := range markers {
		if inChain[table] && !marker.Valid {
			return nil, engineErr(ErrCodeIntegrity, d.Name(), record.ID(id), 0,
				"class %s requires a row in %s, none found", class, table)
		}
	}

	fields := make(record.Fields)
	for i, c := range cols {
		if c.Kind != stagesql.ColField || !inChain[c.Table] {
			continue
		}
		if v, ok := fieldValue(dest[i]); ok {
			fields[c.Field.Name] = v
		}
	}

	return &record.Record{ID: record.ID(id), Class: class, Fields: fields}, nil
}

// scanDest returns a nullable scan target for a user column.
func scanDest(t schema.FieldType) any {
	switch t {
	case schema.FieldInt:
		return &sql.NullInt64{}
	case schema.FieldBool:
		return &sql.NullBool{}
	default:
		return &sql.NullString{}
	}
}

// fieldValue unwraps a scan target; NULL columns are omitted from the
// assembled record.
func fieldValue(dest any) (any, bool) {
	switch v := dest.(type) {
	case *sql.NullString:
		if v.Valid {
			return v.String, true
		}
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64, true
		}
	case *sql.NullBool:
		if v.Valid {
			return v.Bool, true
		}
	}
	return nil, false
}
