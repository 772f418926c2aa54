package versioned

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
)

// maxWriteAttempts bounds the internal retry loop for version-allocation
// races and transient lock contention before a conflict error surfaces.
const maxWriteAttempts = 5

// errVersionRace signals that another writer claimed the version number
// this transaction computed; the write is rolled back and retried with a
// fresh read.
var errVersionRace = errors.New("version number already allocated")

// WriteRequest describes one stage write.
type WriteRequest struct {
	// Class is the record's concrete class name; it determines which
	// hierarchy tables participate in the write.
	Class string

	// ID is the record id; 0 allocates a fresh id.
	ID record.ID

	// Stage names the write target. The first write of a record to a new
	// stage creates the stage rows.
	Stage string

	// Fields holds the values to write, keyed by logical table name.
	// Columns absent from the snapshot are written as NULL; a write sets
	// the full row, it is not a partial patch.
	Fields record.Snapshot

	// Author is recorded in the version metadata; empty stores NULL.
	Author string
}

// WriteVersion upserts the record's rows in the target stage and appends
// one snapshot row per hierarchy table to the _versions tables, all inside
// one transaction. Every call allocates the next version number for the
// record; the returned sequence per record is strictly increasing with no
// gaps or duplicates, even under concurrent writers.
func (e *Engine) WriteVersion(ctx context.Context, req WriteRequest) (record.ID, int64, error) {
	d, err := e.reg.DescriptorForClass(req.Class)
	if err != nil {
		return 0, 0, err
	}
	if !d.HasStage(req.Stage) {
		return 0, 0, &schema.ConfigurationError{
			Type:    d.Name(),
			Message: fmt.Sprintf("unknown stage %q", req.Stage),
		}
	}
	chain, err := d.HierarchyTables(req.Class)
	if err != nil {
		return 0, 0, err
	}

	rows, err := normalizeSnapshot(chain, req.Fields)
	if err != nil {
		return 0, 0, err
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		id, version, err := e.writeOnce(ctx, d, chain, rows, req)
		if err == nil {
			return id, version, nil
		}
		if errors.Is(err, errVersionRace) || isTransient(err) {
			lastErr = err
			continue
		}
		return 0, 0, err
	}

	conflict := engineErr(ErrCodeConflict, d.Name(), req.ID, 0,
		"version allocation failed after %d attempts", maxWriteAttempts)
	conflict.Err = lastErr
	return 0, 0, conflict
}

// normalizeSnapshot validates the snapshot against the hierarchy and
// expands it to one full row per chain table, missing columns as NULL.
func normalizeSnapshot(chain []schema.TableSpec, snapshot record.Snapshot) (map[string]record.Fields, error) {
	inChain := make(map[string]schema.TableSpec, len(chain))
	for _, t := range chain {
		inChain[t.Name] = t
	}
	for table := range snapshot {
		if _, ok := inChain[table]; !ok {
			return nil, fmt.Errorf("snapshot names table %s outside the record's hierarchy", table)
		}
	}

	rows := make(map[string]record.Fields, len(chain))
	for _, t := range chain {
		given := snapshot[t.Name]
		known := make(map[string]bool, len(t.Fields))
		for _, f := range t.Fields {
			known[f.Name] = true
		}
		for col := range given {
			if !known[col] {
				return nil, fmt.Errorf("table %s has no column %q", t.Name, col)
			}
		}

		row := make(record.Fields, len(t.Fields))
		for _, f := range t.Fields {
			v, err := storableValue(given[f.Name])
			if err != nil {
				return nil, fmt.Errorf("table %s, column %s: %w", t.Name, f.Name, err)
			}
			row[f.Name] = v
		}
		rows[t.Name] = row
	}
	return rows, nil
}

// storableValue coerces a snapshot value into the storable domain.
func storableValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, int64, bool:
		return val, nil
	case int:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// writeOnce performs one transactional write attempt.
func (e *Engine) writeOnce(ctx context.Context, d *schema.Descriptor, chain []schema.TableSpec, rows map[string]record.Fields, req WriteRequest) (record.ID, int64, error) {
	baseVersions := d.VersionsTable(d.BaseTable().Name)
	id := req.ID
	var version int64

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		// Allocate a record id on first write. History rows are never
		// deleted, so MAX over the versions table never reuses an id.
		if id == 0 {
			query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s",
				schema.ColRecordID, baseVersions)
			if err := tx.QueryRowContext(ctx, query).Scan(&id); err != nil {
				return fmt.Errorf("allocate record id: %w", err)
			}
		}

		// A record's concrete class is fixed by its first write.
		var existingClass string
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s DESC LIMIT 1",
			schema.ColClass, baseVersions, schema.ColRecordID, schema.ColVersion)
		err := tx.QueryRowContext(ctx, query, id).Scan(&existingClass)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read record class: %w", err)
		}
		if err == nil && existingClass != req.Class {
			return engineErr(ErrCodeIntegrity, d.Name(), id, 0,
				"record is of class %s, write claims %s", existingClass, req.Class)
		}

		// Read-then-allocate; the UNIQUE(record_id, version) key on the
		// _versions tables catches racing writers below.
		query = fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s WHERE %s = ?",
			schema.ColVersion, baseVersions, schema.ColRecordID)
		if err := tx.QueryRowContext(ctx, query, id).Scan(&version); err != nil {
			return fmt.Errorf("allocate version: %w", err)
		}

		now := e.now().UTC()
		for _, t := range chain {
			isBase := t.Name == d.BaseTable().Name

			if err := upsertStageRow(ctx, tx, d, t, req.Stage, id, req.Class, isBase, rows[t.Name]); err != nil {
				return err
			}
			if err := insertVersionRow(ctx, tx, d, t, id, version, req.Class, isBase, now, req.Author, rows[t.Name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return id, version, nil
}

// upsertStageRow writes one hierarchy table's row in the target stage,
// creating it on the record's first write to that stage.
func upsertStageRow(ctx context.Context, tx *sql.Tx, d *schema.Descriptor, t schema.TableSpec, stage string, id record.ID, class string, isBase bool, row record.Fields) error {
	physical, err := d.StageTable(t.Name, stage)
	if err != nil {
		return err
	}

	cols := []string{schema.ColID}
	args := []any{int64(id)}
	if isBase {
		cols = append(cols, schema.ColClass)
		args = append(args, class)
	}
	for _, f := range t.Fields {
		cols = append(cols, f.Name)
		args = append(args, row[f.Name])
	}

	var sets []string
	for _, col := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		physical,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		schema.ColID,
		strings.Join(sets, ", "),
	)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", physical, err)
	}
	return nil
}

// insertVersionRow appends one immutable snapshot row. A conflict on
// (record_id, version) means another writer won the allocation race; the
// caller rolls the transaction back and retries.
func insertVersionRow(ctx context.Context, tx *sql.Tx, d *schema.Descriptor, t schema.TableSpec, id record.ID, version int64, class string, isBase bool, writtenAt time.Time, author string, row record.Fields) error {
	physical := d.VersionsTable(t.Name)

	digest, err := record.RowDigest(t.Name, id, version, row)
	if err != nil {
		return err
	}

	var authorVal sql.NullString
	if author != "" {
		authorVal = sql.NullString{String: author, Valid: true}
	}

	cols := []string{schema.ColRecordID, schema.ColVersion}
	args := []any{int64(id), version}
	if isBase {
		cols = append(cols, schema.ColClass)
		args = append(args, class)
	}
	cols = append(cols, schema.ColWrittenAt, schema.ColAuthor, schema.ColDigest)
	args = append(args, writtenAt, authorVal, digest)
	for _, f := range t.Fields {
		cols = append(cols, f.Name)
		args = append(args, row[f.Name])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s, %s) DO NOTHING",
		physical,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		schema.ColRecordID,
		schema.ColVersion,
	)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", physical, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s: rows affected: %w", physical, err)
	}
	if affected == 0 {
		return errVersionRace
	}
	return nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}
