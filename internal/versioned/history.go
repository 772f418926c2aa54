package versioned

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/stagesql"
)

// LastVersion returns the highest version number written for a record. A
// record with no history is a not-found error.
func (e *Engine) LastVersion(ctx context.Context, baseType string, id record.ID) (int64, error) {
	d, err := e.descriptor(baseType)
	if err != nil {
		return 0, err
	}
	baseVersions := d.VersionsTable(d.BaseTable().Name)

	var last sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s = ?",
		schema.ColVersion, baseVersions, schema.ColRecordID)
	if err := e.store.DB().QueryRowContext(ctx, query, id).Scan(&last); err != nil {
		return 0, fmt.Errorf("query %s: %w", baseVersions, err)
	}
	if !last.Valid {
		return 0, engineErr(ErrCodeNotFound, d.Name(), id, 0, "record has no version history")
	}
	return last.Int64, nil
}

// History iterates a record's version metadata in ascending version order.
// Callers must Close it and check Err after the loop.
type History struct {
	rows *sql.Rows
	cur  record.VersionMeta
	err  error
}

// Next advances to the next history entry.
func (h *History) Next() bool {
	if h.err != nil || !h.rows.Next() {
		return false
	}
	var writtenAt time.Time
	var author sql.NullString
	if err := h.rows.Scan(&h.cur.RecordID, &h.cur.Version, &writtenAt, &author, &h.cur.Digest); err != nil {
		h.err = err
		return false
	}
	h.cur.WrittenAt = writtenAt.UTC()
	h.cur.Author = author.String
	return true
}

// Meta returns the entry Next advanced to.
func (h *History) Meta() record.VersionMeta { return h.cur }

// Err returns the first error hit during iteration.
func (h *History) Err() error {
	if h.err != nil {
		return h.err
	}
	return h.rows.Err()
}

// Close releases the iterator.
func (h *History) Close() error { return h.rows.Close() }

// AllVersions returns an iterator over a record's version history, oldest
// first. A record with no history yields an empty iteration, not an error.
func (e *Engine) AllVersions(ctx context.Context, baseType string, id record.ID) (*History, error) {
	d, err := e.descriptor(baseType)
	if err != nil {
		return nil, err
	}
	baseVersions := d.VersionsTable(d.BaseTable().Name)

	query := fmt.Sprintf("SELECT %s, %s, %s, %s, %s FROM %s WHERE %s = ? ORDER BY %s ASC",
		schema.ColRecordID, schema.ColVersion, schema.ColWrittenAt, schema.ColAuthor, schema.ColDigest,
		baseVersions, schema.ColRecordID, schema.ColVersion)
	rows, err := e.store.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", baseVersions, err)
	}
	return &History{rows: rows}, nil
}

// GetVersion fetches the full snapshot of one historical version. The
// hierarchy join is pinned to the version, so the snapshot never mixes rows
// from different versions.
func (e *Engine) GetVersion(ctx context.Context, baseType string, id record.ID, version int64) (*record.Record, error) {
	if version <= 0 {
		return nil, engineErr(ErrCodeNotFound, baseType, id, version, "version numbers start at 1")
	}
	recs, err := e.ReadForVersion(ctx, baseType, version, stagesql.ByID(int64(id)))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, engineErr(ErrCodeNotFound, baseType, id, version, "version not found")
	}
	return &recs[0], nil
}
