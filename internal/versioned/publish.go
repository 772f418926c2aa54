package versioned

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
)

// Publish copies a record's current field set from one stage to another,
// atomically across the whole table hierarchy. Either every hierarchy table
// reflects the source stage afterwards or none does.
//
// Publishing allocates no version: the content being copied was already
// versioned when it was written to the source stage. Target rows with no
// source counterpart are removed so the target stage never keeps stale
// subclass rows.
func (e *Engine) Publish(ctx context.Context, baseType string, id record.ID, fromStage, toStage string) error {
	d, err := e.descriptor(baseType)
	if err != nil {
		return err
	}
	if fromStage == toStage {
		return &schema.ConfigurationError{
			Type:    d.Name(),
			Message: fmt.Sprintf("source and target stage are both %q", fromStage),
		}
	}
	for _, stage := range []string{fromStage, toStage} {
		if !d.HasStage(stage) {
			return &schema.ConfigurationError{
				Type:    d.Name(),
				Message: fmt.Sprintf("unknown stage %q", stage),
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err := e.inTx(ctx, func(tx *sql.Tx) error {
			return publishTx(ctx, tx, d, id, fromStage, toStage)
		})
		if err == nil {
			return nil
		}
		if isTransient(err) {
			lastErr = err
			continue
		}
		return err
	}

	pub := engineErr(ErrCodePublish, d.Name(), id, 0,
		"publish %s -> %s failed after %d attempts", fromStage, toStage, maxWriteAttempts)
	pub.Err = lastErr
	return pub
}

func publishTx(ctx context.Context, tx *sql.Tx, d *schema.Descriptor, id record.ID, fromStage, toStage string) error {
	srcBase, err := d.StageTable(d.BaseTable().Name, fromStage)
	if err != nil {
		return err
	}

	var class string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", schema.ColClass, srcBase, schema.ColID)
	err = tx.QueryRowContext(ctx, query, id).Scan(&class)
	if err == sql.ErrNoRows {
		return engineErr(ErrCodeNotFound, d.Name(), id, 0, "record not in stage %s", fromStage)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", srcBase, err)
	}

	// The source stage must be internally consistent before it is copied;
	// a missing subclass row never propagates silently.
	if chain, err := d.HierarchyTables(class); err == nil {
		for _, t := range chain[1:] {
			src, err := d.StageTable(t.Name, fromStage)
			if err != nil {
				return err
			}
			var one int
			probe := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", src, schema.ColID)
			if err := tx.QueryRowContext(ctx, probe, id).Scan(&one); err == sql.ErrNoRows {
				return engineErr(ErrCodeIntegrity, d.Name(), id, 0,
					"class %s requires a row in %s, none found in stage %s", class, t.Name, fromStage)
			} else if err != nil {
				return fmt.Errorf("probe %s: %w", src, err)
			}
		}
	}

	for _, t := range d.AllTables() {
		if err := copyStageRow(ctx, tx, d, t, id, fromStage, toStage); err != nil {
			return err
		}
	}
	return nil
}

// copyStageRow mirrors one hierarchy table's row from the source stage into
// the target stage: upsert when the source row exists, delete otherwise.
func copyStageRow(ctx context.Context, tx *sql.Tx, d *schema.Descriptor, t schema.TableSpec, id record.ID, fromStage, toStage string) error {
	src, err := d.StageTable(t.Name, fromStage)
	if err != nil {
		return err
	}
	tgt, err := d.StageTable(t.Name, toStage)
	if err != nil {
		return err
	}

	cols := []string{schema.ColID}
	if t.Name == d.BaseTable().Name {
		cols = append(cols, schema.ColClass)
	}
	for _, f := range t.Fields {
		cols = append(cols, f.Name)
	}

	var one int
	probe := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", src, schema.ColID)
	err = tx.QueryRowContext(ctx, probe, id).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", tgt, schema.ColID)
		if _, err := tx.ExecContext(ctx, del, id); err != nil {
			return fmt.Errorf("delete %s: %w", tgt, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("probe %s: %w", src, err)
	}

	var sets []string
	for _, col := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	colList := strings.Join(cols, ", ")

	copySQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s = ? ON CONFLICT(%s) DO UPDATE SET %s",
		tgt, colList, colList, src, schema.ColID, schema.ColID, strings.Join(sets, ", "),
	)
	if _, err := tx.ExecContext(ctx, copySQL, id); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, tgt, err)
	}
	return nil
}

// DeleteFromStage removes a record's rows from one stage across the whole
// hierarchy. Other stages and the version history are untouched.
func (e *Engine) DeleteFromStage(ctx context.Context, baseType string, id record.ID, stage string) error {
	d, err := e.descriptor(baseType)
	if err != nil {
		return err
	}
	if !d.HasStage(stage) {
		return &schema.ConfigurationError{
			Type:    d.Name(),
			Message: fmt.Sprintf("unknown stage %q", stage),
		}
	}

	return e.inTx(ctx, func(tx *sql.Tx) error {
		var removed int64
		for _, t := range d.AllTables() {
			physical, err := d.StageTable(t.Name, stage)
			if err != nil {
				return err
			}
			del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", physical, schema.ColID)
			result, err := tx.ExecContext(ctx, del, id)
			if err != nil {
				return fmt.Errorf("delete %s: %w", physical, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete %s: rows affected: %w", physical, err)
			}
			removed += n
		}
		if removed == 0 {
			return engineErr(ErrCodeNotFound, d.Name(), id, 0, "record not in stage %s", stage)
		}
		return nil
	})
}
