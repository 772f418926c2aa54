package versioned

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/store"
)

// Engine ties the schema registry, the SQL rewriter, and the SQLite store
// together. It is safe for concurrent use.
type Engine struct {
	store *store.Store
	reg   *schema.Registry
	now   func() time.Time
}

// New creates an engine over an already-provisioned store.
func New(st *store.Store, reg *schema.Registry) *Engine {
	return NewWithClock(st, reg, time.Now)
}

// NewWithClock creates an engine whose version timestamps come from the
// given clock. Test harnesses pass a deterministic clock so traces are
// reproducible.
func NewWithClock(st *store.Store, reg *schema.Registry, now func() time.Time) *Engine {
	return &Engine{store: st, reg: reg, now: now}
}

// Registry returns the schema registry the engine was built with.
func (e *Engine) Registry() *schema.Registry { return e.reg }

// descriptor resolves the descriptor for a base type.
func (e *Engine) descriptor(baseType string) (*schema.Descriptor, error) {
	return e.reg.Descriptor(baseType)
}

// inTx runs fn inside one transaction, rolling back on error.
func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
