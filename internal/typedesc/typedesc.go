// Package typedesc resolves concrete class names for versioned hierarchies,
// including obsolete classes that survive only in stored rows.
package typedesc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/store"
)

// Resolver answers "which concrete classes can this column hold". The
// configured answer comes from the registry; the historical answer
// additionally scans the stored rows, because history may reference classes
// that were removed from configuration.
//
// Scan results are cached per (table, column). The cache never expires on
// its own; callers invalidate it when the configured type set changes.
type Resolver struct {
	store *store.Store
	reg   *schema.Registry

	mu    sync.RWMutex
	cache map[cacheKey][]string
}

type cacheKey struct {
	table  string
	column string
}

// NewResolver creates a resolver over a provisioned store.
func NewResolver(st *store.Store, reg *schema.Registry) *Resolver {
	return &Resolver{
		store: st,
		reg:   reg,
		cache: make(map[cacheKey][]string),
	}
}

// KnownTypes returns the concrete classes currently configured for a base
// type, sorted.
func (r *Resolver) KnownTypes(baseType string) ([]string, error) {
	d, err := r.reg.Descriptor(baseType)
	if err != nil {
		return nil, err
	}
	classes := d.KnownClasses()
	sort.Strings(classes)
	return classes, nil
}

// AllTypesIncludingObsolete merges the configured classes with the distinct
// values actually stored in the given class column, across every stage
// table and the version history of the column's base table.
func (r *Resolver) AllTypesIncludingObsolete(ctx context.Context, table, column string) ([]string, error) {
	key := cacheKey{table: table, column: column}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		out := make([]string, len(cached))
		copy(out, cached)
		return out, nil
	}

	types, err := r.scanTypes(ctx, table, column)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = types
	r.mu.Unlock()

	out := make([]string, len(types))
	copy(out, types)
	return out, nil
}

// InvalidateCache drops every cached scan. Call it whenever the configured
// type set changes; nothing else resets the cache.
func (r *Resolver) InvalidateCache() {
	r.mu.Lock()
	r.cache = make(map[cacheKey][]string)
	r.mu.Unlock()
}

func (r *Resolver) scanTypes(ctx context.Context, table, column string) ([]string, error) {
	d, err := r.reg.DescriptorForTable(table)
	if err != nil {
		return nil, err
	}
	// Only base tables carry the class column.
	if table != d.BaseTable().Name || column != schema.ColClass {
		return nil, fmt.Errorf("typedesc: %s has no class column %q", table, column)
	}

	seen := make(map[string]bool)
	for _, class := range d.KnownClasses() {
		seen[class] = true
	}

	physicals := make([]string, 0, len(d.Stages())+1)
	for _, stage := range d.Stages() {
		physical, err := d.StageTable(table, stage)
		if err != nil {
			return nil, err
		}
		physicals = append(physicals, physical)
	}
	physicals = append(physicals, d.VersionsTable(table))

	for _, physical := range physicals {
		query := fmt.Sprintf("SELECT DISTINCT %s FROM %s", column, physical)
		rows, err := r.store.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", physical, err)
		}
		for rows.Next() {
			var class string
			if err := rows.Scan(&class); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", physical, err)
			}
			seen[class] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", physical, err)
		}
		rows.Close()
	}

	types := make([]string, 0, len(seen))
	for class := range seen {
		types = append(types, class)
	}
	sort.Strings(types)
	return types, nil
}
