// Package testutil provides deterministic helpers and shared fixtures for
// engine-level tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/store"
	"github.com/stagehand-dev/stagehand/internal/versioned"
)

// PageSpec is the standard two-stage Page/NewsPage fixture used across
// engine and harness tests.
func PageSpec() schema.TypeSpec {
	return schema.TypeSpec{
		Name:   "Page",
		Stages: []string{"draft", "live"},
		Base: schema.TableSpec{
			Name:  "pages",
			Class: "Page",
			Fields: []schema.FieldSpec{
				{Name: "title", Type: schema.FieldText},
				{Name: "content", Type: schema.FieldText},
			},
		},
		Subclasses: []schema.TableSpec{
			{
				Name:  "news_pages",
				Class: "NewsPage",
				Fields: []schema.FieldSpec{
					{Name: "summary", Type: schema.FieldText},
					{Name: "urgent", Type: schema.FieldBool},
				},
			},
		},
	}
}

// NewRegistry builds a registry from the given specs, failing the test on
// configuration errors.
func NewRegistry(t *testing.T, specs ...schema.TypeSpec) *schema.Registry {
	t.Helper()
	if len(specs) == 0 {
		specs = []schema.TypeSpec{PageSpec()}
	}
	reg, err := schema.NewRegistry(specs...)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return reg
}

// NewStore opens a provisioned store in a test temp directory.
func NewStore(t *testing.T, reg *schema.Registry) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Provision(context.Background(), reg); err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	return s
}

// NewEngine creates a deterministic engine over a fresh provisioned store
// with the standard Page fixture.
func NewEngine(t *testing.T) *versioned.Engine {
	t.Helper()
	reg := NewRegistry(t)
	return versioned.NewWithClock(NewStore(t, reg), reg, NewDeterministicClock().Now)
}
