package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stagehand-dev/stagehand/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r, err := schema.NewRegistry(schema.TypeSpec{
		Name:   "Page",
		Stages: []string{"draft", "live"},
		Base: schema.TableSpec{
			Name:   "pages",
			Class:  "Page",
			Fields: []schema.FieldSpec{{Name: "title", Type: schema.FieldText}},
		},
		Subclasses: []schema.TableSpec{
			{
				Name:   "news_pages",
				Class:  "NewsPage",
				Fields: []schema.FieldSpec{{Name: "summary", Type: schema.FieldText}},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return r
}

func TestOpen_AppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestProvision_CreatesAllTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.Provision(context.Background(), testRegistry(t)); err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}

	for _, table := range []string{
		"pages", "pages_live", "pages_versions",
		"news_pages", "news_pages_live", "news_pages_versions",
	} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestProvision_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	reg := testRegistry(t)
	for i := 0; i < 2; i++ {
		if err := s.Provision(context.Background(), reg); err != nil {
			t.Fatalf("Provision() run %d failed: %v", i+1, err)
		}
	}
}
