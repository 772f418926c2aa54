package stagesql

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/stagehand-dev/stagehand/internal/reading"
	"github.com/stagehand-dev/stagehand/internal/schema"
)

func testCompiler(t *testing.T) *Compiler {
	t.Helper()
	r, err := schema.NewRegistry(schema.TypeSpec{
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
	})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	d, err := r.Descriptor("Page")
	if err != nil {
		t.Fatalf("Descriptor() failed: %v", err)
	}
	return NewCompiler(d)
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCompile_PrimalStage(t *testing.T) {
	c := testCompiler(t)

	stmt, err := c.Compile(Query{}, reading.StageMode("draft"))
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	golden(t).Assert(t, "select_draft", []byte(stmt.SQL))

	if len(stmt.Args) != 0 {
		t.Errorf("args = %v, want none", stmt.Args)
	}
	// id, class_name, title, content, marker, summary, urgent
	if len(stmt.Columns) != 7 {
		t.Errorf("columns = %d, want 7", len(stmt.Columns))
	}
	if stmt.Columns[0].Kind != ColBaseID || stmt.Columns[1].Kind != ColClass {
		t.Errorf("select list must start with base id and class")
	}
	if stmt.Columns[4].Kind != ColMarker || stmt.Columns[4].Table != "news_pages" {
		t.Errorf("subclass marker missing: %+v", stmt.Columns[4])
	}
}

func TestCompile_SuffixedStageWithFilter(t *testing.T) {
	c := testCompiler(t)

	stmt, err := c.Compile(Query{
		Filter: And{Predicates: []Predicate{
			Equals{Column: "title", Value: "News"},
			Compare{Column: "urgent", Op: ">=", Value: true},
		}},
	}, reading.StageMode("live"))
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	golden(t).Assert(t, "select_live_filtered", []byte(stmt.SQL))

	if len(stmt.Args) != 2 {
		t.Fatalf("args = %v, want 2", stmt.Args)
	}
	if stmt.Args[0] != "News" || stmt.Args[1] != true {
		t.Errorf("args = %v", stmt.Args)
	}
}

func TestCompile_ArchiveMode(t *testing.T) {
	c := testCompiler(t)

	stmt, err := c.Compile(ByID(7), reading.VersionMode(3))
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	golden(t).Assert(t, "select_archive", []byte(stmt.SQL))

	// Version pin first, then the id filter.
	if len(stmt.Args) != 2 {
		t.Fatalf("args = %v, want 2", stmt.Args)
	}
	if stmt.Args[0] != int64(3) || stmt.Args[1] != int64(7) {
		t.Errorf("args = %v", stmt.Args)
	}
}

func TestCompile_ColumnRestriction(t *testing.T) {
	c := testCompiler(t)

	stmt, err := c.Compile(Query{Columns: []string{"title"}}, reading.StageMode("draft"))
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	// id, class_name, title, marker
	if len(stmt.Columns) != 4 {
		t.Errorf("columns = %d, want 4", len(stmt.Columns))
	}
	for _, col := range stmt.Columns {
		if col.Kind == ColField && col.Field.Name != "title" {
			t.Errorf("unexpected field %s", col.Field.Name)
		}
	}
}

func TestCompile_UnknownStage(t *testing.T) {
	c := testCompiler(t)

	if _, err := c.Compile(Query{}, reading.StageMode("archived")); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestCompile_UnknownColumn(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile(Query{Filter: Equals{Column: "nope", Value: "x"}}, reading.StageMode("draft"))
	if err == nil {
		t.Error("expected error for unknown filter column")
	}
}

func TestCompile_UnsetMode(t *testing.T) {
	c := testCompiler(t)

	if _, err := c.Compile(Query{}, reading.Mode{}); err == nil {
		t.Error("expected error for unset mode")
	}
}

func TestCompile_InvalidCompareOp(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile(Query{
		Filter: Compare{Column: "title", Op: "LIKE", Value: "x"},
	}, reading.StageMode("draft"))
	if err == nil {
		t.Error("expected error for invalid compare op")
	}
}

func TestCompile_NeverInterpolatesValues(t *testing.T) {
	c := testCompiler(t)

	hostile := `x"; DROP TABLE pages; --`
	stmt, err := c.Compile(Query{
		Filter: Equals{Column: "title", Value: hostile},
	}, reading.StageMode("draft"))
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	if strings.Contains(stmt.SQL, "DROP TABLE") {
		t.Errorf("value interpolated into SQL: %s", stmt.SQL)
	}
	if stmt.Args[0] != hostile {
		t.Errorf("args = %v", stmt.Args)
	}
}
