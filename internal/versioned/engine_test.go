package versioned

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/stagesql"
	"github.com/stagehand-dev/stagehand/internal/store"
)

func byRecord(id record.ID) stagesql.Query {
	return stagesql.ByID(int64(id))
}

func pageRegistry(t *testing.T) *schema.Registry {
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
	require.NoError(t, err)
	return r
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := pageRegistry(t)
	require.NoError(t, s.Provision(context.Background(), reg))
	return New(s, reg)
}

func writePage(t *testing.T, e *Engine, id record.ID, stage, title string) (record.ID, int64) {
	t.Helper()
	newID, version, err := e.WriteVersion(context.Background(), WriteRequest{
		Class: "Page",
		ID:    id,
		Stage: stage,
		Fields: record.Snapshot{
			"pages": {"title": title, "content": "body of " + title},
		},
		Author: "tester",
	})
	require.NoError(t, err)
	return newID, version
}

func writeNews(t *testing.T, e *Engine, id record.ID, stage, title, summary string) (record.ID, int64) {
	t.Helper()
	newID, version, err := e.WriteVersion(context.Background(), WriteRequest{
		Class: "NewsPage",
		ID:    id,
		Stage: stage,
		Fields: record.Snapshot{
			"pages":      {"title": title},
			"news_pages": {"summary": summary, "urgent": true},
		},
	})
	require.NoError(t, err)
	return newID, version
}
