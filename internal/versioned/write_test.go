package versioned

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-dev/stagehand/internal/record"
)

func TestWriteVersion_AllocatesIDAndVersion(t *testing.T) {
	e := newTestEngine(t)

	id, version := writePage(t, e, 0, "draft", "First")
	assert.Equal(t, record.ID(1), id)
	assert.Equal(t, int64(1), version)

	_, version = writePage(t, e, id, "draft", "Second")
	assert.Equal(t, int64(2), version)

	id2, version2 := writePage(t, e, 0, "draft", "Other record")
	assert.Equal(t, record.ID(2), id2)
	assert.Equal(t, int64(1), version2)
}

func TestWriteVersion_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, _ := writePage(t, e, 0, "draft", "Hello")

	rec, err := e.Get(ctx, "Page", id)
	require.NoError(t, err)
	assert.Equal(t, "Page", rec.Class)
	assert.Equal(t, "Hello", rec.Fields["title"])
	assert.Equal(t, "body of Hello", rec.Fields["content"])
}

func TestWriteVersion_SubclassRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, _ := writeNews(t, e, 0, "draft", "Breaking", "short version")

	rec, err := e.Get(ctx, "Page", id)
	require.NoError(t, err)
	assert.Equal(t, "NewsPage", rec.Class)
	assert.Equal(t, "Breaking", rec.Fields["title"])
	assert.Equal(t, "short version", rec.Fields["summary"])
	assert.Equal(t, true, rec.Fields["urgent"])
}

func TestWriteVersion_MissingColumnsBecomeNull(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, _ := writePage(t, e, 0, "draft", "Full")

	// A write sets the whole row; columns absent from the snapshot are
	// cleared, not preserved.
	_, _, err := e.WriteVersion(ctx, WriteRequest{
		Class:  "Page",
		ID:     id,
		Stage:  "draft",
		Fields: record.Snapshot{"pages": {"title": "Partial"}},
	})
	require.NoError(t, err)

	rec, err := e.Get(ctx, "Page", id)
	require.NoError(t, err)
	assert.Equal(t, "Partial", rec.Fields["title"])
	_, hasContent := rec.Fields["content"]
	assert.False(t, hasContent, "cleared column should not reappear")
}

func TestWriteVersion_CreatesStageRowOnFirstStageWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, _ := writePage(t, e, 0, "draft", "Draft only")

	// The record has never been written to live; writing there must
	// create the stage rows, not fail.
	_, version, err := e.WriteVersion(ctx, WriteRequest{
		Class:  "Page",
		ID:     id,
		Stage:  "live",
		Fields: record.Snapshot{"pages": {"title": "Straight to live"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	rec, err := e.ReadForStage(ctx, "Page", "live", byRecord(id))
	require.NoError(t, err)
	require.Len(t, rec, 1)
	assert.Equal(t, "Straight to live", rec[0].Fields["title"])
}

func TestWriteVersion_ClassMismatchIsIntegrityError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, _ := writePage(t, e, 0, "draft", "A page")

	_, _, err := e.WriteVersion(ctx, WriteRequest{
		Class:  "NewsPage",
		ID:     id,
		Stage:  "draft",
		Fields: record.Snapshot{"pages": {"title": "x"}, "news_pages": {"summary": "y"}},
	})
	require.Error(t, err)
	assert.True(t, IsIntegrity(err), "got %v", err)
}

func TestWriteVersion_RejectsUnknownStageAndColumns(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _, err := e.WriteVersion(ctx, WriteRequest{
		Class:  "Page",
		Stage:  "preview",
		Fields: record.Snapshot{"pages": {"title": "x"}},
	})
	require.Error(t, err)

	_, _, err = e.WriteVersion(ctx, WriteRequest{
		Class:  "Page",
		Stage:  "draft",
		Fields: record.Snapshot{"pages": {"nope": "x"}},
	})
	require.Error(t, err)

	_, _, err = e.WriteVersion(ctx, WriteRequest{
		Class:  "Page",
		Stage:  "draft",
		Fields: record.Snapshot{"news_pages": {"summary": "not in a Page's hierarchy"}},
	})
	require.Error(t, err)
}

func TestWriteVersion_ConcurrentWritersGapFree(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, _ := writePage(t, e, 0, "draft", "seed")

	const writers = 4
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, _, err := e.WriteVersion(ctx, WriteRequest{
					Class:  "Page",
					ID:     id,
					Stage:  "draft",
					Fields: record.Snapshot{"pages": {"title": "concurrent"}},
				})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// The seed write plus every concurrent write: versions 1..N with no
	// gaps and no duplicates.
	hist, err := e.AllVersions(ctx, "Page", id)
	require.NoError(t, err)
	defer hist.Close()

	var want int64 = 1
	for hist.Next() {
		assert.Equal(t, want, hist.Meta().Version)
		want++
	}
	require.NoError(t, hist.Err())
	assert.Equal(t, int64(writers*perWriter+2), want)
}
