package reading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithMode_RoundTrip(t *testing.T) {
	ctx := WithMode(context.Background(), StageMode("draft"))

	mode, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "draft", mode.Stage)
	assert.False(t, mode.IsArchive())
}

func TestFromContext_Unset(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	mode := FromContextOr(context.Background(), StageMode("live"))
	assert.Equal(t, "live", mode.Stage)
}

func TestScoped_RestoresOuterMode(t *testing.T) {
	ctx := WithMode(context.Background(), StageMode("draft"))

	err := Scoped(ctx, StageMode("live"), func(inner context.Context) error {
		mode, ok := FromContext(inner)
		require.True(t, ok)
		assert.Equal(t, "live", mode.Stage)
		return nil
	})
	require.NoError(t, err)

	// Caller's context is untouched after the override.
	mode, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "draft", mode.Stage)
}

func TestScoped_RestoresOnError(t *testing.T) {
	ctx := WithMode(context.Background(), StageMode("draft"))
	boom := errors.New("boom")

	err := Scoped(ctx, StageMode("live"), func(inner context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	mode, _ := FromContext(ctx)
	assert.Equal(t, "draft", mode.Stage)
}

func TestScoped_Nested(t *testing.T) {
	ctx := WithMode(context.Background(), StageMode("draft"))

	err := Scoped(ctx, StageMode("live"), func(outer context.Context) error {
		return Scoped(outer, VersionMode(4), func(inner context.Context) error {
			mode, _ := FromContext(inner)
			assert.True(t, mode.IsArchive())
			assert.Equal(t, int64(4), mode.Version)

			// The outer override is still intact one level up.
			outerMode, _ := FromContext(outer)
			assert.Equal(t, "live", outerMode.Stage)
			return nil
		})
	})
	require.NoError(t, err)

	mode, _ := FromContext(ctx)
	assert.Equal(t, "draft", mode.Stage)
}

func TestScoped_ConcurrentRequestsIsolated(t *testing.T) {
	base := context.Background()
	done := make(chan string, 2)

	for _, stage := range []string{"draft", "live"} {
		go func(stage string) {
			ctx := WithMode(base, StageMode(stage))
			mode, _ := FromContext(ctx)
			done <- mode.Stage
		}(stage)
	}

	got := map[string]bool{<-done: true, <-done: true}
	assert.True(t, got["draft"])
	assert.True(t, got["live"])

	// The shared parent never picked up a mode.
	_, ok := FromContext(base)
	assert.False(t, ok)
}
