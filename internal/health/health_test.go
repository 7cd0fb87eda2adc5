package health

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/recall/internal/memory"
	"github.com/jeanpaul/recall/internal/memory/memorytest"
)

func TestCheckHealthyDocument(t *testing.T) {
	store := memorytest.New(t)
	ctx := context.Background()
	_, err := store.AddNote(ctx, "alice", "prefers trains")
	require.NoError(t, err)
	_, err = store.SetPreference(ctx, "alice", memory.Preference{Key: "seat", Value: "window"})
	require.NoError(t, err)

	s := Check(ctx, store, time.Second)
	assert.True(t, s.Healthy())
	assert.Equal(t, store.Path(), s.Document)
	assert.Equal(t, 1, s.Users)
	assert.Equal(t, 1, s.Notes)
	assert.Equal(t, 1, s.Preferences)
	assert.Positive(t, s.SizeBytes)
	assert.Empty(t, s.Error)
}

func TestCheckCorruptDocument(t *testing.T) {
	store := memorytest.New(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version":1,"users":`), 0o644))

	s := Check(context.Background(), store, time.Second)
	assert.False(t, s.Healthy())
	assert.False(t, s.Reachable)
	assert.True(t, s.Corrupted)
	assert.Contains(t, s.Error, "writes are disabled")
}
