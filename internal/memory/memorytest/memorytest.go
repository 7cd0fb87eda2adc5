// Package memorytest builds isolated record stores for tests.
package memorytest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jeanpaul/recall/internal/memory"
)

// New opens a test-mode store on a fresh document under t.TempDir().
func New(t testing.TB) *memory.FileStore {
	t.Helper()
	return NewWithOptions(t, memory.Options{})
}

// NewWithOptions is New with caller-chosen options. Path and TestMode are
// always overridden.
func NewWithOptions(t testing.TB, opts memory.Options) *memory.FileStore {
	t.Helper()
	opts.Path = filepath.Join(t.TempDir(), "memories.json")
	opts.TestMode = true
	if opts.LockTimeout == 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.LockRetryDelay == 0 {
		opts.LockRetryDelay = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	s, err := memory.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return s
}
