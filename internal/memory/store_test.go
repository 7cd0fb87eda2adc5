package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeanpaul/recall/internal/lock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestStore(t *testing.T) (*FileStore, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	s, err := Open(context.Background(), Options{
		Path:           filepath.Join(t.TempDir(), "memories.json"),
		TestMode:       true,
		LockTimeout:    2 * time.Second,
		LockRetryDelay: time.Millisecond,
		Logger:         zap.New(core),
	})
	require.NoError(t, err)
	return s, logs
}

func newShortLocker(s *FileStore) *lock.Locker {
	return lock.New(s.path+".lock", lock.Options{Timeout: 50 * time.Millisecond, RetryDelay: 5 * time.Millisecond})
}

func TestOpenCreatesEmptyDocument(t *testing.T) {
	s, _ := openTestStore(t)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Empty(t, doc.Users)
}

func TestTestModeRefusesDefaultPath(t *testing.T) {
	_, err := Open(context.Background(), Options{Path: DefaultPath, TestMode: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing")

	_, err = Open(context.Background(), Options{TestMode: true})
	require.Error(t, err)

	_, statErr := os.Stat(DefaultPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "default document must not be created by tests")
}

func TestCrashBeforeRenameLeavesDocumentIntact(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.AddNote(ctx, "alice", "survives the crash")
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var tmpSeen string
	s.beforeRename = func(tmp string) error {
		tmpSeen = tmp
		return errors.New("simulated crash")
	}
	_, err = s.AddNote(ctx, "alice", "never lands")
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, tmpSeen)

	s.beforeRename = nil
	rec, err := s.GetMemory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rec.GeneralMemory, 1)
	assert.Equal(t, "survives the crash", rec.GeneralMemory[0].Text)
}

func TestKilledWriterTempFileIsDiscarded(t *testing.T) {
	ctx := context.Background()
	s, logs := openTestStore(t)

	_, err := s.AddNote(ctx, "alice", "committed")
	require.NoError(t, err)

	// A writer killed after writing half its temp file and before renaming.
	orphan := s.Path() + ".tmp-12345"
	require.NoError(t, os.WriteFile(orphan, []byte(`{"version":1,"users":{"alice":`), 0o644))

	reopened, err := Open(ctx, Options{Path: s.Path(), TestMode: true})
	require.NoError(t, err)
	assert.NoFileExists(t, orphan)

	rec, err := reopened.GetMemory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rec.GeneralMemory, 1)
	assert.Equal(t, "committed", rec.GeneralMemory[0].Text)

	require.NoError(t, os.WriteFile(orphan, []byte("{"), 0o644))
	_, err = s.AddNote(ctx, "alice", "after orphan")
	require.NoError(t, err)
	assert.NoFileExists(t, orphan)
	assert.GreaterOrEqual(t, logs.FilterMessageSnippet("interrupted write").Len(), 1)
}

func TestCorruptionLatchesWrites(t *testing.T) {
	ctx := context.Background()
	s, logs := openTestStore(t)

	_, err := s.AddNote(ctx, "alice", "before corruption")
	require.NoError(t, err)
	good, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"version":1,"users":{"alice":{`), 0o644))

	_, err = s.GetMemory(ctx, "alice")
	assert.ErrorIs(t, err, ErrCorruption)
	assert.True(t, s.Corrupted())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	// Even a repaired file is not written to until the latch is cleared.
	require.NoError(t, os.WriteFile(s.Path(), good, 0o644))
	_, err = s.AddNote(ctx, "alice", "while latched")
	assert.ErrorIs(t, err, ErrCorruption)

	require.NoError(t, s.ClearCorruption(ctx))
	assert.False(t, s.Corrupted())
	_, err = s.AddNote(ctx, "alice", "after repair")
	require.NoError(t, err)
}

func TestCorruptionMarkerSharedAcrossStores(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	good, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	other, err := Open(ctx, Options{Path: s.Path(), TestMode: true, LockTimeout: 2 * time.Second, LockRetryDelay: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte("{"), 0o644))
	_, err = s.GetMemory(ctx, "alice")
	require.ErrorIs(t, err, ErrCorruption)
	assert.FileExists(t, s.Path()+".corrupt")

	// The other store never read the broken file but must still refuse.
	require.NoError(t, os.WriteFile(s.Path(), good, 0o644))
	assert.True(t, other.Corrupted())
	_, err = other.AddNote(ctx, "alice", "x")
	assert.ErrorIs(t, err, ErrCorruption)

	require.NoError(t, other.ClearCorruption(ctx))
	assert.NoFileExists(t, s.Path()+".corrupt")
	_, err = other.AddNote(ctx, "alice", "x")
	require.NoError(t, err)

	// The store that latched first follows the marker too.
	assert.False(t, s.Corrupted())
	_, err = s.AddNote(ctx, "alice", "y")
	require.NoError(t, err)
	rec, err := s.GetMemory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, rec.GeneralMemory, 2)
}

func TestCorruptionLatchesLocallyWithoutMarker(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	// A read-only data dir makes the marker write fail.
	require.NoError(t, os.WriteFile(s.Path(), []byte("{"), 0o644))
	require.NoError(t, os.Chmod(filepath.Dir(s.Path()), 0o555))
	t.Cleanup(func() { _ = os.Chmod(filepath.Dir(s.Path()), 0o755) })

	_, err := s.GetMemory(ctx, "alice")
	require.ErrorIs(t, err, ErrCorruption)
	if _, statErr := os.Stat(s.Path() + ".corrupt"); statErr == nil {
		t.Skip("directory is writable despite its mode (running as root)")
	}
	assert.True(t, s.Corrupted())
	_, err = s.AddNote(ctx, "alice", "x")
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestClearCorruptionFailsWhileBroken(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, os.WriteFile(s.Path(), []byte("not json"), 0o644))
	_, err := s.Check(ctx)
	require.ErrorIs(t, err, ErrCorruption)

	assert.ErrorIs(t, s.ClearCorruption(ctx), ErrCorruption)
	assert.True(t, s.Corrupted())
}

func TestParseDocumentRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"mismatched owner": `{"version":1,"users":{"alice":{"user_id":"bob","general_memory":[],"travel_preferences":{}}}}`,
		"future version":   `{"version":9,"users":{}}`,
		"unknown field":    `{"version":1,"users":{},"extra":true}`,
		"trailing data":    `{"version":1,"users":{}} {}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseDocument([]byte(raw))
			assert.Error(t, err)
		})
	}

	doc, err := parseDocument([]byte(`{"users":{"alice":{"user_id":"alice"}}}`))
	require.NoError(t, err)
	assert.NotNil(t, doc.Users["alice"].GeneralMemory)
	assert.NotNil(t, doc.Users["alice"].TravelPreferences)
}

func TestLockTimeoutSurfacesAsKind(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	s.locker = newShortLocker(s)

	h, err := s.locker.Lock(ctx)
	require.NoError(t, err)
	defer h.Unlock()

	_, err = s.AddNote(ctx, "alice", "blocked")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.GetMemory(canceled, "alice")
	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestCheckReportsCounts(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.AddNote(ctx, "alice", "a")
	require.NoError(t, err)
	_, err = s.SetPreference(ctx, "bob", Preference{Key: "seat", Value: "aisle"})
	require.NoError(t, err)

	stats, err := s.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Notes)
	assert.Equal(t, 1, stats.Preferences)
	assert.Positive(t, stats.SizeBytes)
}
