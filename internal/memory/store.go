package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/lock"
)

// DefaultPath is the production document location, relative to the
// working directory.
var DefaultPath = filepath.Join("data", "memories.json")

// Ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// Options configures Open.
type Options struct {
	// Path of the JSON document. Empty means DefaultPath outside test mode.
	Path string

	LockTimeout    time.Duration
	LockRetryDelay time.Duration
	StaleAfter     time.Duration

	Limits Limits

	// TestMode refuses to open DefaultPath so tests cannot touch
	// production data.
	TestMode bool

	Logger *zap.Logger
}

// FileStore is the Store backed by a single JSON document on disk.
type FileStore struct {
	path   string
	locker *lock.Locker
	limits Limits
	log    *zap.Logger

	// corrupted mirrors the marker file, which is the latch shared by
	// every process. Mutations are refused while it is set.
	corrupted atomic.Bool
	// localLatch holds the latch in this process when the marker could
	// not be written.
	localLatch atomic.Bool

	now   func() time.Time
	newID func() string

	// beforeRename runs after the temp file is durable and before it
	// replaces the document. Tests use it to simulate a crash.
	beforeRename func(tmpPath string) error
}

// Open prepares the document at opts.Path, creating an empty one on first
// use and discarding temp files left by a writer that died mid-write.
func Open(ctx context.Context, opts Options) (*FileStore, error) {
	path, err := resolvePath(opts)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("document", path))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &FileStore{
		path: path,
		locker: lock.New(path+".lock", lock.Options{
			Timeout:    opts.LockTimeout,
			RetryDelay: opts.LockRetryDelay,
			StaleAfter: opts.StaleAfter,
			Logger:     log,
		}),
		limits: opts.Limits.withDefaults(),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}

	h, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, s.lockError(err)
	}
	defer h.Unlock()

	s.removeTempFiles()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(newDocument()); err != nil {
			return nil, err
		}
		log.Info("created empty memory document")
	} else if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "stat document", Err: err}
	}
	return s, nil
}

func resolvePath(opts Options) (string, error) {
	path := opts.Path
	if opts.TestMode {
		if path == "" {
			return "", errors.New("memory: test mode requires an explicit document path")
		}
		if IsDefaultPath(path) {
			return "", fmt.Errorf("memory: refusing to open the default document %s in test mode", path)
		}
	}
	if path == "" {
		path = DefaultPath
	}
	return filepath.Abs(path)
}

// IsDefaultPath reports whether path resolves to the production document.
func IsDefaultPath(path string) bool {
	a, errA := filepath.Abs(path)
	b, errB := filepath.Abs(DefaultPath)
	return errA == nil && errB == nil && a == b
}

// Path returns the absolute document path.
func (s *FileStore) Path() string { return s.path }

// Limits returns the validation limits the store enforces.
func (s *FileStore) Limits() Limits { return s.limits }

// Corrupted reports whether writes are refused. The marker file is
// consulted on every call, so a marker removed by another process
// re-enables writes here too.
func (s *FileStore) Corrupted() bool {
	if s.localLatch.Load() {
		return true
	}
	if _, err := os.Stat(s.markerPath()); err == nil {
		s.corrupted.Store(true)
		return true
	}
	if s.corrupted.CompareAndSwap(true, false) {
		s.log.Info("corruption marker removed; writes re-enabled")
	}
	return false
}

// markerPath holds the reason the document was declared corrupted. It
// carries the latch across processes and restarts.
func (s *FileStore) markerPath() string { return s.path + ".corrupt" }

func (s *FileStore) markCorrupted(cause error) {
	if s.corrupted.CompareAndSwap(false, true) {
		s.log.Error("memory document is corrupted; refusing further writes", zap.Error(cause))
	}
	if _, err := os.Stat(s.markerPath()); err == nil {
		return
	}
	reason := fmt.Sprintf("%s %v\n", s.now().Format(time.RFC3339), cause)
	if err := os.WriteFile(s.markerPath(), []byte(reason), 0o644); err != nil {
		s.log.Warn("write corruption marker; latching in this process only", zap.Error(err))
		s.localLatch.Store(true)
	}
}

// mutate runs fn against a freshly loaded document under the exclusive
// lock and writes the result back if fn succeeds. Once the lock is held,
// the caller's context no longer matters: the write either completes or
// the temp file is discarded.
func (s *FileStore) mutate(ctx context.Context, fn func(doc *Document) error) error {
	if s.Corrupted() {
		return &Error{Kind: KindCorruption, Message: "document is marked corrupted; writes are disabled until it is repaired"}
	}
	h, err := s.locker.Lock(ctx)
	if err != nil {
		return s.lockError(err)
	}
	defer func() {
		if err := h.Unlock(); err != nil {
			s.log.Warn("release document lock", zap.Error(err))
		}
	}()

	s.removeTempFiles()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.write(doc)
}

// view runs fn against the document under the shared lock.
func (s *FileStore) view(ctx context.Context, fn func(doc *Document) error) error {
	h, err := s.locker.RLock(ctx)
	if err != nil {
		return s.lockError(err)
	}
	defer h.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *FileStore) lockError(err error) error {
	if errors.Is(err, lock.ErrTimeout) {
		return &Error{Kind: KindLockTimeout, Message: "document is busy", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Message: "canceled while waiting for the document lock", Err: err}
	}
	return &Error{Kind: KindInternal, Message: "acquire document lock", Err: err}
}

func (s *FileStore) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "read document", Err: err}
	}
	doc, err := parseDocument(data)
	if err != nil {
		s.markCorrupted(err)
		return nil, &Error{Kind: KindCorruption, Message: "document failed to parse", Err: err}
	}
	return doc, nil
}

func parseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after document")
	}
	if doc.Version > DocumentVersion || doc.Version < 0 {
		return nil, fmt.Errorf("unsupported document version %d", doc.Version)
	}
	doc.Version = DocumentVersion
	if doc.Users == nil {
		doc.Users = map[string]Record{}
	}
	for id, rec := range doc.Users {
		if rec.UserID != id {
			return nil, fmt.Errorf("record under %q claims user_id %q", id, rec.UserID)
		}
		if rec.GeneralMemory == nil {
			rec.GeneralMemory = []Note{}
		}
		if rec.TravelPreferences == nil {
			rec.TravelPreferences = map[string]Preference{}
		}
		doc.Users[id] = rec
	}
	return &doc, nil
}

// write replaces the document atomically: temp file in the same
// directory, fsync, rename, fsync of the directory.
func (s *FileStore) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &Error{Kind: KindInternal, Message: "encode document", Err: err}
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &Error{Kind: KindInternal, Message: "create temp document", Err: err}
	}
	tmpPath := tmp.Name()
	discard := func(cause error, msg string) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &Error{Kind: KindInternal, Message: msg, Err: cause}
	}

	if _, err := tmp.Write(data); err != nil {
		return discard(err, "write temp document")
	}
	if err := tmp.Sync(); err != nil {
		return discard(err, "sync temp document")
	}
	if err := tmp.Close(); err != nil {
		return discard(err, "close temp document")
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmpPath); err != nil {
			_ = os.Remove(tmpPath)
			return &Error{Kind: KindInternal, Message: "write interrupted", Err: err}
		}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Kind: KindInternal, Message: "replace document", Err: err}
	}
	if err := syncDir(dir); err != nil {
		s.log.Warn("sync data dir", zap.Error(err))
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// removeTempFiles runs under the exclusive lock, so any temp file present
// belongs to a writer that never reached its rename.
func (s *FileStore) removeTempFiles() {
	matches, err := filepath.Glob(s.path + ".tmp-*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			s.log.Warn("removed temp document left by an interrupted write", zap.String("temp", m))
		}
	}
}

// Check parses the document under the shared lock and reports its size.
func (s *FileStore) Check(ctx context.Context) (DocumentStats, error) {
	stats := DocumentStats{Path: s.path}
	err := s.view(ctx, func(doc *Document) error {
		stats.Users = len(doc.Users)
		for _, rec := range doc.Users {
			stats.Notes += len(rec.GeneralMemory)
			stats.Preferences += len(rec.TravelPreferences)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	if fi, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = fi.Size()
	}
	return stats, nil
}

// ClearCorruption re-enables writes after an operator repaired the
// document. It fails with a corruption error while the document still
// does not parse.
func (s *FileStore) ClearCorruption(ctx context.Context) error {
	if _, err := s.Check(ctx); err != nil {
		return err
	}
	if err := os.Remove(s.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Kind: KindInternal, Message: "remove corruption marker", Err: err}
	}
	s.localLatch.Store(false)
	if s.corrupted.CompareAndSwap(true, false) {
		s.log.Info("memory document parses again; writes re-enabled")
	}
	return nil
}
