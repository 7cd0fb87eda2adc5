package analytics

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/lock"
)

// DefaultPath is the production tool-call log, next to the document.
var DefaultPath = filepath.Join("data", "tool_calls.jsonl")

// LogOptions tunes the log's lock and its test-mode guard.
type LogOptions struct {
	LockTimeout    time.Duration
	LockRetryDelay time.Duration
	StaleAfter     time.Duration
	Logger         *zap.Logger

	// TestMode refuses DefaultPath so test runs never append to the
	// production log.
	TestMode bool
}

// Log is an append-only JSON-lines file of tool-call entries. Appends from
// every process are serialized by an exclusive lock on a sibling file;
// each entry is fsynced before Record returns.
type Log struct {
	path   string
	locker *lock.Locker
	log    *zap.Logger
}

// Ensure Log implements Recorder
var _ Recorder = (*Log)(nil)

// OpenLog prepares the log at path, creating its directory. An empty path
// means DefaultPath.
func OpenLog(path string, opts LogOptions) (*Log, error) {
	if path == "" {
		if opts.TestMode {
			return nil, fmt.Errorf("analytics: test mode needs an explicit tool log path")
		}
		path = DefaultPath
	}
	if opts.TestMode && IsDefaultPath(path) {
		return nil, fmt.Errorf("analytics: refusing to open the default tool log %s in test mode", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		path: abs,
		locker: lock.New(abs+".lock", lock.Options{
			Timeout:    opts.LockTimeout,
			RetryDelay: opts.LockRetryDelay,
			StaleAfter: opts.StaleAfter,
			Logger:     logger,
		}),
		log: logger.With(zap.String("tool_log", abs)),
	}, nil
}

// IsDefaultPath reports whether path resolves to the production log.
func IsDefaultPath(path string) bool {
	a, errA := filepath.Abs(path)
	b, errB := filepath.Abs(DefaultPath)
	return errA == nil && errB == nil && a == b
}

// Path returns the absolute path of the log file.
func (l *Log) Path() string { return l.path }

// Record appends e as one line.
func (l *Log) Record(ctx context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	line = append(line, '\n')

	h, err := l.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("lock tool log: %w", err)
	}
	defer h.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tool log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append tool log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync tool log: %w", err)
	}
	return f.Close()
}

// Summary streams the log through a Reducer. A missing log yields the
// zero summary. Reading takes no lock: a trailing line without its
// newline belongs to an append in flight and is ignored.
func (l *Log) Summary(ctx context.Context, opts SummaryOptions) (Summary, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewReducer(opts).Summary(), nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("open tool log: %w", err)
	}
	defer f.Close()

	s, err := Summarize(ctx, f, opts)
	if err != nil {
		return Summary{}, err
	}
	if s.SkippedLines > 0 {
		l.log.Warn("skipped unreadable tool log lines", zap.Int64("skipped", s.SkippedLines))
	}
	return s, nil
}

// Summarize reduces a JSON-lines stream of entries.
func Summarize(ctx context.Context, r io.Reader, opts SummaryOptions) (Summary, error) {
	red := NewReducer(opts)
	br := bufio.NewReaderSize(r, 64*1024)
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Summary{}, err
			}
		}
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Partial final line: an append still in flight.
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("read tool log: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.ToolName == "" {
			red.skipped++
			continue
		}
		red.Add(e)
	}
	return red.Summary(), nil
}
