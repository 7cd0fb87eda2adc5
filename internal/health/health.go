package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jeanpaul/recall/internal/memory"
)

// Status is the outcome of one probe of the memory document.
type Status struct {
	Document    string        `json:"document"`
	Reachable   bool          `json:"reachable"`
	Corrupted   bool          `json:"corrupted"`
	Users       int           `json:"users"`
	Notes       int           `json:"notes"`
	Preferences int           `json:"preferences"`
	SizeBytes   int64         `json:"size_bytes"`
	Error       string        `json:"error,omitempty"`
	Latency     time.Duration `json:"latency_ns"`
}

// Healthy reports whether the document can be read and written.
func (s Status) Healthy() bool { return s.Reachable && !s.Corrupted }

// Checker is the part of the store a probe needs.
type Checker interface {
	Path() string
	Check(ctx context.Context) (memory.DocumentStats, error)
	Corrupted() bool
}

// Check verifies the document is readable under its shared lock and
// parses cleanly. It never waits longer than timeout.
func Check(ctx context.Context, c Checker, timeout time.Duration) Status {
	s := Status{Document: c.Path()}
	start := time.Now()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stats, err := c.Check(ctx)
	s.Latency = time.Since(start)
	s.Corrupted = c.Corrupted()
	if err != nil {
		s.Error = friendlyError(err)
		return s
	}
	s.Reachable = true
	s.Users, s.Notes, s.Preferences, s.SizeBytes = stats.Users, stats.Notes, stats.Preferences, stats.SizeBytes
	return s
}

func friendlyError(err error) string {
	switch memory.KindOf(err) {
	case memory.KindLockTimeout:
		return "document lock is held by another process (is a long write running?)"
	case memory.KindCanceled:
		return "probe timed out waiting for the document lock"
	case memory.KindCorruption:
		return fmt.Sprintf("document does not parse, writes are disabled: %v", err)
	}
	return err.Error()
}
