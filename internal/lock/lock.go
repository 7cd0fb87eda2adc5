// Package lock provides the cross-process advisory lock that guards the
// memory document and the tool-call log.
//
// Every acquisition opens its own handle on the sentinel file, so two
// goroutines in one process exclude each other exactly like two processes
// do. The exclusive holder records itself in the sentinel and clears the
// record on release; a record found by the next exclusive acquirer means
// the previous holder died while holding the lock.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryDelay = 25 * time.Millisecond
	DefaultStaleAfter = 2 * time.Minute
)

// ErrTimeout matches every *TimeoutError with errors.Is.
var ErrTimeout = errors.New("lock: timed out")

// Holder is the record an exclusive holder writes into the sentinel file.
type Holder struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age reports how long the holder has held the lock.
func (h Holder) Age(now time.Time) time.Duration {
	return now.Sub(h.AcquiredAt)
}

// TimeoutError is returned when the lock could not be obtained in time.
type TimeoutError struct {
	Path   string
	Waited time.Duration
	Holder *Holder
	Stale  bool
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("lock %s not acquired after %s", e.Path, e.Waited.Round(time.Millisecond))
	if e.Holder != nil {
		msg += fmt.Sprintf(" (held by pid %d on %s since %s", e.Holder.PID, e.Holder.Host, e.Holder.AcquiredAt.Format(time.RFC3339))
		if e.Stale {
			msg += ", stale"
		}
		msg += ")"
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Options tunes how long acquisition waits and when a holder counts as stale.
type Options struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	StaleAfter time.Duration
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Locker hands out shared and exclusive locks on one sentinel file.
type Locker struct {
	path string
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// New creates a Locker on the sentinel file at path. Nothing is opened until Lock or RLock.
func New(path string, opts Options) *Locker {
	opts = opts.withDefaults()
	return &Locker{
		path: path,
		opts: opts,
		log:  opts.Logger.With(zap.String("lock", path)),
		now:  time.Now,
	}
}

// Path returns the sentinel file path.
func (l *Locker) Path() string { return l.path }

// Handle is a held lock. Release it exactly once with Unlock.
type Handle struct {
	fl        *flock.Flock
	exclusive bool
	locker    *Locker
}

// Lock acquires the exclusive lock, waiting at most the configured timeout.
// Waiting sleeps between attempts; it never spins.
func (l *Locker) Lock(ctx context.Context) (*Handle, error) {
	h, err := l.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	l.recoverAbandoned()
	if err := l.writeHolder(); err != nil {
		_ = h.fl.Unlock()
		return nil, fmt.Errorf("record lock holder: %w", err)
	}
	return h, nil
}

// RLock acquires a shared lock. Shared holders exclude exclusive holders
// but not each other.
func (l *Locker) RLock(ctx context.Context) (*Handle, error) {
	return l.acquire(ctx, false)
}

// Unlock releases the lock and closes the handle. An exclusive holder
// clears its holder record first.
func (h *Handle) Unlock() error {
	if h == nil || h.fl == nil {
		return nil
	}
	var clearErr error
	if h.exclusive {
		clearErr = os.Truncate(h.locker.path, 0)
	}
	err := h.fl.Unlock()
	h.fl = nil
	if err != nil {
		return err
	}
	return clearErr
}

func (l *Locker) acquire(ctx context.Context, exclusive bool) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(l.path)
	waitCtx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	start := l.now()
	var ok bool
	var err error
	if exclusive {
		ok, err = fl.TryLockContext(waitCtx, l.opts.RetryDelay)
	} else {
		ok, err = fl.TryRLockContext(waitCtx, l.opts.RetryDelay)
	}
	if ok {
		return &Handle{fl: fl, exclusive: exclusive, locker: l}, nil
	}
	_ = fl.Close()

	// The caller gave up before our own deadline.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return nil, l.timeoutError(l.now().Sub(start))
}

func (l *Locker) timeoutError(waited time.Duration) error {
	te := &TimeoutError{Path: l.path, Waited: waited}
	holder, err := l.readHolder()
	if err != nil || holder == nil {
		return te
	}
	te.Holder = holder
	age := holder.Age(l.now())
	if age > l.opts.StaleAfter {
		te.Stale = true
		l.log.Warn("lock holder exceeds staleness bound; not breaking a live lock",
			zap.Int("holder_pid", holder.PID),
			zap.String("holder_host", holder.Host),
			zap.Duration("held_for", age),
			zap.Duration("stale_after", l.opts.StaleAfter))
	}
	return te
}

// recoverAbandoned runs with the exclusive lock held. A leftover holder
// record means its owner exited without releasing; the OS already dropped
// the advisory lock, so the record is diagnosed and overwritten.
func (l *Locker) recoverAbandoned() {
	holder, err := l.readHolder()
	if err != nil {
		l.log.Warn("unreadable lock holder record; clearing", zap.Error(err))
		return
	}
	if holder == nil {
		return
	}
	l.log.Warn("recovered lock abandoned by a crashed holder",
		zap.Int("holder_pid", holder.PID),
		zap.String("holder_host", holder.Host),
		zap.Duration("abandoned_for", holder.Age(l.now())))
}

func (l *Locker) readHolder() (*Holder, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (l *Locker) writeHolder() error {
	host, _ := os.Hostname()
	data, err := json.Marshal(Holder{PID: os.Getpid(), Host: host, AcquiredAt: l.now().UTC()})
	if err != nil {
		return err
	}
	// The sentinel is only ever written by the exclusive holder.
	return os.WriteFile(l.path, data, 0o644)
}
