package forcer

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// DefaultLockRetry is the polling interval used while waiting for the lock.
const DefaultLockRetry = 50 * time.Millisecond

// Locked guards a forcer with an exclusive file lock held from Reset until
// Restore, so two processes sharing one supply never interleave searches.
type Locked struct {
	inner VoltageForcer
	lock  *flock.Flock

	// Wait bounds how long Reset waits for the lock. Zero fails immediately
	// with ErrBusy when another holder exists.
	Wait  time.Duration
	Retry time.Duration
}

// NewLocked wraps inner with a lock file at path.
func NewLocked(inner VoltageForcer, path string) *Locked {
	return &Locked{
		inner: inner,
		lock:  flock.New(path),
		Retry: DefaultLockRetry,
	}
}

// Path returns the lock file location.
func (l *Locked) Path() string {
	return l.lock.Path()
}

func (l *Locked) Reset(ctx context.Context) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	if err := l.inner.Reset(ctx); err != nil {
		_ = l.lock.Unlock()
		return err
	}
	return nil
}

func (l *Locked) Apply(ctx context.Context, voltages []voltage.Voltage) error {
	if !l.lock.Locked() {
		return fmt.Errorf("forcer: apply without holding %s", l.lock.Path())
	}
	return l.inner.Apply(ctx, voltages)
}

func (l *Locked) Restore(ctx context.Context) error {
	err := l.inner.Restore(ctx)
	if uerr := l.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("forcer: failed to release lock on %s: %w", l.lock.Path(), uerr)
	}
	return err
}

func (l *Locked) acquire(ctx context.Context) error {
	if l.Wait <= 0 {
		ok, err := l.lock.TryLock()
		if err != nil {
			return fmt.Errorf("forcer: failed to lock %s: %w", l.lock.Path(), err)
		}
		if !ok {
			return fmt.Errorf("%w: %s is held by another process", ErrBusy, l.lock.Path())
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.Wait)
	defer cancel()

	retry := l.Retry
	if retry <= 0 {
		retry = DefaultLockRetry
	}
	ok, err := l.lock.TryLockContext(waitCtx, retry)
	if err != nil && waitCtx.Err() == nil {
		return fmt.Errorf("forcer: failed to lock %s: %w", l.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s still held after %s", ErrBusy, l.lock.Path(), l.Wait)
	}
	return nil
}
