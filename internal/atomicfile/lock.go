package atomicfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"debrief/internal/logging"
)

// ErrLockHeld is returned when the lock could not be acquired before the
// retry budget ran out.
var ErrLockHeld = errors.New("lock is held by another process")

// LockOptions controls retry and staleness behaviour.
type LockOptions struct {
	Retries    int           // attempts after the first
	MinTimeout time.Duration // first backoff
	MaxTimeout time.Duration // backoff cap
	Factor     float64       // backoff multiplier
	Stale      time.Duration // age after which an unrefreshed lock is reclaimed
}

// DefaultLockOptions mirrors the settings used by the other debrief
// implementations: 3 retries, 100ms to 1000ms backoff, 5s staleness.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Retries:    3,
		MinTimeout: 100 * time.Millisecond,
		MaxTimeout: 1000 * time.Millisecond,
		Factor:     2,
		Stale:      5000 * time.Millisecond,
	}
}

func (o LockOptions) backoff(attempt int) time.Duration {
	d := float64(o.MinTimeout)
	for i := 0; i < attempt; i++ {
		d *= o.Factor
	}
	if time.Duration(d) > o.MaxTimeout {
		return o.MaxTimeout
	}
	return time.Duration(d)
}

// Lock is a held advisory lock. Release must be called exactly once.
type Lock struct {
	target string
	dir    string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// LockPath returns the lock directory guarding target.
func LockPath(target string) string {
	return target + ".lock"
}

// Acquire takes the lock guarding target, retrying with backoff and
// reclaiming stale locks.
func Acquire(ctx context.Context, target string, opts LockOptions) (*Lock, error) {
	dir := LockPath(target)

	for attempt := 0; ; attempt++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return startLock(target, dir, opts), nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("could not create lock %s: %w", dir, err)
		}

		if reclaimed, rerr := reclaimIfStale(dir, opts.Stale); rerr != nil {
			return nil, rerr
		} else if reclaimed {
			logging.ConfigWarn("Reclaimed stale lock %s", dir)
			attempt--
			continue
		}

		if attempt >= opts.Retries {
			return nil, fmt.Errorf("could not acquire lock on %s: %w", target, ErrLockHeld)
		}

		wait := opts.backoff(attempt)
		logging.ConfigDebug("Lock %s busy, retrying in %v", dir, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func reclaimIfStale(dir string, stale time.Duration) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Released between our Mkdir and Stat; retry immediately.
			return true, nil
		}
		return false, fmt.Errorf("could not inspect lock %s: %w", dir, err)
	}
	if stale <= 0 || time.Since(info.ModTime()) < stale {
		return false, nil
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("could not remove stale lock %s: %w", dir, err)
	}
	return true, nil
}

func startLock(target, dir string, opts LockOptions) *Lock {
	l := &Lock{
		target: target,
		dir:    dir,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.refresh(opts.Stale / 2)
	return l
}

// refresh keeps the lock's mtime recent so it is never mistaken for stale
// while held.
func (l *Lock) refresh(every time.Duration) {
	defer close(l.done)
	if every <= 0 {
		<-l.stop
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			if err := os.Chtimes(l.dir, now, now); err != nil {
				logging.ConfigWarn("Failed to refresh lock %s: %v", l.dir, err)
			}
		}
	}
}

// Release drops the lock. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		if rerr := os.Remove(l.dir); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("could not release lock %s: %w", l.dir, rerr)
		}
	})
	return err
}
