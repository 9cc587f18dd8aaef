package atomicfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() LockOptions {
	return LockOptions{
		Retries:    3,
		MinTimeout: 5 * time.Millisecond,
		MaxTimeout: 20 * time.Millisecond,
		Factor:     2,
		Stale:      5 * time.Second,
	}
}

func TestAcquireAndRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.json")

	lock, err := Acquire(context.Background(), target, fastOptions())
	require.NoError(t, err)
	assert.DirExists(t, LockPath(target))

	require.NoError(t, lock.Release())
	assert.NoDirExists(t, LockPath(target))
	assert.NoError(t, lock.Release(), "second release is a no-op")
}

func TestAcquireFailsWhileHeld(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.json")

	held, err := Acquire(context.Background(), target, fastOptions())
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = Acquire(context.Background(), target, fastOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockHeld))
	assert.Contains(t, err.Error(), "could not acquire lock on")
	// 5ms + 10ms + 20ms of backoff before giving up.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.json")
	dir := LockPath(target)
	require.NoError(t, os.Mkdir(dir, 0755))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(dir, old, old))

	lock, err := Acquire(context.Background(), target, fastOptions())
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestAcquireHonoursContext(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.json")
	held, err := Acquire(context.Background(), target, fastOptions())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := fastOptions()
	opts.MinTimeout = time.Second
	_, err = Acquire(ctx, target, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLockSerializesWriters(t *testing.T) {
	target := filepath.Join(t.TempDir(), "counter.json")
	opts := fastOptions()
	opts.Retries = 200

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := Acquire(context.Background(), target, opts)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			assert.NoError(t, lock.Release())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestBackoffIsCapped(t *testing.T) {
	opts := DefaultLockOptions()
	assert.Equal(t, 100*time.Millisecond, opts.backoff(0))
	assert.Equal(t, 200*time.Millisecond, opts.backoff(1))
	assert.Equal(t, 400*time.Millisecond, opts.backoff(2))
	assert.Equal(t, 1000*time.Millisecond, opts.backoff(5))
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0644))

	require.NoError(t, WriteFile(target, []byte("new"), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "config.tmp"))
}

func TestTempPath(t *testing.T) {
	assert.Equal(t, "/c/config.tmp", TempPath("/c/config.json"))
	assert.Equal(t, "/c/journal.tmp", TempPath("/c/journal"))
	assert.Equal(t, "/c/config.json.lock", LockPath("/c/config.json"))
}
