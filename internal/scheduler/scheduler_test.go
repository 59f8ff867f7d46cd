package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
	block chan struct{}
}

func (r *countingRunner) Run(ctx context.Context) (Report, error) {
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
	}
	return Report{Candidates: 1, Notified: 1}, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(&countingRunner{}, Options{Spec: "every tuesday"})
	assert.Error(t, err)
}

func TestRunOnceRecordsStatus(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, Options{})
	require.NoError(t, err)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)

	status := s.Status()
	assert.Equal(t, "0 9 * * *", status["spec"])
	assert.Equal(t, 1, status["last_notified"])
	assert.Equal(t, false, status["running"])
}

func TestRunOnceSkipsWhenLockedElsewhere(t *testing.T) {
	rdb := newRedis(t)
	locker := NewRedisLocker(rdb)

	release, err := locker.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)

	runner := &countingRunner{}
	s, err := New(runner, Options{Locker: locker})
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, int32(0), runner.calls.Load())

	release()
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	rdb := newRedis(t)
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	// Somebody else took over after our lease was lost.
	require.NoError(t, rdb.Set(ctx, "k", "other", time.Minute).Err())
	release()
	val, err := rdb.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "other", val)
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	s, err := New(runner, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, err = s.RunOnce(context.Background())
	assert.True(t, errors.Is(err, ErrLocked))

	close(runner.block)
	require.NoError(t, <-done)
}

func TestPoolRunsEveryTask(t *testing.T) {
	p := NewPool(3)
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		p.Submit(func() { n.Add(1) })
	}
	p.Close()
	assert.Equal(t, int32(50), n.Load())
}
