package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type runnerFunc func(ctx context.Context) (int, error)

func (f runnerFunc) Run(ctx context.Context) (int, error) { return f(ctx) }

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(runnerFunc(func(context.Context) (int, error) { return 0, nil }), Options{Spec: "not a spec"}, zap.NewNop())
	require.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	var calls atomic.Int32
	s, err := New(runnerFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 3, nil
	}), Options{Spec: "@every 8h"}, zap.NewNop())
	require.NoError(t, err)

	n, err := s.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStartupRun(t *testing.T) {
	var calls atomic.Int32
	s, err := New(runnerFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("store unreachable")
	}), Options{Spec: "@every 8h", StartupDelay: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestShutdownCancelsInFlightRun(t *testing.T) {
	entered := make(chan struct{})
	var sawCancel atomic.Bool
	s, err := New(runnerFunc(func(ctx context.Context) (int, error) {
		close(entered)
		<-ctx.Done()
		sawCancel.Store(true)
		return 0, ctx.Err()
	}), Options{Spec: "@every 8h", StartupDelay: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, sawCancel.Load())
}

func TestShutdownTimesOut(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s, err := New(runnerFunc(func(context.Context) (int, error) {
		close(entered)
		<-release
		return 0, nil
	}), Options{Spec: "@every 8h", StartupDelay: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
}

func TestTriggerRejectsOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s, err := New(runnerFunc(func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return 1, nil
	}), Options{Spec: "@every 8h"}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Trigger())
	<-entered
	assert.ErrorIs(t, s.Trigger(), ErrBusy)
	_, err = s.RunOnce()
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.EqualValues(t, 1, calls.Load())
	assert.Error(t, s.Trigger())
}

func TestTriggerAfterShutdownIsRejected(t *testing.T) {
	var calls atomic.Int32
	s, err := New(runnerFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	}), Options{Spec: "@every 8h"}, zap.NewNop())
	require.NoError(t, err)
	s.Start()
	require.NoError(t, s.Shutdown(context.Background()))

	assert.ErrorIs(t, s.Trigger(), context.Canceled)
	_, err = s.RunOnce()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestTriggerRacingShutdown(t *testing.T) {
	for range 50 {
		s, err := New(runnerFunc(func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}), Options{Spec: "@every 8h"}, zap.NewNop())
		require.NoError(t, err)
		s.Start()

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = s.Trigger()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, s.Shutdown(ctx))
		cancel()
		<-done
		// Whatever Trigger decided, it must not start work after Shutdown returned.
		assert.ErrorIs(t, s.Trigger(), context.Canceled)
	}
}
