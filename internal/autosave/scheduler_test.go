package autosave

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSaver struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	err      error
}

func (c *countingSaver) AutoSave(ctx context.Context) error {
	if c.inFlight.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.inFlight.Add(-1)
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return c.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartTicks(t *testing.T) {
	saver := &countingSaver{}
	s := New(saver, 10*time.Millisecond, quietLogger())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return saver.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())
}

func TestStartIsIdempotent(t *testing.T) {
	saver := &countingSaver{}
	s := New(saver, 50*time.Millisecond, quietLogger())
	for range 5 {
		s.Start()
	}
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	// One armed timer at 50ms fires at most twice in 120ms.
	assert.LessOrEqual(t, saver.calls.Load(), int32(2))
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&countingSaver{}, time.Hour, quietLogger())
	s.Stop()
	s.Start()
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	saver := &countingSaver{}
	s := New(saver, 5*time.Millisecond, quietLogger())
	s.Start()
	require.Eventually(t, func() bool { return saver.calls.Load() >= 1 }, time.Second, time.Millisecond)
	s.Stop()

	after := saver.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, saver.calls.Load())
}

func TestNoOverlappingAttempts(t *testing.T) {
	saver := &countingSaver{delay: 30 * time.Millisecond}
	s := New(saver, 5*time.Millisecond, quietLogger())
	s.Start()

	done := make(chan struct{})
	go func() {
		for range 3 {
			_ = s.RunOnce(context.Background())
		}
		close(done)
	}()
	<-done
	s.Stop()
	assert.False(t, saver.overlap.Load(), "two attempts ran at once")
}

func TestFailuresDoNotStopTheTimer(t *testing.T) {
	saver := &countingSaver{err: errors.New("store down")}
	s := New(saver, 5*time.Millisecond, quietLogger())
	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool { return saver.calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestDefaultInterval(t *testing.T) {
	s := New(&countingSaver{}, 0, quietLogger())
	assert.Equal(t, DefaultInterval, s.interval)
}
