package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePurger struct {
	mu      sync.Mutex
	expiry  []time.Time
	err     error
	calls   int
	lastNow time.Time
}

func (f *fakePurger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.lastNow = now
	if f.err != nil {
		return 0, f.err
	}

	var purged int64
	kept := f.expiry[:0]
	for _, at := range f.expiry {
		if !at.After(now) {
			purged++
			continue
		}
		kept = append(kept, at)
	}
	f.expiry = kept
	return purged, nil
}

func (f *fakePurger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweep_DeletesOnlyExpiredLines(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	purger := &fakePurger{expiry: []time.Time{
		now.Add(-time.Minute),
		now,
		now.Add(time.Second),
	}}

	sweeper := NewReservationSweeper(purger, time.Minute, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	assert.Equal(t, int64(2), sweeper.Sweep(context.Background()), "expiry equal to now counts as expired")
	assert.Len(t, purger.expiry, 1)
	assert.Equal(t, now, purger.lastNow)

	assert.Equal(t, int64(0), sweeper.Sweep(context.Background()))
}

func TestSweep_ErrorIsSwallowed(t *testing.T) {
	purger := &fakePurger{err: errors.New("connection refused")}
	sweeper := NewReservationSweeper(purger, time.Minute, zap.NewNop())

	assert.Equal(t, int64(0), sweeper.Sweep(context.Background()))
	assert.Equal(t, 1, purger.callCount())
}

func TestRun_StopsOnCancel(t *testing.T) {
	purger := &fakePurger{}
	sweeper := NewReservationSweeper(purger, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return purger.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	purger := &fakePurger{}
	sweeper := NewReservationSweeper(purger, 0, zap.NewNop())

	done := make(chan struct{})
	go func() {
		sweeper.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
	assert.Zero(t, purger.callCount())
}
