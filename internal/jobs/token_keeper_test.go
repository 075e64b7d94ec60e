package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgadmin/internal/logging"
)

type fakePurger struct {
	mu      sync.Mutex
	pending int
	calls   int
	err     error
	seen    []time.Time
}

func (f *fakePurger) PurgeExpired(_ context.Context, now time.Time, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, now)
	if f.err != nil {
		return 0, f.err
	}
	n := min(limit, f.pending)
	f.pending -= n
	return n, nil
}

func (f *fakePurger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnceDrainsInBatches(t *testing.T) {
	p := &fakePurger{pending: 2*purgeBatch + 7}
	k := NewTokenKeeper(p, logging.Discard())
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return fixed }

	n, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*purgeBatch+7, n)
	assert.Equal(t, 3, p.calls)
	for _, s := range p.seen {
		assert.Equal(t, fixed, s, "one cutoff per run")
	}
}

func TestRunOnceReportsFailure(t *testing.T) {
	p := &fakePurger{err: errors.New("storage temporarily unavailable")}
	_, err := NewTokenKeeper(p, logging.Discard()).RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	k := NewTokenKeeper(&fakePurger{}, logging.Discard())
	assert.Error(t, k.Run(context.Background(), "not a schedule"))
}

func TestRunFiresOnSchedule(t *testing.T) {
	p := &fakePurger{}
	k := NewTokenKeeper(p, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx, "@every 1s") }()

	require.Eventually(t, func() bool { return p.Calls() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
