package trigger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coinsync/internal/trigger"
	"github.com/mrz1836/coinsync/internal/trigger/triggertest"
)

type emissions struct {
	mu     sync.Mutex
	tokens []uint64
}

func (e *emissions) record(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens = append(e.tokens, token)
}

func (e *emissions) all() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint64(nil), e.tokens...)
}

func newTrigger(t *testing.T) (*trigger.Trigger, *triggertest.FakeClock, *emissions) {
	t.Helper()
	clock := triggertest.NewFakeClock(time.Unix(1700000000, 0))
	em := &emissions{}
	tr := trigger.New(trigger.DefaultWindow, em.record, trigger.WithClock(clock))
	return tr, clock, em
}

func TestTrigger_BurstCoalescesToOneEmission(t *testing.T) {
	t.Parallel()
	tr, clock, em := newTrigger(t)

	for range 5 {
		tr.Trigger()
		clock.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, em.all(), "window keeps resetting during the burst")

	clock.Advance(trigger.DefaultWindow)
	require.Equal(t, []uint64{1}, em.all())
	assert.True(t, tr.IsCurrent(1))
	assert.False(t, tr.Pending())
}

func TestTrigger_TokensStrictlyIncrease(t *testing.T) {
	t.Parallel()
	tr, clock, em := newTrigger(t)

	for range 3 {
		tr.Trigger()
		clock.Advance(trigger.DefaultWindow)
	}
	assert.Equal(t, []uint64{1, 2, 3}, em.all())
	assert.False(t, tr.IsCurrent(2))
	assert.True(t, tr.IsCurrent(3))
}

func TestTrigger_EmitsOnlyAfterQuietWindow(t *testing.T) {
	t.Parallel()
	tr, clock, em := newTrigger(t)

	tr.Trigger()
	clock.Advance(trigger.DefaultWindow - time.Millisecond)
	assert.Empty(t, em.all())

	clock.Advance(time.Millisecond)
	assert.Len(t, em.all(), 1)
	assert.Equal(t, clock.Now(), tr.LastEmittedAt())
}

func TestTrigger_CancelSupersedesToken(t *testing.T) {
	t.Parallel()
	tr, clock, em := newTrigger(t)

	tr.Trigger()
	clock.Advance(trigger.DefaultWindow)
	require.True(t, tr.IsCurrent(1))

	tr.Trigger()
	tr.Cancel()
	clock.Advance(time.Second)

	assert.Equal(t, []uint64{1}, em.all(), "pending window dropped")
	assert.False(t, tr.IsCurrent(1), "in-flight result must be discarded")
	assert.Zero(t, clock.Waiting())
}

func TestTrigger_FireNow(t *testing.T) {
	t.Parallel()
	tr, clock, em := newTrigger(t)

	tr.Trigger()
	token := tr.FireNow()
	assert.Equal(t, uint64(1), token)
	assert.True(t, tr.IsCurrent(token))

	clock.Advance(time.Second)
	assert.Empty(t, em.all(), "FireNow replaces the pending window")

	tr.Trigger()
	clock.Advance(trigger.DefaultWindow)
	assert.Equal(t, []uint64{2}, em.all())
	assert.False(t, tr.IsCurrent(token))
}

func TestTrigger_DisposeIsIdempotent(t *testing.T) {
	t.Parallel()
	tr, clock, em := newTrigger(t)

	tr.Trigger()
	tr.Dispose()
	tr.Dispose()
	assert.True(t, tr.Disposed())

	tr.Trigger()
	tr.Cancel()
	assert.Zero(t, tr.FireNow())
	clock.Advance(time.Second)

	assert.Empty(t, em.all())
	assert.False(t, tr.IsCurrent(0))
	assert.False(t, tr.IsCurrent(1))
}

func TestTrigger_IndependentInstances(t *testing.T) {
	t.Parallel()
	clock := triggertest.NewFakeClock(time.Unix(0, 0))
	a, b := &emissions{}, &emissions{}
	ta := trigger.New(trigger.DefaultWindow, a.record, trigger.WithClock(clock))
	tb := trigger.New(300*time.Millisecond, b.record, trigger.WithClock(clock))

	ta.Trigger()
	tb.Trigger()
	clock.Advance(300 * time.Millisecond)
	assert.Empty(t, a.all())
	assert.Equal(t, []uint64{1}, b.all())

	clock.Advance(trigger.DefaultWindow)
	assert.Equal(t, []uint64{1}, a.all())
}

func TestTrigger_SystemClock(t *testing.T) {
	t.Parallel()

	done := make(chan uint64, 1)
	tr := trigger.New(10*time.Millisecond, func(token uint64) { done <- token })
	defer tr.Dispose()

	tr.Trigger()
	tr.Trigger()

	select {
	case token := <-done:
		assert.Equal(t, uint64(1), token)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never emitted")
	}
}

func TestTrigger_ZeroWindowUsesDefault(t *testing.T) {
	t.Parallel()
	clock := triggertest.NewFakeClock(time.Unix(0, 0))
	em := &emissions{}
	tr := trigger.New(0, em.record, trigger.WithClock(clock))

	tr.Trigger()
	clock.Advance(trigger.DefaultWindow - time.Millisecond)
	assert.Empty(t, em.all())
	clock.Advance(time.Millisecond)
	assert.Len(t, em.all(), 1)
}
