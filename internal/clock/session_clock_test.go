package clock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForTicker(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
}

func TestSessionClockExpiresAfterDuration(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute)

	assert.Equal(t, time.Minute, c.Remaining())

	started := c.Start()
	assert.Equal(t, started.Add(time.Minute), c.DeadlineAt())
	waitForTicker(t, fc)

	fc.Advance(30 * time.Second)
	assert.Equal(t, 30*time.Second, c.Remaining())
	select {
	case <-c.Expired():
		t.Fatal("expired too early")
	default:
	}

	fc.Advance(31 * time.Second)
	assert.LessOrEqual(t, c.Remaining(), time.Duration(0))

	select {
	case <-c.Expired():
	case <-time.After(time.Second):
		t.Fatal("expiry signal not fired")
	}

	c.Stop()
}

func TestSessionClockStopPreventsExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute)
	c.Start()
	waitForTicker(t, fc)

	c.Stop()
	fc.Advance(2 * time.Minute)

	select {
	case <-c.Expired():
		t.Fatal("stopped clock must not expire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionClockStartIsIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute)

	first := c.Start()
	fc.Advance(5 * time.Second)
	second := c.Start()

	assert.Equal(t, first, second)
	c.Stop()
	c.Stop()
}

func TestSessionClockZeroDurationExpiresImmediately(t *testing.T) {
	c := New(clockwork.NewFakeClock(), 0)
	c.Start()

	select {
	case <-c.Expired():
	case <-time.After(time.Second):
		t.Fatal("zero-length session should expire at once")
	}
	c.Stop()
}
