package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockFiresTimersOnlyWhenDue(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	var fired atomic.Int32
	c.AfterFunc(50*time.Millisecond, func() { fired.Add(1) })

	c.Advance(49 * time.Millisecond)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, int32(0), fired.Load())

	c.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, start.Add(50*time.Millisecond), c.Now())

	c.Advance(time.Hour)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestFakeClockStoppedTimerNeverFires(t *testing.T) {
	c := NewFakeClock(time.Now())

	var fired atomic.Bool
	timer := c.AfterFunc(time.Second, func() { fired.Store(true) })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestFakeClockZeroDelayFiresImmediately(t *testing.T) {
	c := NewFakeClock(time.Now())

	var fired atomic.Bool
	c.AfterFunc(0, func() { fired.Store(true) })

	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)
}
