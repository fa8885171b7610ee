package throttle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeadingCallIsImmediate(t *testing.T) {
	var calls atomic.Int32
	th := New(50*time.Millisecond, func() { calls.Add(1) })
	defer th.Stop()

	th.Trigger()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBurstCollapsesToTrailingCall(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Int32
	var value atomic.Int32
	th := New(40*time.Millisecond, func() {
		calls.Add(1)
		last.Store(value.Load())
	})
	defer th.Stop()

	for i := 1; i <= 10; i++ {
		value.Store(int32(i))
		th.Trigger()
	}
	assert.Equal(t, int32(1), calls.Load(), "only the leading call runs inside the interval")
	assert.True(t, th.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(10), last.Load(), "trailing call observes the final state")
	assert.False(t, th.Pending())
}

func TestFlushRunsPendingCall(t *testing.T) {
	var calls atomic.Int32
	th := New(time.Hour, func() { calls.Add(1) })
	defer th.Stop()

	th.Trigger()
	th.Trigger()
	assert.Equal(t, int32(1), calls.Load())

	th.Flush()
	assert.Equal(t, int32(2), calls.Load())
	th.Flush()
	assert.Equal(t, int32(2), calls.Load())
}

func TestStopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	th := New(20*time.Millisecond, func() { calls.Add(1) })

	th.Trigger()
	th.Trigger()
	th.Stop()
	th.Trigger()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestZeroIntervalNeverDefers(t *testing.T) {
	var calls atomic.Int32
	th := New(0, func() { calls.Add(1) })
	for i := 0; i < 5; i++ {
		th.Trigger()
	}
	assert.Equal(t, int32(5), calls.Load())
}
