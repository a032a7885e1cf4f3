package queue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingToucher struct {
	touches atomic.Int64
}

func (c *countingToucher) Touch() { c.touches.Add(1) }

func TestStartExtender_TouchesWhileRunning(t *testing.T) {
	toucher := &countingToucher{}

	stop := StartExtender(toucher, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	stop()

	assert.GreaterOrEqual(t, toucher.touches.Load(), int64(3))
}

func TestStartExtender_StopsOnStop(t *testing.T) {
	toucher := &countingToucher{}

	stop := StartExtender(toucher, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()

	after := toucher.touches.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, toucher.touches.Load())
}

func TestStartExtender_StopIsIdempotent(t *testing.T) {
	toucher := &countingToucher{}

	stop := StartExtender(toucher, time.Hour)
	stop()
	assert.NotPanics(t, func() { stop() })
}
