package queue

import (
	"time"

	"github.com/nsqio/go-nsq"
)

// Toucher renews a message's processing lease. *nsq.Message satisfies it.
type Toucher interface {
	Touch()
}

// StartExtender heartbeats Touch on the message until the returned stop
// func runs. Callers must defer stop so the heartbeat dies with the handler
// whether it succeeds or fails; an abandoned message then becomes visible
// again and is redelivered.
func StartExtender(t Toucher, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Touch()
			case <-done:
				return
			}
		}
	}()

	var once bool
	return func() {
		if !once {
			once = true
			close(done)
		}
	}
}

// WithTouch wraps a handler so every in-flight message's lease is renewed
// for as long as the handler is running.
func WithTouch(h nsq.Handler, interval time.Duration) nsq.Handler {
	return nsq.HandlerFunc(func(m *nsq.Message) error {
		stop := StartExtender(m, interval)
		defer stop()
		return h.HandleMessage(m)
	})
}
