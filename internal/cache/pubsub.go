package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel helpers for progress fan-out.

func JobChannel(jobID string) string { return fmt.Sprintf("job:%s", jobID) }

// DocumentChannel is reserved for document-level events.
func DocumentChannel(documentID string) string { return fmt.Sprintf("document:%s", documentID) }

// Event is an ephemeral progress message. It is never persisted and is
// dropped silently when nobody is subscribed at publish time.
type Event struct {
	JobID    string `json:"jobId"`
	Stage    string `json:"stage,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Broadcaster publishes and subscribes to per-job progress channels. It
// holds a dedicated Redis client; pub/sub connections must not be shared
// with regular commands.
type Broadcaster struct {
	rdb *redis.Client
}

func NewBroadcaster(rdb *redis.Client) *Broadcaster {
	return &Broadcaster{rdb: rdb}
}

// PublishJobUpdate is best-effort: failures are logged, never propagated.
func (b *Broadcaster) PublishJobUpdate(ctx context.Context, jobID string, ev Event) {
	ev.JobID = jobID
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.WarnContext(ctx, "progress event marshal failed", "job_id", jobID, "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, JobChannel(jobID), payload).Err(); err != nil {
		slog.WarnContext(ctx, "progress publish failed", "job_id", jobID, "error", err)
	}
}

// Subscribe attaches to a channel and returns a stream of decoded events
// plus an unsubscribe func. Malformed payloads are dropped. The stream is
// closed after unsubscribe (or when ctx ends).
func (b *Broadcaster) Subscribe(ctx context.Context, channel string) (<-chan Event, func()) {
	sub := b.rdb.Subscribe(ctx, channel)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			default:
				// Slow subscriber: drop rather than block the reader.
			}
		}
	}()

	return events, func() {
		if err := sub.Close(); err != nil {
			slog.WarnContext(ctx, "unsubscribe failed", "channel", channel, "error", err)
		}
	}
}
