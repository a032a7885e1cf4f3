package queue

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
)

// Publisher is what pipeline stages use to enqueue the next stage.
// *nsq.Producer satisfies it directly.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// NewConsumer builds an NSQ consumer for one pipeline stage and connects it
// to lookupd. The handler runs on `concurrency` goroutines; NSQ redelivers
// any message whose handler returns an error, up to maxAttempts.
func NewConsumer(topic, channel string, concurrency int, maxAttempts uint16, lookupd string, handler nsq.Handler) (*nsq.Consumer, error) {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = concurrency
	cfg.MaxAttempts = maxAttempts

	consumer, err := nsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer %s: %w", topic, err)
	}
	consumer.AddConcurrentHandlers(handler, concurrency)

	if err := consumer.ConnectToNSQLookupd(lookupd); err != nil {
		return nil, fmt.Errorf("nsq lookupd connect %s: %w", topic, err)
	}
	return consumer, nil
}

// CreateTopics pre-creates topics via nsqd's HTTP API. NSQ creates topics
// lazily on publish, but consumers querying lookupd 404 until then.
func CreateTopics(nsqdHTTP string, topics ...string) {
	go func() {
		time.Sleep(2 * time.Second)
		for _, topic := range topics {
			url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
				continue
			}
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close topic creation response body", "error", err)
			}
		}
	}()
}
