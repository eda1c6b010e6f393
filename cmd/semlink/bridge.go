package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/kvstore"
	"github.com/c360/semlink/metric"
	"github.com/c360/semlink/pkg/worker"
)

const lastMessagePrefix = "semlink:last:"

// lastMessage is the record kept for the most recent message on each topic
type lastMessage struct {
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Text       string          `json:"text,omitempty"`
	Size       int             `json:"size"`
	ReceivedAt time.Time       `json:"received_at"`
}

func lastMessageKey(topic string) string {
	return lastMessagePrefix + topic
}

func newLastMessage(topic string, payload []byte, at time.Time) lastMessage {
	record := lastMessage{
		Topic:      topic,
		Size:       len(payload),
		ReceivedAt: at.UTC(),
	}
	switch {
	case json.Valid(payload):
		record.Payload = payload
	case utf8.Valid(payload):
		record.Text = string(payload)
	}
	return record
}

// recorder stores each inbound message as its topic's last message. Writes go through
// a single-worker queue so handlers return without waiting on the store and writes
// for one topic land in arrival order.
type recorder struct {
	store  *kvstore.Store
	logger *slog.Logger
	now    func() time.Time
	queue  *worker.Pool[lastMessage]
}

func newRecorder(store *kvstore.Store, logger *slog.Logger, registry *metric.MetricsRegistry,
	queueSize int) *recorder {
	r := &recorder{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	r.queue = worker.New(worker.Config{Workers: 1, QueueSize: queueSize}, r.write,
		worker.WithLogger(logger),
		worker.WithMetrics(registry, "recorder"))
	return r
}

func (r *recorder) write(ctx context.Context, record lastMessage) error {
	return r.store.Set(ctx, lastMessageKey(record.Topic), record)
}

// Start launches the write queue. Queued writes run under a context detached from
// ctx's cancellation so shutdown can drain them.
func (r *recorder) Start(ctx context.Context) error {
	return r.queue.Start(context.WithoutCancel(ctx))
}

// Stop waits for queued writes until ctx ends
func (r *recorder) Stop(ctx context.Context) error {
	return r.queue.Stop(ctx)
}

// Handler returns the broker handler feeding the recorder
func (r *recorder) Handler() broker.Handler {
	return func(_ context.Context, topic string, payload []byte) {
		if r.store == nil {
			r.logger.Debug("Message received", "topic", topic, "bytes", len(payload))
			return
		}
		err := r.queue.Submit(newLastMessage(topic, payload, r.now()))
		switch {
		case err == nil:
		case errors.Is(err, worker.ErrQueueFull):
			r.logger.Warn("Recorder queue full, message not recorded", "topic", topic)
		default:
			r.logger.Debug("Recorder not accepting messages", "topic", topic, "error", err)
		}
	}
}
