// Package kafka publishes event notifications to the push layer's intake
// topic. The adapter is fire-and-forget: a bounded in-process queue absorbs
// bursts, overflow and write failures drop the notification (downstream
// consumers reconcile by polling).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/vietwatch/disaster-crawler/internal/domain"
	"github.com/vietwatch/disaster-crawler/internal/observability"
	"github.com/vietwatch/disaster-crawler/internal/store"
)

// messageWriter is the subset of kafkago.Writer the notifier uses; tests
// substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

const (
	writeTimeout        = 5 * time.Second
	defaultDrainTimeout = 10 * time.Second
)

// Notifier drains a bounded queue into Kafka from a single goroutine.
// Notify never blocks the clusterer and stays safe to call during and after
// Close: the queue channel is never closed, shutdown is signalled on stop.
type Notifier struct {
	queue        chan domain.Notification
	stop         chan struct{}
	done         chan struct{}
	drainTimeout time.Duration
	writer       messageWriter
	pushLog      *store.RunLog
	logger       *slog.Logger
	metrics      *observability.Metrics

	closeOnce sync.Once
}

// NewNotifier builds the producer for the events topic and starts the drain
// goroutine. drainTimeout bounds how long Close spends flushing the queue.
// pushLog may be nil.
func NewNotifier(brokers []string, topic string, queueSize int, drainTimeout time.Duration, pushLog *store.RunLog, logger *slog.Logger, metrics *observability.Metrics) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return newNotifier(w, queueSize, drainTimeout, pushLog, logger, metrics)
}

func newNotifier(w messageWriter, queueSize int, drainTimeout time.Duration, pushLog *store.RunLog, logger *slog.Logger, metrics *observability.Metrics) *Notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	n := &Notifier{
		queue:        make(chan domain.Notification, queueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		drainTimeout: drainTimeout,
		writer:       w,
		pushLog:      pushLog,
		logger:       logger,
		metrics:      metrics,
	}
	go n.run()
	return n
}

// Notify enqueues a notification without blocking. A full queue or a closed
// notifier drops it.
func (n *Notifier) Notify(notif domain.Notification) {
	select {
	case <-n.stop:
		n.metrics.NotificationsDropped.Inc()
		n.logger.Warn("notification dropped, notifier closed",
			"type", notif.Type, "event_id", notif.EventID)
		return
	default:
	}

	select {
	case n.queue <- notif:
	default:
		n.metrics.NotificationsDropped.Inc()
		n.logger.Warn("notification dropped, queue full",
			"type", notif.Type, "event_id", notif.EventID)
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for {
		select {
		case notif := <-n.queue:
			n.deliver(notif, time.Time{})
		case <-n.stop:
			n.drain()
			return
		}
	}
}

// drain flushes whatever is queued at shutdown under one overall deadline;
// anything still queued when it expires is dropped and counted.
func (n *Notifier) drain() {
	deadline := time.Now().Add(n.drainTimeout)
	for {
		select {
		case notif := <-n.queue:
			n.deliver(notif, deadline)
		default:
			return
		}
	}
}

// deliver writes one notification; failures are dropped after one log line,
// never retried. A non-zero deadline caps the write below writeTimeout.
func (n *Notifier) deliver(notif domain.Notification, deadline time.Time) {
	timeout := writeTimeout
	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			n.metrics.NotificationsDropped.Inc()
			return
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	if n.pushLog != nil {
		if err := n.pushLog.Append(notif); err != nil {
			n.logger.Warn("push buffer append failed", "error", err)
		}
	}

	msg, err := serializeToMessage(notif)
	if err != nil {
		n.metrics.NotificationsDropped.Inc()
		n.logger.Warn("notification serialize failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.metrics.NotificationsDropped.Inc()
		n.logger.Warn("notification write failed, dropping",
			"type", notif.Type, "event_id", notif.EventID, "error", err)
		return
	}
	n.metrics.NotificationsSent.Inc()
}

// Close stops accepting notifications, flushes the queue bounded by the
// drain timeout, and closes the producer.
func (n *Notifier) Close() error {
	n.closeOnce.Do(func() { close(n.stop) })
	<-n.done
	return n.writer.Close()
}

// serializeToMessage marshals a notification into a Kafka message keyed by
// event id so per-event ordering survives partitioning.
func serializeToMessage(notif domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(notif)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatUint(uint64(notif.EventID), 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(notif.Type)},
			{Key: "disaster_type", Value: []byte(notif.DisasterType)},
		},
	}, nil
}
