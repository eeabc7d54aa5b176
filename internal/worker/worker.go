// Package worker consumes attendance events published after a record commits.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"backoffice/internal/metrics"
	"backoffice/internal/queue"
)

// Event results reported to metrics.
const (
	resultOK        = "ok"
	resultFailed    = "failed"
	resultMalformed = "malformed"
	resultSkipped   = "skipped"
)

// Invalidator drops cached statistics; *statscache.Cache implements it.
type Invalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// Worker invalidates cached statistics whenever attendance is recorded.
type Worker struct {
	cache   Invalidator
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates a worker. m may be nil.
func New(cache Invalidator, m *metrics.Metrics, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{cache: cache, metrics: m, log: log}
}

// Run handles messages from q until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	w.log.Info("worker stopped")
	return nil
}

// Handle processes one message and settles it with the broker.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	result := w.handle(ctx, msg)
	if w.metrics != nil {
		w.metrics.Events.WithLabelValues(msg.Type, result).Inc()
	}

	var err error
	switch result {
	case resultFailed:
		err = msg.Nack(true)
	case resultMalformed:
		err = msg.Nack(false)
	default:
		err = msg.Ack()
	}
	if err != nil {
		w.log.Warn("settle message failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) string {
	if msg.Type != queue.TypeAttendanceRecorded {
		w.log.Debug("skipping message", zap.String("type", msg.Type))
		return resultSkipped
	}

	var evt queue.AttendanceRecorded
	if err := msg.Decode(&evt); err != nil || evt.RecordID == "" {
		w.log.Warn("malformed attendance event", zap.ByteString("body", msg.Body), zap.Error(err))
		return resultMalformed
	}

	n, err := w.cache.InvalidateAll(ctx)
	if err != nil {
		w.log.Error("invalidate stats cache failed", zap.String("record_id", evt.RecordID), zap.Error(err))
		return resultFailed
	}
	w.log.Info("attendance recorded",
		zap.String("record_id", evt.RecordID),
		zap.String("activity_id", evt.ActivityID),
		zap.String("attendee", evt.AttendeeKind+":"+evt.AttendeeID),
		zap.String("status", evt.Status),
		zap.String("method", evt.Method),
		zap.Int("invalidated", n),
	)
	return resultOK
}
