package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitQueue publishes to and consumes from one durable RabbitMQ queue.
type RabbitQueue struct {
	conn     *amqp.Connection
	queue    string
	prefetch int
	log      *zap.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// DialRabbit connects to url and declares queue.
func DialRabbit(url, queue string, log *zap.Logger) (*RabbitQueue, error) {
	if queue == "" {
		queue = "backoffice.events"
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitQueue{conn: conn, queue: queue, prefetch: 16, log: log, ch: ch}, nil
}

// channel returns the publish channel, reopening it after the broker closed it.
func (q *RabbitQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	if q.conn == nil || q.conn.IsClosed() {
		return nil, errors.New("rabbitmq connection is closed")
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	q.ch = ch
	q.log.Info("publisher channel created", zap.String("component", "rabbitmq"))
	return ch, nil
}

// Publish sends a persistent JSON message.
func (q *RabbitQueue) Publish(ctx context.Context, msg Message) error {
	ch, err := q.channel()
	if err != nil {
		return err
	}
	b, err := serialize(msg)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Type:         msg.Type,
		Body:         b,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

// Consume registers a manual-ack consumer. Callers must Ack or Nack every message.
func (q *RabbitQueue) Consume(ctx context.Context) (<-chan Message, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if q.prefetch > 0 {
		if err := ch.Qos(q.prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	q.log.Info("started consuming messages", zap.String("queue", q.queue), zap.Int("prefetch_count", q.prefetch))

	out := make(chan Message)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				msg, err := deserialize(string(d.Body))
				if err != nil {
					q.log.Warn("dropping malformed message", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				msg.settle = func(ok, requeue bool) error {
					if ok {
						return d.Ack(false)
					}
					return d.Nack(false, requeue)
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the channel and connection.
func (q *RabbitQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
