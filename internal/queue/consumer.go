package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
)

// StartAuditConsumer consumes the session event queue and writes one audit
// line per event.  It reconnects with exponential backoff and returns only
// when ctx is cancelled.
func StartAuditConsumer(ctx context.Context, cfg config.EventsConfig, audit, log *zap.Logger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn("audit-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg.Queue, audit, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("audit-consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, audit, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("audit-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleAuditMessage(d.Body, audit); err != nil {
				log.Warn("audit-consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleAuditMessage decodes one SessionEvent and writes it to audit.
func HandleAuditMessage(body []byte, audit *zap.Logger) error {
	var ev SessionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.UserID <= 0 {
		return fmt.Errorf("incomplete event %q", ev.ID)
	}
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("type", ev.Type),
		zap.Int64("user_id", ev.UserID),
		zap.String("occurred_at", ev.OccurredAt),
	}
	if ev.Username != "" {
		fields = append(fields, zap.String("username", ev.Username))
	}
	if ev.Type == EventRevokeAll {
		fields = append(fields, zap.Int("revoked", ev.Revoked), zap.Int("failed", ev.Failed))
	}
	audit.Info("session event", fields...)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
