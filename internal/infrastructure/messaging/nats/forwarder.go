// Package nats - пересылка записанных событий во внешнюю шину NATS.
//
// Forwarder подписывается на in-process публикатор и отправляет каждое событие
// в subject "<prefix>.<EventType>" как JSON-запись. Внешние потребители
// получают at-least-once доставку и должны дедуплицировать по (aggregateId, version).
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/events"
)

// Publisher - минимальная часть *nats.Conn, нужная Forwarder.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Config - настройки подключения.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Connect открывает соединение с NATS с бесконечным переподключением по умолчанию.
func Connect(cfg Config, logger *slog.Logger) (*natsgo.Conn, error) {
	opts := []natsgo.Option{
		natsgo.Name(cfg.Name),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}

	logger.Info("connected to nats", slog.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// Forwarder пересылает события в NATS.
type Forwarder struct {
	conn   Publisher
	prefix string
	logger *slog.Logger
}

// NewForwarder создаёт Forwarder. Пустой prefix заменяется на "payledger.events".
func NewForwarder(conn Publisher, prefix string, logger *slog.Logger) *Forwarder {
	if prefix == "" {
		prefix = "payledger.events"
	}
	return &Forwarder{conn: conn, prefix: prefix, logger: logger}
}

// Subject возвращает subject для типа события.
func (f *Forwarder) Subject(eventType string) string {
	return f.prefix + "." + eventType
}

// Handle реализует ports.EventHandler.
func (f *Forwarder) Handle(ctx context.Context, record events.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s v%d of %s: %w", record.EventType, record.Version, record.AggregateID, err)
	}

	subject := f.Subject(record.EventType)
	if err := f.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	f.logger.DebugContext(ctx, "event forwarded to nats",
		slog.String("subject", subject),
		slog.String("aggregate_id", record.AggregateID),
		slog.Int64("version", record.Version),
	)
	return nil
}

// Register подписывает Forwarder на все события.
func (f *Forwarder) Register(subscriber ports.EventSubscriber) error {
	return subscriber.Subscribe(ports.AllEvents, f.Handle)
}
