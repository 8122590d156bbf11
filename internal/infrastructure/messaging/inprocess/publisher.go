// Package inprocess - асинхронная доставка событий внутри процесса.
//
// Особенности:
//   - N воркеров, у каждого своя очередь (shard)
//   - Shard выбирается по FNV-хэшу aggregate id: события одного кошелька
//     обрабатываются строго по порядку, разные кошельки - параллельно
//   - Publish не блокирует: полная очередь -> ErrQueueFull
//   - Ошибка обработчика повторяется с backoff, затем логируется
//   - Stop дожидается обработки уже поставленных в очередь событий
package inprocess

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/domain/events"
	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// Compile-time checks
var (
	_ ports.EventPublisher  = (*Publisher)(nil)
	_ ports.EventSubscriber = (*Publisher)(nil)
)

var (
	ErrQueueFull = errors.New("event queue is full")
	ErrStopped   = errors.New("publisher is stopped")
)

// Config - настройки публикатора.
type Config struct {
	Workers      int
	QueueSize    int // ёмкость очереди каждого shard
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		QueueSize:    1024,
		MaxRetries:   3,
		RetryBackoff: 50 * time.Millisecond,
	}
}

type envelope struct {
	ctx    context.Context
	record events.Record
}

// Publisher реализует ports.EventPublisher и ports.EventSubscriber.
type Publisher struct {
	cfg    Config
	logger *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string][]ports.EventHandler

	mu      sync.RWMutex
	shards  []chan envelope
	started bool
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPublisher создаёт публикатор. Воркеры стартуют в Start.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	shards := make([]chan envelope, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan envelope, cfg.QueueSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Publisher{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string][]ports.EventHandler),
		shards:   shards,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe регистрирует обработчик. eventType ports.AllEvents - все типы.
func (p *Publisher) Subscribe(eventType string, handler ports.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", eventType)
	}

	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	p.handlers[eventType] = append(p.handlers[eventType], handler)
	return nil
}

// Start запускает по одному воркеру на shard.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return nil
	}

	for i, shard := range p.shards {
		p.wg.Add(1)
		go func(id int, queue chan envelope) {
			defer p.wg.Done()
			p.worker(id, queue)
		}(i, shard)
	}
	p.started = true

	p.logger.InfoContext(ctx, "event publisher started",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("queue_size", p.cfg.QueueSize),
	)
	return nil
}

// Stop закрывает очереди и ждёт, пока воркеры обработают остаток.
// Если ctx истекает раньше, незавершённые повторы прерываются.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	for _, shard := range p.shards {
		close(shard)
	}
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.InfoContext(ctx, "event publisher drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Publish ставит событие в очередь его shard. Никогда не блокирует.
func (p *Publisher) Publish(ctx context.Context, record events.Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}

	idx := p.shardFor(record.AggregateID)
	select {
	case p.shards[idx] <- envelope{ctx: context.WithoutCancel(ctx), record: record}:
		metrics.PublisherQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(p.shards[idx])))
		return nil
	default:
		metrics.PublisherDropped.Inc()
		return fmt.Errorf("%w: shard %d (%s v%d)", ErrQueueFull, idx, record.AggregateID, record.Version)
	}
}

// PublishBatch публикует записи по порядку, останавливаясь на первой ошибке.
func (p *Publisher) PublishBatch(ctx context.Context, records []events.Record) error {
	for _, r := range records {
		if err := p.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// QueueLength возвращает суммарное число событий в очередях.
func (p *Publisher) QueueLength() int {
	total := 0
	for _, shard := range p.shards {
		total += len(shard)
	}
	return total
}

func (p *Publisher) shardFor(aggregateID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(aggregateID))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Publisher) worker(id int, queue chan envelope) {
	label := strconv.Itoa(id)
	for env := range queue {
		metrics.PublisherQueueDepth.WithLabelValues(label).Set(float64(len(queue)))
		p.deliver(env)
	}
}

func (p *Publisher) deliver(env envelope) {
	p.handlersMu.RLock()
	handlers := make([]ports.EventHandler, 0, len(p.handlers[env.record.EventType])+len(p.handlers[ports.AllEvents]))
	handlers = append(handlers, p.handlers[env.record.EventType]...)
	handlers = append(handlers, p.handlers[ports.AllEvents]...)
	p.handlersMu.RUnlock()

	for _, h := range handlers {
		if err := p.runWithRetry(env, h); err != nil {
			p.logger.ErrorContext(env.ctx, "event handler failed",
				slog.String("event_type", env.record.EventType),
				slog.String("aggregate_id", env.record.AggregateID),
				slog.Int64("version", env.record.Version),
				slog.Int64("sequence", env.record.Sequence),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Publisher) runWithRetry(env envelope, h ports.EventHandler) error {
	var err error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if err = h(env.ctx, env.record); err == nil {
			return nil
		}
		if attempt == p.cfg.MaxRetries {
			break
		}

		select {
		case <-p.ctx.Done():
			return fmt.Errorf("publisher stopping: %w", err)
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("after %d attempts: %w", p.cfg.MaxRetries+1, err)
}
