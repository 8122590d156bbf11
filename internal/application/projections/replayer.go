package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Haleralex/payledger/internal/application/ports"
)

// DefaultCheckpoint is the checkpoint name used by the read-model replayer.
const DefaultCheckpoint = "read_models"

// Replayer catches the read models up with the log, starting after the saved
// checkpoint. It runs synchronously at startup, before live delivery starts,
// and then optionally on a ticker to pick up events live delivery dropped.
type Replayer struct {
	store       ports.EventStore
	checkpoints ports.CheckpointRepository
	handler     ports.EventHandler
	name        string
	batchSize   int
	logger      *slog.Logger

	// runMu serializes Run so two passes never race on the checkpoint.
	runMu sync.Mutex

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplayer creates a replayer. batchSize <= 0 means 500.
func NewReplayer(
	store ports.EventStore,
	checkpoints ports.CheckpointRepository,
	handler ports.EventHandler,
	batchSize int,
	logger *slog.Logger,
) *Replayer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Replayer{
		store:       store,
		checkpoints: checkpoints,
		handler:     handler,
		name:        DefaultCheckpoint,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Run applies every event after the checkpoint and returns how many it applied.
// It stops at the first failing event; the checkpoint stays before it.
func (r *Replayer) Run(ctx context.Context) (int, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	position, err := r.checkpoints.Load(ctx, r.name)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint %s: %w", r.name, err)
	}

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		batch, err := r.store.ReadAll(ctx, position, r.batchSize)
		if err != nil {
			return applied, fmt.Errorf("failed to read log after %d: %w", position, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			if err := r.handler(ctx, rec); err != nil {
				if saveErr := r.checkpoints.Save(ctx, r.name, position); saveErr != nil {
					r.logger.WarnContext(ctx, "failed to save checkpoint", slog.String("error", saveErr.Error()))
				}
				return applied, fmt.Errorf("replay stopped at sequence %d (%s v%d of %s): %w",
					rec.Sequence, rec.EventType, rec.Version, rec.AggregateID, err)
			}
			position = rec.Sequence
			applied++
		}

		if err := r.checkpoints.Save(ctx, r.name, position); err != nil {
			return applied, fmt.Errorf("failed to save checkpoint %s: %w", r.name, err)
		}

		if len(batch) < r.batchSize {
			break
		}
	}

	if applied == 0 {
		return 0, nil
	}
	r.logger.InfoContext(ctx, "read models caught up",
		slog.String("checkpoint", r.name),
		slog.Int64("position", position),
		slog.Int("applied", applied),
	)
	return applied, nil
}

// Start runs Run every interval in the background until Stop.
// A failed pass is logged and retried on the next tick. Calling Start twice is a no-op.
func (r *Replayer) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					r.logger.WarnContext(ctx, "periodic replay failed",
						slog.String("checkpoint", r.name),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}(r.done)
}

// Stop cancels the background loop and waits for the current pass to finish.
func (r *Replayer) Stop() {
	r.loopMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
