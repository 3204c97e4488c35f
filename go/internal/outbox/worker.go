package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker drains the outbox on a fixed interval. It is the fallback relay for
// deployments where LISTEN/NOTIFY is unavailable (and for the in-memory store).
type Worker struct {
	reader    store.OutboxReader
	publisher Publisher
	config    Config
	clock     clockwork.Clock

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	stats    counters
}

func NewWorker(reader store.OutboxReader, publisher Publisher, cfg Config, clock clockwork.Clock) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		reader:    reader,
		publisher: publisher,
		config:    cfg,
		clock:     clock,
	}
}

// Start launches the poll loop and returns immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, _, running := w.stats.snapshot(); running {
		return fmt.Errorf("outbox worker already running")
	}
	w.stats.setRunning(true)
	w.stopChan = make(chan struct{})

	w.wg.Add(1)
	go w.run(ctx, w.stopChan)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if _, _, running := w.stats.snapshot(); !running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) Stats() (uint64, time.Time, bool) {
	return w.stats.snapshot()
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()
	defer w.stats.setRunning(false)

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			w.processOutbox(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	events, err := w.reader.FetchUnsentOutbox(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch unsent events")
		return
	}
	if len(events) == 0 {
		return
	}

	var successfulIDs []uuid.UUID
	for _, event := range events {
		if err := publishWithRetry(ctx, w.clock, w.publisher, w.config.MaxRetries, w.config.RetryDelay, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to publish event")
			continue
		}
		successfulIDs = append(successfulIDs, event.ID)
	}

	if len(successfulIDs) > 0 {
		if err := w.reader.MarkOutboxSent(ctx, successfulIDs...); err != nil {
			log.Error().Err(err).Msg("failed to mark events as sent")
			return
		}
	}
	w.stats.published(len(successfulIDs), w.clock.Now())

	log.Info().
		Int("total", len(events)).
		Int("successful", len(successfulIDs)).
		Msg("processed outbox events")
}

// publishWithRetry retries with a linearly growing delay until maxRetries is exhausted.
func publishWithRetry(ctx context.Context, clock clockwork.Clock, p Publisher, maxRetries int, delay time.Duration, event models.OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(delay * time.Duration(attempt)):
			}
		}

		if err := p.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", maxRetries+1, lastErr)
}
