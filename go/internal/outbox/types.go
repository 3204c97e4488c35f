package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/dynasty-projections/go/internal/models"
)

// Publisher delivers one outbox event downstream.
type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// Relay is implemented by both the LISTEN/NOTIFY listener and the poll worker.
type Relay interface {
	Start(ctx context.Context) error
	Stats() (processed uint64, last time.Time, running bool)
}

// counters tracks relay progress for health reporting.
type counters struct {
	mu        sync.Mutex
	processed uint64
	last      time.Time
	running   bool
}

func (c *counters) published(n int, at time.Time) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	c.processed += uint64(n)
	c.last = at
	c.mu.Unlock()
}

func (c *counters) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

func (c *counters) snapshot() (uint64, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed, c.last, c.running
}
