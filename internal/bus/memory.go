package bus

import (
	"context"
	"sync"
	"time"

	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
)

// drainTimeout bounds how long Close waits for running deliveries.
const drainTimeout = 10 * time.Second

// MemoryBus delivers events to subscribers in the same process. Every
// delivery runs on its own goroutine, so a slow handler never delays the
// publisher. Close waits for running deliveries.
type MemoryBus struct {
	log *logger.Logger

	mu     sync.RWMutex
	subs   map[string][]Handler
	closed bool

	deliveries sync.WaitGroup
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Discard()
	}
	return &MemoryBus{
		log:  log,
		subs: make(map[string][]Handler),
	}
}

// Publish hands event to every subscriber of topic. Handlers receive a
// context that keeps ctx's values but not its deadline, since they outlive
// the call.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errClosed()
	}

	hctx := context.WithoutCancel(ctx)
	for _, h := range b.subs[topic] {
		b.deliveries.Go(func() {
			if err := h(hctx, event); err != nil {
				b.log.WithError(err).Warn("Event handler failed", "topic", topic, "event_id", event.ID)
			}
		})
	}
	return nil
}

// Subscribe adds handler for topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errClosed()
	}
	b.subs[topic] = append(b.subs[topic], handler)
	return nil
}

// Close stops accepting events and waits up to drainTimeout for running
// deliveries. Closing twice is a no-op.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = nil
	b.mu.Unlock()

	if !waitTimeout(&b.deliveries, drainTimeout) {
		return errors.New(errors.CodeTimeout, "event handlers still running after close")
	}
	return nil
}

// waitTimeout waits for wg and reports whether it finished in time.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func errClosed() error {
	return errors.New(errors.CodeUnavailable, "bus is closed")
}
