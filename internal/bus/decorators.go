package bus

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/ricesearch/senseval/internal/pkg/logger"
)

// PublishRecorder receives the outcome of every publish on an instrumented
// bus. metrics.Metrics implements it.
type PublishRecorder interface {
	RecordBusPublish(topic, eventType string, latency time.Duration, err error)
}

// Instrument wraps b so each publish is timed and reported to rec.
func Instrument(b Bus, rec PublishRecorder) Bus {
	if rec == nil {
		return b
	}
	return &instrumented{Bus: b, rec: rec}
}

type instrumented struct {
	Bus
	rec PublishRecorder
}

func (b *instrumented) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.Bus.Publish(ctx, topic, event)
	b.rec.RecordBusPublish(topic, event.Type, time.Since(start), err)
	return err
}

// Archived appends every published event to an event log before handing it
// to the wrapped bus. A failed append is logged and does not stop the
// publish.
type Archived struct {
	Bus
	archive *EventLog
	log     *logger.Logger
}

// NewArchived wraps b with archive. Closing the result closes both.
func NewArchived(b Bus, archive *EventLog, log *logger.Logger) *Archived {
	if log == nil {
		log = logger.Discard()
	}
	return &Archived{Bus: b, archive: archive, log: log}
}

// Publish archives event, then publishes it on the wrapped bus.
func (b *Archived) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.archive.Append(topic, event); err != nil {
		b.log.WithError(err).Warn("Failed to archive event", "topic", topic, "event_id", event.ID)
	}
	return b.Bus.Publish(ctx, topic, event)
}

// Close closes the event log and the wrapped bus.
func (b *Archived) Close() error {
	return stderrors.Join(b.archive.Close(), b.Bus.Close())
}
