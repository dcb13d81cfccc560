package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// LoggedEvent is one line of the event log.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter selects logged events. Zero fields match everything.
type EventFilter struct {
	Since time.Time // strictly after
	Type  string
	Limit int // first Limit matches
}

func (f EventFilter) match(e LoggedEvent) bool {
	if !e.Timestamp.After(f.Since) {
		return false
	}
	return f.Type == "" || e.Event.Type == f.Type
}

// EventLog is an append-only JSON lines file of published events, used to
// list past runs and to replay them onto another bus.
type EventLog struct {
	path string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenEventLog opens path for appending, creating it and its directory if
// needed.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.IOError("creating event log directory", err).WithDetail("path", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.IOError("opening event log", err).WithDetail("path", path)
	}
	return &EventLog{path: path, file: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the log file path.
func (l *EventLog) Path() string {
	return l.path
}

// Append writes event and syncs the file.
func (l *EventLog) Append(topic string, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeUnavailable, "event log is closed")
	}
	if err := l.enc.Encode(LoggedEvent{Event: event, Topic: topic, Timestamp: time.Now()}); err != nil {
		return errors.IOError("appending to event log", err)
	}
	if err := l.file.Sync(); err != nil {
		return errors.IOError("syncing event log", err)
	}
	return nil
}

// Events reads back the logged events matching filter, oldest first.
func (l *EventLog) Events(filter EventFilter) ([]LoggedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ReadEventLog(l.path, filter)
}

// Replay publishes the events matching filter on target, in log order, each
// on the topic it was logged under. It stops at the first failed publish.
func (l *EventLog) Replay(ctx context.Context, target Bus, filter EventFilter) (int, error) {
	events, err := l.Events(filter)
	if err != nil {
		return 0, err
	}

	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := target.Publish(ctx, e.Topic, e.Event); err != nil {
			return i, errors.Wrap(errors.CodeUnavailable, "replaying event", err).WithDetail("event_id", e.Event.ID)
		}
	}
	return len(events), nil
}

// Close closes the file. Further appends fail.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.enc = nil, nil
	if err != nil {
		return errors.IOError("closing event log", err)
	}
	return nil
}

// ReadEventLog reads the events matching filter from the log at path. A
// missing file holds no events.
func ReadEventLog(path string, filter EventFilter) ([]LoggedEvent, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []LoggedEvent{}, nil
	}
	if err != nil {
		return nil, errors.IOError("opening event log", err).WithDetail("path", path)
	}
	defer f.Close()

	return readEvents(f, filter)
}

// readEvents decodes one event per line, skipping lines that do not decode.
// Lines have no length limit, since run records carry one row per term.
func readEvents(r io.Reader, filter EventFilter) ([]LoggedEvent, error) {
	events := []LoggedEvent{}
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			var e LoggedEvent
			if json.Unmarshal(line, &e) == nil && filter.match(e) {
				events = append(events, e)
				if filter.Limit > 0 && len(events) == filter.Limit {
					return events, nil
				}
			}
		}
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return nil, errors.IOError("reading event log", err)
		}
	}
}
