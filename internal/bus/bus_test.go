package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ricesearch/senseval/internal/config"
)

func waitGroupTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for events")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicEvaluationCompleted, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for range 3 {
		if err := bus.Publish(context.Background(), TopicEvaluationCompleted, mustEvent(t, TypeEvaluationCompleted, nil)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitGroupTimeout(t, &wg)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	for range 3 {
		bus.Subscribe(context.Background(), "runs", func(ctx context.Context, event Event) error {
			count.Add(1)
			wg.Done()
			return nil
		})
	}

	bus.Publish(context.Background(), "runs", mustEvent(t, TypeEvaluationCompleted, nil))
	waitGroupTimeout(t, &wg)

	if got := count.Load(); got != 3 {
		t.Errorf("Handlers called %d times, want 3", got)
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	if err := bus.Publish(context.Background(), "nobody", mustEvent(t, "x", nil)); err != nil {
		t.Errorf("Publish() with no subscribers error = %v", err)
	}
}

func TestMemoryBus_HandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(context.Background(), "runs", func(ctx context.Context, event Event) error {
		defer wg.Done()
		return errors.New("handler failed")
	})

	if err := bus.Publish(context.Background(), "runs", mustEvent(t, "x", nil)); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	waitGroupTimeout(t, &wg)
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(nil)

	var delivered atomic.Bool
	bus.Subscribe(context.Background(), "runs", func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		delivered.Store(true)
		return nil
	})
	bus.Publish(context.Background(), "runs", mustEvent(t, "x", nil))

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !delivered.Load() {
		t.Error("Close() returned before in-flight handler finished")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := bus.Publish(context.Background(), "runs", Event{}); err == nil {
		t.Error("Publish() after Close() should return error")
	}
	if err := bus.Subscribe(context.Background(), "runs", nil); err == nil {
		t.Error("Subscribe() after Close() should return error")
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup
	const publishers, perPublisher = 8, 25
	wg.Add(publishers * perPublisher)

	bus.Subscribe(context.Background(), "runs", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	var pubWg sync.WaitGroup
	for range publishers {
		pubWg.Add(1)
		go func() {
			defer pubWg.Done()
			for range perPublisher {
				bus.Publish(context.Background(), "runs", Event{ID: "e"})
			}
		}()
	}
	pubWg.Wait()
	waitGroupTimeout(t, &wg)

	if got := received.Load(); got != publishers*perPublisher {
		t.Errorf("Received %d events, want %d", got, publishers*perPublisher)
	}
}

func TestNewEvent(t *testing.T) {
	a := mustEvent(t, TypeEvaluationCompleted, map[string]float64{"fscore": 0.5})
	b := mustEvent(t, TypeEvaluationCompleted, nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event IDs %q and %q should be unique and non-empty", a.ID, b.ID)
	}
	if a.Source != Source || a.Type != TypeEvaluationCompleted {
		t.Errorf("event = %+v, want source %s type %s", a, Source, TypeEvaluationCompleted)
	}
	if a.Timestamp == 0 {
		t.Error("Timestamp not set")
	}

	var payload map[string]float64
	if err := a.Decode(&payload); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if payload["fscore"] != 0.5 {
		t.Errorf("payload = %v, want fscore 0.5", payload)
	}

	if _, err := NewEvent("x", make(chan int)); err == nil {
		t.Error("NewEvent() with unencodable payload should return error")
	}
}

func TestNopBus(t *testing.T) {
	var b Bus = NopBus{}
	if err := b.Publish(context.Background(), "runs", Event{}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := b.Subscribe(context.Background(), "runs", nil); err == nil {
		t.Error("Subscribe() on NopBus should return error")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type recorder struct {
	mu    sync.Mutex
	types []string
	errs  []error
}

func (r *recorder) RecordBusPublish(topic, eventType string, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, topic+"/"+eventType)
	r.errs = append(r.errs, err)
}

func TestInstrument(t *testing.T) {
	rec := &recorder{}
	b := Instrument(NewMemoryBus(nil), rec)

	b.Publish(context.Background(), "runs", Event{Type: TypeEvaluationCompleted})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	b.Publish(context.Background(), "runs", Event{Type: TypeEvaluationCompleted})

	want := []string{"runs/" + TypeEvaluationCompleted, "runs/" + TypeEvaluationCompleted}
	if diff := cmp.Diff(want, rec.types); diff != "" {
		t.Errorf("recorded publishes mismatch (-want +got):\n%s", diff)
	}
	if rec.errs[0] != nil || rec.errs[1] == nil {
		t.Errorf("recorded errors = %v, want [nil, closed]", rec.errs)
	}
}

func TestInstrument_NilRecorder(t *testing.T) {
	inner := NewMemoryBus(nil)
	defer inner.Close()
	if b := Instrument(inner, nil); b != Bus(inner) {
		t.Errorf("Instrument(nil recorder) = %T, want the inner bus", b)
	}
}

func TestNewBus(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BusConfig
		want    string
		wantErr bool
	}{
		{"none", config.BusConfig{Type: "none"}, "nop", false},
		{"empty", config.BusConfig{}, "nop", false},
		{"memory", config.BusConfig{Type: "memory"}, "memory", false},
		{"mixed case memory", config.BusConfig{Type: " Memory"}, "memory", false},
		{"kafka without brokers", config.BusConfig{Type: "kafka"}, "", true},
		{"unknown", config.BusConfig{Type: "nats"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBus(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer b.Close()

			switch tt.want {
			case "nop":
				if _, ok := b.(NopBus); !ok {
					t.Errorf("NewBus() = %T, want NopBus", b)
				}
			case "memory":
				if _, ok := b.(*MemoryBus); !ok {
					t.Errorf("NewBus() = %T, want *MemoryBus", b)
				}
			}
		})
	}
}

func TestNewBus_EventLog(t *testing.T) {
	b, err := NewBus(config.BusConfig{Type: "memory", EventLog: t.TempDir() + "/events.log"}, nil)
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	defer b.Close()

	if _, ok := b.(*Archived); !ok {
		t.Errorf("NewBus() = %T, want *Archived", b)
	}
}
