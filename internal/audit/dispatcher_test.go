package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) {
	panic("sink exploded")
}

type countingSink struct {
	n atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.n.Add(1)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	d.Emit(context.Background(), Event{EventType: "e4"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increase")
	}
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	d.Emit(ctx, Event{EventType: "e3"})
	if time.Since(start) > MaxEmitWait+100*time.Millisecond {
		t.Fatal("blocking emit ignored a cancelled context")
	}
}

func TestDispatcherBlockingWaitIsBounded(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	for deadline := time.Now().Add(time.Second); len(d.ch) > 0 && time.Now().Before(deadline); {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: "e2"})

	const stalled = 4
	start := time.Now()
	for i := 0; i < stalled; i++ {
		d.Emit(context.Background(), Event{EventType: "stalled"})
	}
	if elapsed := time.Since(start); elapsed > stalled*MaxEmitWait+500*time.Millisecond {
		t.Fatalf("emit waited %s on a stalled sink", elapsed)
	}
	if d.Dropped() != stalled {
		t.Fatalf("expected %d dropped events, got %d", stalled, d.Dropped())
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	counter := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, MultiSink{panicSink{}}, zap.New(core))

	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Close()

	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatalf("expected panic to be logged, got %v", logs.All())
	}

	d2 := NewDispatcher(Config{Enabled: true, BufferSize: 4}, counter, nil)
	d2.Emit(context.Background(), Event{EventType: "a"})
	d2.Emit(context.Background(), Event{EventType: "b"})
	d2.Close()
	if counter.n.Load() != 2 {
		t.Fatalf("expected Close to flush 2 events, got %d", counter.n.Load())
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Identifier: "a@b.c"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Identifier != "a@b.c" || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true, UserID: "u1"})
	sink.Emit(context.Background(), Event{EventType: "account_locked", Error: "account locked", Metadata: map[string]string{"retry_after": "15m0s"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels %v / %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["meta.retry_after"] != "15m0s" {
		t.Fatalf("metadata not logged: %v", entries[1].ContextMap())
	}
}
