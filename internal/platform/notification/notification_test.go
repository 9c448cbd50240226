package notification

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	r.Publish(ctx, Event{Type: EventStarted, AppointmentID: "a1"})
	r.Publish(ctx, Event{Type: EventCompleted, AppointmentID: "a1"})

	types := r.Types()
	if len(types) != 2 || types[0] != EventStarted || types[1] != EventCompleted {
		t.Errorf("unexpected types: %v", types)
	}

	events := r.Events()
	events[0].Type = "mutated"
	if r.Events()[0].Type != EventStarted {
		t.Error("Events must return a copy")
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), Event{
		Type:          EventReviewInitiated,
		AppointmentID: "appt-1",
		VersionID:     "ver-2",
		ActorID:       "lect-1",
		OccurredAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{EventReviewInitiated, "appt-1", "ver-2", "lect-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %q, got %s", want, out)
		}
	}
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "consultation-events")
	if p.writer.Topic != "consultation-events" {
		t.Errorf("unexpected topic %s", p.writer.Topic)
	}
	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestKafkaPublisher_BoundedWhenBrokerDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := NewKafkaPublisher([]string{addr}, "consultation-events")
	p.timeout = 200 * time.Millisecond
	defer p.Close()

	start := time.Now()
	err = p.Publish(context.Background(), Event{Type: EventStarted, AppointmentID: "a1"})
	if err == nil {
		t.Fatal("expected an error with no broker listening")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("publish took %v with the broker down", elapsed)
	}
}
