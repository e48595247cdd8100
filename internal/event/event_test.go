package event

import (
	"testing"
	"time"
)

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue(4)
	q.Emit(Event{Type: TypeCommand, Command: "u"})
	q.Emit(Event{Type: TypeClassified, Class: "h"})

	first := <-q.C()
	second := <-q.C()
	if first.Type != TypeCommand || second.Type != TypeClassified {
		t.Errorf("unexpected order: %s, %s", first.Type, second.Type)
	}
	if q.Dropped() != 0 {
		t.Errorf("Dropped: got %d, want 0", q.Dropped())
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	for i := 0; i < 5; i++ {
		q.Emit(Event{Type: TypeAlert, Sample: uint16(i)})
	}

	if q.Dropped() != 3 {
		t.Errorf("Dropped: got %d, want 3", q.Dropped())
	}
	// The oldest events are the ones kept.
	if ev := <-q.C(); ev.Sample != 0 {
		t.Errorf("first kept sample: got %d, want 0", ev.Sample)
	}
}

func TestFakeSinkOfType(t *testing.T) {
	var f FakeSink
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.Emit(Event{Timestamp: now, Type: TypeCommand})
	f.Emit(Event{Timestamp: now, Type: TypeMeasurement, DistanceUM: 500094})
	f.Emit(Event{Timestamp: now, Type: TypeMeasurement, DistanceUM: 500094})

	if n := len(f.Events()); n != 3 {
		t.Errorf("Events: got %d, want 3", n)
	}
	if n := len(f.OfType(TypeMeasurement)); n != 2 {
		t.Errorf("OfType(MEASUREMENT): got %d, want 2", n)
	}
	if n := len(f.OfType(TypeAlert)); n != 0 {
		t.Errorf("OfType(ALERT): got %d, want 0", n)
	}
}

func TestDiscard(t *testing.T) {
	var s Sink = Discard{}
	s.Emit(Event{Type: TypeAlert})
}
