// Package statespace explores the discrete-event state space of an
// elaborated program: an event-queue simulation from a start mode until
// a horizon, the event queue runs dry, or a loop is detected. The
// resulting diagram is split into phase fragments consumed by the DAG
// generator.
package statespace

import (
	"container/heap"
	"sort"

	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Event is a trigger occurrence at a tag.
type Event struct {
	Trigger instance.TriggerInstance
	Tag     tag.Tag
}

type queueEntry struct {
	event Event
	seq   int // insertion order tiebreak
}

type eventHeap []queueEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if c := h[i].event.Tag.Compare(h[j].event.Tag); c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(queueEntry)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// EventQueue is a min-heap of events ordered by tag, ties broken by
// insertion order. Duplicate events (same trigger and tag) coalesce.
type EventQueue struct {
	heap eventHeap
	seq  int
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return len(q.heap) }

// Push enqueues an event unless an identical one is already queued.
func (q *EventQueue) Push(e Event) {
	for _, entry := range q.heap {
		if entry.event.Trigger == e.Trigger && entry.event.Tag == e.Tag {
			return
		}
	}
	heap.Push(&q.heap, queueEntry{event: e, seq: q.seq})
	q.seq++
}

// Peek returns the earliest event without removing it.
func (q *EventQueue) Peek() Event {
	return q.heap[0].event
}

// Pop removes and returns the earliest event.
func (q *EventQueue) Pop() Event {
	return heap.Pop(&q.heap).(queueEntry).event
}

// PopTag removes and returns every event at exactly t.
func (q *EventQueue) PopTag(t tag.Tag) []Event {
	var out []Event
	for q.Len() > 0 && q.Peek().Tag.Compare(t) == 0 {
		out = append(out, q.Pop())
	}
	return out
}

// Snapshot returns the queued events ordered by (tag, insertion).
func (q *EventQueue) Snapshot() []Event {
	entries := make([]queueEntry, len(q.heap))
	copy(entries, q.heap)
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].event.Tag.Compare(entries[j].event.Tag); c != 0 {
			return c < 0
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]Event, len(entries))
	for i, e := range entries {
		out[i] = e.event
	}
	return out
}
