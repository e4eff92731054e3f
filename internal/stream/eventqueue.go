package stream

import (
	"engagehub/internal/domain"
	"engagehub/internal/queue"
)

// boundedEventQueue is the Bounded MPMC Queue from §4.1, specialised to
// domain.Event for the processor's single producer-facing surface.
type boundedEventQueue struct {
	q *queue.Queue[domain.Event]
}

func newBoundedEventQueue(capacity int) *boundedEventQueue {
	return &boundedEventQueue{q: queue.New[domain.Event](capacity)}
}

func (b *boundedEventQueue) push(ev domain.Event) bool { return b.q.Push(ev) }

func (b *boundedEventQueue) pop() (domain.Event, bool) { return b.q.Pop() }

func (b *boundedEventQueue) empty() bool { return b.q.Empty() }
