package latency

import telemetry "benchlab-telemetry/internal/telemetry/domain"

// boundedQueue is a fixed-capacity FIFO ring. Pushing onto a full queue
// overwrites the oldest element.
type boundedQueue struct {
	items []telemetry.StageEvent
	head  int
	size  int
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{items: make([]telemetry.StageEvent, capacity)}
}

func (q *boundedQueue) len() int { return q.size }

// push appends ev and reports whether an element was evicted to make room.
func (q *boundedQueue) push(ev telemetry.StageEvent) bool {
	capacity := len(q.items)
	if q.size == capacity {
		q.items[q.head] = ev
		q.head = (q.head + 1) % capacity
		return true
	}
	q.items[(q.head+q.size)%capacity] = ev
	q.size++
	return false
}

func (q *boundedQueue) peek() telemetry.StageEvent {
	return q.items[q.head]
}

func (q *boundedQueue) pop() telemetry.StageEvent {
	ev := q.items[q.head]
	q.items[q.head] = telemetry.StageEvent{}
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return ev
}

// snapshot returns the queued events oldest first.
func (q *boundedQueue) snapshot() []telemetry.StageEvent {
	out := make([]telemetry.StageEvent, 0, q.size)
	for i := 0; i < q.size; i++ {
		out = append(out, q.items[(q.head+i)%len(q.items)])
	}
	return out
}
