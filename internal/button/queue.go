package button

// QueueSize is the number of slots in the event ring.
// One slot always stays empty, so at most QueueSize-1 events are pending.
const QueueSize = 4

// Queue is a fixed-capacity FIFO of button events.
// Pushing into a full queue drops the new event; the producer never blocks.
// Not safe for concurrent use; the station loop is the only owner.
type Queue struct {
	buf     [QueueSize]Event
	head    int // next write position
	tail    int // next read position
	dropped uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) full() bool {
	return (q.head+1)%QueueSize == q.tail
}

// Push appends e. It returns false if the queue was full and e was dropped.
func (q *Queue) Push(e Event) bool {
	if q.full() {
		q.dropped++
		return false
	}
	q.buf[q.head] = e
	q.head = (q.head + 1) % QueueSize
	return true
}

// Pop removes the oldest event. ok is false when the queue is empty.
func (q *Queue) Pop() (e Event, ok bool) {
	if q.head == q.tail {
		return Event{}, false
	}
	e = q.buf[q.tail]
	q.tail = (q.tail + 1) % QueueSize
	return e, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return (q.head - q.tail + QueueSize) % QueueSize
}

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped
}
