package exchange

import (
	"github.com/machinefabric/tncharness-go/tnc"
)

// Limits bounds the active queue generation. Zero fields are unbounded.
type Limits struct {
	MaxMessages    int `yaml:"max_messages"`
	MaxMessageSize int `yaml:"max_message_size"`
	MaxActiveBytes int `yaml:"max_active_bytes"`
}

// DefaultLimits returns unbounded limits
func DefaultLimits() Limits {
	return Limits{}
}

// Queue is a FIFO message queue with two generations. Sends land in the
// active generation; a delivery pass reads the snapshot generation, which is
// never modified while it is read. Swap promotes active to snapshot.
//
// Queue is not safe for concurrent use.
type Queue struct {
	active      []Message
	snapshot    []Message
	activeBytes int
	generation  uint64
	limits      Limits
	metrics     *Metrics
}

// NewQueue creates an empty queue
func NewQueue(limits Limits) *Queue {
	return &Queue{limits: limits}
}

// SetMetrics attaches metrics; nil detaches
func (q *Queue) SetMetrics(m *Metrics) {
	q.metrics = m
}

// Limits returns the configured limits
func (q *Queue) Limits() Limits {
	return q.limits
}

// Enqueue appends a deep copy of m to the active generation. If a limit
// would be exceeded it returns an OutOfMemory error and stores nothing.
func (q *Queue) Enqueue(m Message) error {
	size := len(m.Payload)
	switch {
	case q.limits.MaxMessageSize > 0 && size > q.limits.MaxMessageSize:
		q.metrics.enqueueFailed(m.Category)
		return tnc.Errorf(tnc.ErrorTypeOutOfMemory, "payload of %d bytes exceeds max message size %d", size, q.limits.MaxMessageSize)
	case q.limits.MaxMessages > 0 && len(q.active) >= q.limits.MaxMessages:
		q.metrics.enqueueFailed(m.Category)
		return tnc.Errorf(tnc.ErrorTypeOutOfMemory, "active generation holds max %d messages", q.limits.MaxMessages)
	case q.limits.MaxActiveBytes > 0 && q.activeBytes+size > q.limits.MaxActiveBytes:
		q.metrics.enqueueFailed(m.Category)
		return tnc.Errorf(tnc.ErrorTypeOutOfMemory, "active generation would hold %d bytes, max %d", q.activeBytes+size, q.limits.MaxActiveBytes)
	}

	q.active = append(q.active, m.clone())
	q.activeBytes += size
	q.metrics.enqueued(m.Category, q.activeBytes)
	return nil
}

// Swap releases the current snapshot, then makes the active generation the
// new snapshot and starts an empty active generation.
func (q *Queue) Swap() {
	q.Clear()
	q.snapshot = q.active
	q.active = nil
	q.activeBytes = 0
	q.generation++
	q.metrics.queueBytes(0)
}

// IsEmpty reports whether the active generation is empty
func (q *Queue) IsEmpty() bool {
	return len(q.active) == 0
}

// ActiveCount returns the number of messages in the active generation
func (q *Queue) ActiveCount() int {
	return len(q.active)
}

// ActiveBytes returns the payload bytes held by the active generation
func (q *Queue) ActiveBytes() int {
	return q.activeBytes
}

// Count returns the number of messages in the snapshot
func (q *Queue) Count() int {
	return len(q.snapshot)
}

// Get returns the i-th snapshot message. The returned message shares the
// queue's payload and must not be modified.
func (q *Queue) Get(i int) (Message, bool) {
	if i < 0 || i >= len(q.snapshot) {
		return Message{}, false
	}
	return q.snapshot[i], true
}

// Generation returns how many times Swap has run
func (q *Queue) Generation() uint64 {
	return q.generation
}

// Clear releases the snapshot. Clearing an empty snapshot is a no-op.
func (q *Queue) Clear() {
	for i := range q.snapshot {
		q.snapshot[i].Payload = nil
	}
	q.snapshot = nil
}

// Reset releases both generations
func (q *Queue) Reset() {
	q.Clear()
	for i := range q.active {
		q.active[i].Payload = nil
	}
	q.active = nil
	q.activeBytes = 0
	q.metrics.queueBytes(0)
}
