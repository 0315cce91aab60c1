package connector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DeadLetterRecord is a payload that exhausted its retries.
type DeadLetterRecord struct {
	ID            uuid.UUID
	ConnectorName string
	Payload       any
	Error         string
	AttemptCount  uint32
	FirstFailedAt time.Time
	LastFailedAt  time.Time
	Retryable     bool
}

// DlqMetrics is a point-in-time snapshot of a DeadLetterQueue.
type DlqMetrics struct {
	Depth         int
	TotalEnqueued uint64
	TotalReplayed uint64
}

// DeadLetterQueue is a bounded FIFO: enqueue past capacity silently evicts
// the oldest record rather than erroring. TotalEnqueued and TotalReplayed
// are monotonically increasing counters independent of the current depth.
type DeadLetterQueue struct {
	mu            sync.Mutex
	records       []DeadLetterRecord
	maxSize       int
	totalEnqueued atomic.Uint64
	totalReplayed atomic.Uint64
}

// NewDeadLetterQueue constructs a queue with the given capacity. A capacity
// of 0 retains nothing.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize < 0 {
		maxSize = 0
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Enqueue appends record, evicting the oldest entry first if the queue is
// already at capacity.
func (q *DeadLetterQueue) Enqueue(record DeadLetterRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxSize == 0 {
		q.totalEnqueued.Add(1)
		return
	}
	if len(q.records) >= q.maxSize {
		q.records = q.records[1:]
	}
	q.records = append(q.records, record)
	q.totalEnqueued.Add(1)
}

// Dequeue removes and returns the oldest record, if any.
func (q *DeadLetterQueue) Dequeue() (DeadLetterRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return DeadLetterRecord{}, false
	}
	record := q.records[0]
	q.records = q.records[1:]
	q.totalReplayed.Add(1)
	return record, true
}

// Peek returns up to limit of the oldest retained records without removing
// them.
func (q *DeadLetterQueue) Peek(limit int) []DeadLetterRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit > len(q.records) {
		limit = len(q.records)
	}
	out := make([]DeadLetterRecord, limit)
	copy(out, q.records[:limit])
	return out
}

// Depth returns the number of records currently retained.
func (q *DeadLetterQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Metrics returns a snapshot of the queue's counters.
func (q *DeadLetterQueue) Metrics() DlqMetrics {
	return DlqMetrics{
		Depth:         q.Depth(),
		TotalEnqueued: q.totalEnqueued.Load(),
		TotalReplayed: q.totalReplayed.Load(),
	}
}
