package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/habla/internal/audio"
)

var (
	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueEmpty is returned when there is nothing to dequeue
	ErrQueueEmpty = errors.New("queue is empty")
)

// Item is one clip waiting to be played.
type Item struct {
	// ID is the audio key of the segment (message id and kind).
	ID        string
	Resource  *audio.Resource
	FromCache bool

	enqueuedAt time.Time
}

// Stats tracks queue performance metrics
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
	MaxWaitTime   time.Duration

	// Driver counters
	Played    int64
	Skipped   int64
	Retries   int64
	Rotations int64
}

// Queue is a FIFO of playback items.
type Queue struct {
	items  []Item
	mu     sync.Mutex
	closed bool
	stats  Stats
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make([]Item, 0, 4)}
}

// Enqueue appends item at the tail.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	item.enqueuedAt = time.Now()
	q.items = append(q.items, item)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = item.enqueuedAt
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
	return nil
}

// Dequeue removes and returns the head item.
func (q *Queue) Dequeue() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Item{}, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return Item{}, ErrQueueEmpty
	}

	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]

	now := time.Now()
	if wait := now.Sub(item.enqueuedAt); wait > q.stats.MaxWaitTime {
		q.stats.MaxWaitTime = wait
	}
	q.stats.TotalDequeued++
	q.stats.LastDequeue = now
	return item, nil
}

// Peek returns the head item without removing it.
func (q *Queue) Peek() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, ErrQueueEmpty
	}
	return q.items[0], nil
}

// Size returns the number of queued items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued item.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = make([]Item, 0, 4)
	q.stats.TotalDropped += int64(len(items))
	return items
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	return stats
}

// Close marks the queue closed and returns anything still queued.
func (q *Queue) Close() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	items := q.items
	q.items = nil
	return items
}
