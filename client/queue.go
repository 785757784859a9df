package client

import (
	"context"
	"sync"
)

// Queue holds serialized outbound messages until the session writer has
// put them on the socket. Enqueue is safe from any goroutine; Peek and
// Remove are called by one consumer. An entry stays queued until Remove,
// so a message whose write failed is sent again by the next session.
type Queue interface {
	Enqueue(data []byte) error
	// Peek blocks until the oldest entry is available, ctx is done, or the
	// queue is closed.
	Peek(ctx context.Context) (Entry, error)
	Remove(e Entry) error
	Close() error
}

type Entry struct {
	Data  []byte
	token any
}

// OverflowPolicy decides what a bounded MemoryQueue does when full.
type OverflowPolicy int

const (
	// OverflowReject fails Enqueue with ErrQueueFull.
	OverflowReject OverflowPolicy = iota
	// OverflowDropOldest discards the oldest entry to make room.
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

type memEntry struct {
	seq  uint64
	data []byte
}

// MemoryQueue is an in-process FIFO. A zero limit means unbounded.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []memEntry
	next     uint64
	limit    int
	overflow OverflowPolicy
	dropped  uint64
	closed   bool

	notify chan struct{}
	done   chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return NewBoundedMemoryQueue(0, OverflowReject)
}

func NewBoundedMemoryQueue(limit int, overflow OverflowPolicy) *MemoryQueue {
	return &MemoryQueue{
		limit:    limit,
		overflow: overflow,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		if q.overflow != OverflowDropOldest {
			return ErrQueueFull
		}
		q.items = q.items[1:]
		q.dropped++
	}

	q.next++
	q.items = append(q.items, memEntry{seq: q.next, data: data})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Peek(ctx context.Context) (Entry, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Entry{}, ErrQueueClosed
		}
		if len(q.items) > 0 {
			head := q.items[0]
			q.mu.Unlock()
			return Entry{Data: head.data, token: head.seq}, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.done:
			return Entry{}, ErrQueueClosed
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Remove deletes e. Removing an entry that was already dropped is a no-op.
func (q *MemoryQueue) Remove(e Entry) error {
	seq, ok := e.token.(uint64)
	if !ok {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.seq == seq {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
		if item.seq > seq {
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped counts entries discarded by OverflowDropOldest.
func (q *MemoryQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
