package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/temoto/spq"
)

// SpoolQueue is a Queue persisted on disk, so messages queued while the
// server is unreachable survive a restart.
type SpoolQueue struct {
	q *spq.Queue

	mu      sync.Mutex
	pending chan peekResult
}

// OpenSpoolQueue opens or creates the queue database at path.
// spq.OnlyForTesting opens an in-memory store.
func OpenSpoolQueue(path string) (*SpoolQueue, error) {
	q, err := spq.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spool queue %s: %w", path, err)
	}
	return &SpoolQueue{q: q}, nil
}

func (s *SpoolQueue) Enqueue(data []byte) error {
	err := s.q.Push(data)
	if errors.Is(err, spq.ErrClosed) {
		return ErrQueueClosed
	}
	return err
}

type peekResult struct {
	box spq.Box
	err error
}

func (s *SpoolQueue) Peek(ctx context.Context) (Entry, error) {
	// spq.Peek cannot be cancelled. A peek abandoned by a cancelled ctx is
	// kept and picked up by the next call, so only one waits on spq's
	// wakeup signal at a time.
	s.mu.Lock()
	ch := s.pending
	if ch == nil {
		ch = make(chan peekResult, 1)
		s.pending = ch
		go func() {
			box, err := s.q.Peek()
			ch <- peekResult{box: box, err: err}
		}()
	}
	s.mu.Unlock()

	select {
	case r := <-ch:
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		if errors.Is(r.err, spq.ErrClosed) {
			return Entry{}, ErrQueueClosed
		}
		if r.err != nil {
			return Entry{}, r.err
		}
		return Entry{Data: r.box.Bytes(), token: r.box}, nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (s *SpoolQueue) Remove(e Entry) error {
	box, ok := e.token.(spq.Box)
	if !ok {
		return fmt.Errorf("entry does not belong to a spool queue")
	}
	err := s.q.Delete(box)
	if errors.Is(err, spq.ErrClosed) {
		return ErrQueueClosed
	}
	return err
}

func (s *SpoolQueue) Close() error {
	return s.q.Close()
}
