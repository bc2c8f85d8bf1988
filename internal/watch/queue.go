package watch

import "sync"

// queue is an unbounded FIFO of paths with a single consumer. A path that is
// already waiting is not queued a second time.
type queue struct {
	mu      sync.Mutex
	items   []string
	pending map[string]struct{}
	closed  bool
	ready   chan struct{}
}

func newQueue() *queue {
	return &queue{
		pending: make(map[string]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

// push appends path and reports whether it was added.
func (q *queue) push(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, dup := q.pending[path]; dup {
		return false
	}
	q.pending[path] = struct{}{}
	q.items = append(q.items, path)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until a path is available or the queue is closed.
// Items still waiting at close are not returned.
func (q *queue) pop() (string, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return "", false
		}
		if len(q.items) > 0 {
			path := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			delete(q.pending, path)
			q.mu.Unlock()
			return path, true
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// close wakes the consumer and returns how many items were left waiting.
func (q *queue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ready)
	}
	return len(q.items)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
