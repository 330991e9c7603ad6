package handoff

import (
	"context"
	"sync"

	"github.com/norasector/rxtap/pkg/rxtap/block"
)

type node struct {
	block *block.Block
	next  *node
}

// Queue is an unbounded FIFO of sample blocks shared between the receiver
// (the only producer) and any number of consumers.
//
// Push never blocks. There is no backpressure: if consumers stall, the queue
// keeps growing until the process runs out of memory.
type Queue struct {
	mu    sync.Mutex
	head  *node
	tail  *node
	size  int
	bytes int

	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends b to the back of the queue.
func (q *Queue) Push(b *block.Block) {
	n := &node{block: b}

	q.mu.Lock()
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++
	q.bytes += b.SizeBytes()
	q.mu.Unlock()

	q.signal()
}

// TryPop removes and returns the front block if one is present.
func (q *Queue) TryPop() (*block.Block, bool) {
	q.mu.Lock()
	if q.head == nil {
		q.mu.Unlock()
		return nil, false
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	q.bytes -= n.block.SizeBytes()
	remaining := q.size
	q.mu.Unlock()

	// Wake the next waiting consumer if there is more to take.
	if remaining > 0 {
		q.signal()
	}
	return n.block, true
}

// Pop blocks until a block is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (*block.Block, error) {
	for {
		if b, ok := q.TryPop(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain pops and drops every queued block and returns how many were dropped.
func (q *Queue) Drain() int {
	dropped := 0
	for {
		if _, ok := q.TryPop(); !ok {
			return dropped
		}
		dropped++
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// SizeBytes is the sample payload currently held by the queue.
func (q *Queue) SizeBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
