package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/norasector/rxtap/pkg/rxtap/block"
)

func testBlock(t *testing.T, seq uint64) *block.Block {
	t.Helper()
	b, err := block.FromRaw(seq, time.Now(), []int32{2, 4}, 1, 2)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	return b
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := uint64(1); i <= 5; i++ {
		q.Push(testBlock(t, i))
	}

	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	if q.SizeBytes() != 5*16 {
		t.Errorf("SizeBytes() = %d, want %d", q.SizeBytes(), 5*16)
	}

	for i := uint64(1); i <= 5; i++ {
		b, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() empty at %d", i)
		}
		if b.Seq != i {
			t.Errorf("TryPop() seq = %d, want %d", b.Seq, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop() on empty queue returned a block")
	}
	if q.SizeBytes() != 0 {
		t.Errorf("SizeBytes() = %d after emptying", q.SizeBytes())
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue()

	if n := q.Drain(); n != 0 {
		t.Errorf("Drain() on empty queue = %d, want 0", n)
	}

	for i := uint64(0); i < 3; i++ {
		q.Push(testBlock(t, i))
	}
	if n := q.Drain(); n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain() = %d", q.Len())
	}

	// queue stays usable after a drain
	q.Push(testBlock(t, 9))
	if b, ok := q.TryPop(); !ok || b.Seq != 9 {
		t.Error("queue unusable after Drain()")
	}
}

func TestQueue_PopWaitsForPush(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b42 := testBlock(t, 42)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(b42)
	}()

	b, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if b.Seq != 42 {
		t.Errorf("Pop() seq = %d, want 42", b.Seq)
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Pop() error = %v, want context.Canceled", err)
	}
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	const total = 500
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[uint64]struct{})
		wg   sync.WaitGroup
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				b, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[b.Seq] = struct{}{}
				done := len(seen) == total
				mu.Unlock()
				if done {
					cancel()
					return
				}
			}
		}()
	}

	for i := uint64(0); i < total; i++ {
		q.Push(testBlock(t, i))
	}

	wg.Wait()
	if len(seen) != total {
		t.Errorf("consumed %d blocks, want %d", len(seen), total)
	}
}
