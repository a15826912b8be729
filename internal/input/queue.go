package input

import (
	"context"
	"sync"
	"sync/atomic"
)

// queue is an unbounded FIFO of input items. A single pump goroutine owns
// the buffer; producers hand items to in, the consumer reads out. The
// usual nil-channel trick keeps out disabled while the buffer is empty.
type queue struct {
	in    chan Data
	out   chan Data
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	depth atomic.Int64
}

func newQueue() *queue {
	q := &queue{
		in:   make(chan Data),
		out:  make(chan Data),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *queue) pump() {
	defer close(q.done)
	defer close(q.out)

	var buf []Data
	for {
		var (
			out  chan Data
			next Data
		)
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}
		select {
		case item := <-q.in:
			buf = append(buf, item)
			q.depth.Add(1)
		case out <- next:
			buf = buf[1:]
			q.depth.Add(-1)
		case <-q.quit:
			// Items still buffered are dropped; callers stop the
			// sources before closing the queue.
			return
		}
	}
}

func (q *queue) push(ctx context.Context, item Data) error {
	select {
	case q.in <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrClosed
	}
}

func (q *queue) pop(ctx context.Context) (Data, error) {
	select {
	case item, ok := <-q.out:
		if !ok {
			return Data{}, ErrClosed
		}
		return item, nil
	case <-ctx.Done():
		return Data{}, ctx.Err()
	}
}

func (q *queue) len() int {
	return int(q.depth.Load())
}

func (q *queue) close() {
	q.once.Do(func() { close(q.quit) })
	<-q.done
}
