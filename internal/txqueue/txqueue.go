// Package txqueue funnels outbound writes for one port through a single
// goroutine, adapted from the teacher's internal/transport.AsyncTx: instead
// of fanning in can.Frame values to a CAN backend, it fans in raw []byte
// payloads to anything shaped like io.Writer (a serial port, in practice).
// Non-blocking enqueue semantics keep a slow or wedged device from
// blocking the protocol engine that produced the bytes to send.
package txqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send once the queue has been closed.
var ErrClosed = errors.New("txqueue: closed")

// ErrOverflow is returned by Send when the internal buffer is full and no
// Hooks.OnDrop is set.
var ErrOverflow = errors.New("txqueue: overflow")

// Hooks customize Queue behavior without duplicating the goroutine/buffer
// plumbing at each call site.
type Hooks struct {
	OnError func(error)
	OnAfter func()
	OnDrop  func() error
}

// Queue is a reusable asynchronous byte-payload transmitter.
type Queue struct {
	mu     sync.Mutex
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func([]byte) error
	hooks  Hooks
	closed atomic.Bool
}

// New constructs a Queue with a buffered channel of size buf, spawning its
// worker goroutine immediately.
func New(parent context.Context, buf int, send func([]byte) error, hooks Hooks) *Queue {
	ctx, cancel := context.WithCancel(parent)
	q := &Queue{
		ch:     make(chan []byte, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for {
		select {
		case b, ok := <-q.ch:
			if !ok {
				return
			}
			if err := q.send(b); err != nil {
				if q.hooks.OnError != nil {
					q.hooks.OnError(err)
				}
				continue
			}
			if q.hooks.OnAfter != nil {
				q.hooks.OnAfter()
			}
		case <-q.ctx.Done():
			return
		}
	}
}

// Send queues b for asynchronous write, or invokes OnDrop (defaulting to
// ErrOverflow) if the buffer is full.
func (q *Queue) Send(b []byte) error {
	if q.closed.Load() {
		return ErrClosed
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.ch <- b:
		return nil
	default:
		if q.hooks.OnDrop != nil {
			return q.hooks.OnDrop()
		}
		return ErrOverflow
	}
}

// Close stops the worker and waits for it to exit. Idempotent.
func (q *Queue) Close() {
	if q.closed.Swap(true) {
		return
	}
	q.cancel()
	q.mu.Lock()
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}
