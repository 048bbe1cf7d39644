// Package host provides the authoritative-thread marshaller. The host
// application is single-threaded-authoritative over its graph, so every
// mutation from any connection is handed off to one goroutine and executed
// there, serialized relative to all other mutations.
package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// ErrHostTimeout means the hand-off to the authoritative thread did not
	// complete within the bound. Connection-local and retryable.
	ErrHostTimeout = errors.New("host thread hand-off timed out")

	// ErrStopped means the thread is shut down.
	ErrStopped = errors.New("host thread stopped")
)

// PanicError wraps a panic that escaped a task. It marks an invariant
// violated despite validation: logged and surfaced as FATAL_INTERNAL while
// the process keeps serving other connections.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("host task panicked: %v", e.Value)
}

type task struct {
	fn   func() error
	done chan error
}

// Thread executes tasks sequentially on a single goroutine with a bounded
// hand-off timeout. Zero value is unusable; use NewThread and Start.
type Thread struct {
	tasks   chan *task
	quit    chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

// NewThread creates a thread with the given queue size and default hand-off
// timeout. Non-positive arguments select 64 and 5s.
func NewThread(queueSize int, timeout time.Duration) *Thread {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Thread{
		tasks:   make(chan *task, queueSize),
		quit:    make(chan struct{}),
		timeout: timeout,
	}
}

// Start launches the executor goroutine.
func (t *Thread) Start() {
	t.wg.Add(1)
	go t.run()
}

// Stop shuts the thread down. Queued tasks that have not started fail with
// ErrStopped; a task already executing runs to completion.
func (t *Thread) Stop() {
	t.once.Do(func() { close(t.quit) })
	t.wg.Wait()
}

// QueueDepth returns the number of tasks waiting for the host thread.
func (t *Thread) QueueDepth() int {
	return len(t.tasks)
}

// Invoke runs fn on the authoritative thread and waits for it to finish.
// The wait is bounded by the thread's hand-off timeout (and the context):
// on expiry the caller gets ErrHostTimeout instead of hanging its
// connection. Panics inside fn are contained and returned as *PanicError.
func (t *Thread) Invoke(ctx context.Context, fn func() error) error {
	tk := &task{fn: fn, done: make(chan error, 1)}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case t.tasks <- tk:
	case <-timer.C:
		return ErrHostTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-t.quit:
		return ErrStopped
	}

	select {
	case err := <-tk.done:
		return err
	case <-timer.C:
		return ErrHostTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-t.quit:
		return ErrStopped
	}
}

func (t *Thread) run() {
	defer t.wg.Done()
	for {
		select {
		case tk := <-t.tasks:
			tk.done <- t.execute(tk.fn)
		case <-t.quit:
			t.drain()
			return
		}
	}
}

func (t *Thread) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func (t *Thread) drain() {
	for {
		select {
		case tk := <-t.tasks:
			tk.done <- ErrStopped
		default:
			return
		}
	}
}
