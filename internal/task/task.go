// Package task provides the asynchronous primitives platform services hand back
// to callers: single-completion tasks and cooperative cancellation tokens.
package task

import (
	"errors"
	"sync"
)

// ErrCanceled is the error a task completes with when its token was cancelled.
var ErrCanceled = errors.New("task: canceled")

// Task is the pending result of an asynchronous platform call.
// It completes exactly once; listeners registered after completion run immediately.
type Task[T any] struct {
	mu        sync.Mutex
	done      bool
	value     T
	err       error
	listeners []func(T, error)
}

// Completer is the producing side of a Task.
type Completer[T any] struct {
	task *Task[T]
}

// New returns an incomplete task and its completer.
func New[T any]() (*Task[T], *Completer[T]) {
	t := &Task[T]{}
	return t, &Completer[T]{task: t}
}

// Completed returns a task that has already finished with value and err.
func Completed[T any](value T, err error) *Task[T] {
	t, c := New[T]()
	c.Complete(value, err)
	return t
}

// Complete finishes the task. Only the first call has any effect; it
// reports whether this call completed the task.
func (c *Completer[T]) Complete(value T, err error) bool {
	t := c.task
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return false
	}
	t.done = true
	t.value = value
	t.err = err
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(value, err)
	}
	return true
}

// OnComplete registers fn to run once the task completes.
// Listeners run on the goroutine that completes the task.
func (t *Task[T]) OnComplete(fn func(T, error)) {
	t.mu.Lock()
	if !t.done {
		t.listeners = append(t.listeners, fn)
		t.mu.Unlock()
		return
	}
	value, err := t.value, t.err
	t.mu.Unlock()
	fn(value, err)
}

// IsComplete reports whether the task has finished.
func (t *Task[T]) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Result returns the outcome of a completed task. ok is false while pending.
func (t *Task[T]) Result() (value T, err error, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.err, t.done
}
