package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var ErrNilResult = errors.New("background task returned nil")

// SafeBackgroundTask runs a blocking call off the actor goroutine, with
// panic and timeout protection, and sends the outcome back as a message.
// A failed task is dropped unless Recover turns the error into a value.
type SafeBackgroundTask[T any] struct {
	root    *actor.RootContext
	fn      func() (*T, error)
	timeout time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		root: ctx.ActorSystem().Root,
		fn:   fn,
	}
}

// WithTimeout bounds the task; zero means no bound.
func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = timeout
	return t
}

func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeToAsync runs the task on its own goroutine and sends the result to
// pid, leaving the actor free to process other messages.
func (t *SafeBackgroundTask[T]) PipeToAsync(pid *actor.PID) {
	go func() {
		if value, ok := t.run(); ok {
			t.root.Send(pid, value)
		}
	}()
}

func (t *SafeBackgroundTask[T]) run() (T, bool) {
	bg := io.Map(io.Eval(t.fn), func(a *T) T {
		if a == nil {
			panic(ErrNilResult)
		}
		return *a
	})
	if t.timeout > 0 {
		bg = io.WithTimeout[T](t.timeout)(bg)
	}
	result := io.RunSync(bg)
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover == nil {
		var zero T
		return zero, false
	}
	return t.recover(result.Error), true
}
