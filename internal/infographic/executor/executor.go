// Package executor runs a batch of independent tasks with a concurrency cap.
package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the cap used when a non-positive limit is given.
const DefaultConcurrency = 2

// Kind tells what happened to a task.
type Kind int

const (
	// Dispatched is reported when a task starts running.
	Dispatched Kind = iota
	// Completed carries the task's result or error.
	Completed
	// Skipped is reported for tasks never started because ctx ended.
	Skipped
)

func (k Kind) String() string {
	switch k {
	case Dispatched:
		return "dispatched"
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Task is one unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Update reports progress for the task at Index.
type Update[T any] struct {
	Index int
	Kind  Kind
	Value T
	Err   error
}

// Run starts tasks with at most limit running at once and returns a channel
// of updates in the order they happen. Completed updates arrive in completion
// order, not submission order. A failing task does not affect its siblings.
//
// Once ctx is done no further task is dispatched and the remaining ones are
// reported as Skipped. Tasks already running are not interrupted: they get a
// context that keeps ctx's values but not its cancellation.
//
// The channel is closed after every task has been reported exactly once as
// Completed or Skipped. It is buffered for the whole batch, so an abandoned
// reader never blocks the workers.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) <-chan Update[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	out := make(chan Update[T], 2*len(tasks))
	if len(tasks) == 0 {
		close(out)
		return out
	}

	sem := semaphore.NewWeighted(int64(limit))
	detached := context.WithoutCancel(ctx)

	go func() {
		var wg sync.WaitGroup
		defer close(out)

		for i, task := range tasks {
			if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
				for j := i; j < len(tasks); j++ {
					out <- Update[T]{Index: j, Kind: Skipped, Err: context.Cause(ctx)}
				}
				break
			}

			out <- Update[T]{Index: i, Kind: Dispatched}
			wg.Add(1)
			go func(i int, task Task[T]) {
				defer wg.Done()
				defer sem.Release(1)
				v, err := task(detached)
				out <- Update[T]{Index: i, Kind: Completed, Value: v, Err: err}
			}(i, task)
		}

		wg.Wait()
	}()

	return out
}
