// Package executor runs independent tasks with bounded concurrency.
package executor

import (
	"context"
	"sync"
)

// Task is one unit of work.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Outcome is the result of a task. Started is false when the context was
// cancelled before the task got a worker slot.
type Outcome[T any] struct {
	ID      string
	Result  T
	Err     error
	Started bool
}

// Run executes tasks with at most maxWorkers running at once and returns their
// outcomes in submission order. It waits for every started task to finish.
func Run[T any](ctx context.Context, maxWorkers int, tasks []Task[T]) []Outcome[T] {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	outcomes := make([]Outcome[T], len(tasks))
	var wg sync.WaitGroup

	// Create a channel to limit concurrent executions
	sem := make(chan struct{}, maxWorkers)

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			outcomes[i].ID = task.ID

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[i].Err = ctx.Err()
				return
			}
			// Both select cases may be ready; do not start work after cancellation.
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return
			}

			outcomes[i].Started = true
			outcomes[i].Result, outcomes[i].Err = task.Run(ctx)
		}(i, task)
	}

	wg.Wait()
	return outcomes
}
