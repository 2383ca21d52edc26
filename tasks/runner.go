// Package tasks runs units of work asynchronously with bounded retry,
// covering the at-least-once contract membership-mutation tasks rely on.
package tasks

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
)

// Runner executes submitted functions in background goroutines, retrying
// failures with exponential backoff up to a bounded attempt count. Pairing
// and delivery work does not go through the Runner: those encode partial
// progress in persisted batch status and are repaired by the retry sweep
// instead, so re-running them would re-attempt already-delivered pairs.
type Runner struct {
	log         *zap.SugaredLogger
	maxAttempts int
	baseDelay   time.Duration
	wg          sync.WaitGroup
}

// NewRunner creates a Runner with default retry policy.
func NewRunner(log *zap.SugaredLogger) *Runner {
	return &Runner{
		log:         log,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

// Go schedules fn to run asynchronously. Each failed attempt doubles the
// delay before the next one; the final failure is logged and dropped.
func (r *Runner) Go(name string, fn func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		delay := r.baseDelay
		for attempt := 1; ; attempt++ {
			err := fn()
			if err == nil {
				return
			}
			if attempt >= r.maxAttempts {
				r.log.Errorw("task failed permanently",
					"task", name, "attempts", attempt, "error", err)
				return
			}

			r.log.Warnw("task failed, retrying",
				"task", name, "attempt", attempt, "error", err)
			time.Sleep(delay)
			delay *= 2
		}
	}()
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
