// Package schedule drives the periodic triggers: pairing rounds, failed-intro
// retries, mid-point reminders, and membership reconciliation. Every trigger
// is idempotent, so an extra firing finds no eligible work.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"smores/bot"
)

const (
	sweepInterval     = time.Hour
	reconcileInterval = 24 * time.Hour
)

// Scheduler owns the ticker goroutines for the bot's periodic work.
type Scheduler struct {
	bot  *bot.Bot
	log  *zap.SugaredLogger
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a stopped Scheduler for the given bot.
func New(b *bot.Bot, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		bot:  b,
		log:  log,
		done: make(chan struct{}),
	}
}

// Start launches one goroutine per trigger.
func (s *Scheduler) Start() {
	s.every("match-pairs", sweepInterval, s.bot.MatchPairsPeriodic)
	s.every("send-failed-intros", sweepInterval, s.bot.RetryFailedIntros)
	s.every("send-midpoint-reminder", sweepInterval, s.bot.SendMidpointReminders)
	s.every("reconcile-members", reconcileInterval, s.bot.ReconcileMembers)
}

// Stop shuts the triggers down and waits for in-progress work to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
	s.bot.Wait()
}

// every runs fn on a fixed cadence until the scheduler stops. Each trigger
// runs its work to completion before the next tick is considered, so a
// trigger never overlaps itself.
func (s *Scheduler) every(
	name string,
	interval time.Duration,
	fn func(context.Context) error,
) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				s.log.Infow("stopped trigger", "trigger", name)
				return
			case <-ticker.C:
				if err := fn(context.Background()); err != nil {
					s.log.Errorw("trigger failed", "trigger", name, "error", err)
				}
			}
		}
	}()
}
