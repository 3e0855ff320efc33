package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/authapi/pkg/observability"
)

// Job is a unit of scheduled work
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	logger  *observability.Logger
	timeout time.Duration
}

// NewScheduler creates a scheduler. Each run gets its own context bounded by
// timeout; 0 means one minute.
func NewScheduler(logger *observability.Logger, timeout time.Duration) *Scheduler {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		timeout: timeout,
	}
}

// Add schedules job under name. spec uses the standard five field syntax or
// descriptors such as "@every 1m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.logger.WithFields(map[string]interface{}{"job": name, "schedule": spec}).Info("job scheduled")
	return nil
}

// wrap bounds a run with the timeout and logs its outcome
func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		logger := s.logger.WithField("job", name)
		defer observability.RecoverPanic(logger, name)

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		ctx, span := observability.StartSpan(ctx, "job."+name)
		defer span.End()

		start := time.Now()
		if err := job(observability.WithLogger(ctx, logger)); err != nil {
			logger.WithError(err).Error("job failed")
			return
		}
		logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("job completed")
	}
}

// Len returns the number of scheduled jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
