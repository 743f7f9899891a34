// Package scheduler runs recurring jobs on top of robfig/cron.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

var (
	ErrJobExists        = errors.New("job already scheduled")
	ErrJobNotFound      = errors.New("job not scheduled")
	ErrInvalidPeriod    = errors.New("job interval must be positive")
	ErrSchedulerStopped = errors.New("scheduler is shut down")
)

type entry struct {
	id       cron.EntryID
	interval time.Duration

	lastRun  time.Time
	lastErr  error
	failures int
}

type Scheduler struct {
	logger  logrus.FieldLogger
	cron    *cron.Cron
	metrics Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[domain.JobKey]*entry
	stopped bool
}

// Metrics receives job outcomes.
type Metrics interface {
	JobSucceeded(key domain.JobKey)
	JobFailed(key domain.JobKey)
}

type noopMetrics struct{}

func (noopMetrics) JobSucceeded(domain.JobKey) {}
func (noopMetrics) JobFailed(domain.JobKey)    {}

func New(logger logrus.FieldLogger, metrics Metrics) *Scheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	cl := cronLogger{logger: logger}

	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		metrics: metrics,
		now:     time.Now,
		entries: make(map[domain.JobKey]*entry),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// ScheduleJob registers a job firing first after initialDelay and then every
// interval. Only MisfireFireNowKeepCount is supported.
func (s *Scheduler) ScheduleJob(
	key domain.JobKey,
	initialDelay, interval time.Duration,
	misfire domain.MisfirePolicy,
	job domain.Job,
) error {
	if interval <= 0 {
		return &domain.JobSchedulingError{Key: key, Op: "schedule", Err: ErrInvalidPeriod}
	}
	if misfire != domain.MisfireFireNowKeepCount {
		return &domain.JobSchedulingError{Key: key, Op: "schedule", Err: errors.Errorf("unsupported misfire policy %d", misfire)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return &domain.JobSchedulingError{Key: key, Op: "schedule", Err: ErrSchedulerStopped}
	}
	if _, ok := s.entries[key]; ok {
		return &domain.JobSchedulingError{Key: key, Op: "schedule", Err: ErrJobExists}
	}

	schedule := fixedRateSchedule{
		first:    s.now().Add(initialDelay),
		interval: interval,
	}

	e := &entry{interval: interval}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(key, job) }))
	s.entries[key] = e

	s.logger.WithFields(logrus.Fields{
		"job":           key.String(),
		"initial_delay": initialDelay.String(),
		"interval":      interval.String(),
	}).Debug("Scheduled job")

	return nil
}

func (s *Scheduler) DeleteJob(key domain.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return &domain.JobSchedulingError{Key: key, Op: "delete", Err: ErrJobNotFound}
	}

	s.cron.Remove(e.id)
	delete(s.entries, key)

	s.logger.WithField("job", key.String()).Debug("Deleted job")

	return nil
}

// Shutdown removes every job and waits for running ones to return.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for key, e := range s.entries {
		s.cron.Remove(e.id)
		delete(s.entries, key)
	}
	s.stopped = true
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Running jobs did not finish before shutdown deadline")
	}
}

func (s *Scheduler) Jobs() []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.JobStatus, 0, len(s.entries))

	for key, e := range s.entries {
		status := domain.JobStatus{
			Key:                 key,
			Interval:            e.interval,
			NextRun:             s.cron.Entry(e.id).Next,
			LastRun:             e.lastRun,
			ConsecutiveFailures: e.failures,
		}
		if e.lastErr != nil {
			status.LastError = e.lastErr.Error()
		}
		result = append(result, status)
	}

	return result
}

func (s *Scheduler) run(key domain.JobKey, job domain.Job) {
	ctx := appcontext.WithRuleName(context.Background(), key.RuleName)
	ctx = appcontext.WithTarget(ctx, key.JvmId, "")

	logger := appcontext.LoggerFromContext(s.logger, ctx)

	startedAt := s.now()
	err := job.Execute(ctx)

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.lastRun = startedAt
		e.lastErr = err
		if err != nil {
			e.failures++
		} else {
			e.failures = 0
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.JobFailed(key)
		logger.WithError(err).Error("Job execution failed")
		return
	}

	s.metrics.JobSucceeded(key)
	logger.WithField("duration", s.now().Sub(startedAt).String()).Debug("Job execution finished")
}

type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	result := logrus.Fields{}

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			result[k] = keysAndValues[i+1]
		}
	}

	return result
}
