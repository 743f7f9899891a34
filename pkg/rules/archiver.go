package rules

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

var ErrArchiverStopped = errors.New("archive scheduler is stopped")

// ArchiveScheduler keeps one recurring archival job per (rule, target) pair
// of archiver rules.
type ArchiveScheduler struct {
	logger logrus.FieldLogger

	registry  *JobRegistry
	scheduler domain.JobScheduler

	rules      domain.RuleRepository
	targets    domain.TargetSource
	recordings domain.RecordingLifecycle
	storage    domain.ArchiveStorage
	metrics    Metrics

	mu      sync.Mutex
	jobs    map[domain.JobKey]*archiveJob
	stopped bool
}

func NewArchiveScheduler(
	logger logrus.FieldLogger,
	registry *JobRegistry,
	scheduler domain.JobScheduler,
	rules domain.RuleRepository,
	targets domain.TargetSource,
	recordings domain.RecordingLifecycle,
	storage domain.ArchiveStorage,
	metrics Metrics,
) *ArchiveScheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &ArchiveScheduler{
		logger:     logger,
		registry:   registry,
		scheduler:  scheduler,
		rules:      rules,
		targets:    targets,
		recordings: recordings,
		storage:    storage,
		metrics:    metrics,
		jobs:       make(map[domain.JobKey]*archiveJob),
	}
}

// Schedule registers the archival job of the pair unless one already exists.
// An existing job is pointed at the new recording instead of being duplicated.
//
// The rule is reloaded under the lock cancellation takes, so an activation
// finishing after the rule was disabled or deleted schedules nothing: either
// the reload sees the change, or the cancellation that follows it sees the job.
func (s *ArchiveScheduler) Schedule(ctx context.Context, rule domain.Rule, target domain.Target, recording domain.Recording) error {
	key := domain.JobKey{RuleName: rule.Name, JvmId: target.JvmId}
	logger := s.logger.WithField("job", key.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return &domain.JobSchedulingError{Key: key, Op: "schedule", Err: ErrArchiverStopped}
	}

	current, err := s.rules.FindByName(ctx, rule.Name)
	if errors.Cause(err) == domain.ErrRuleNotFound {
		logger.Debug("Not scheduling archival job of deleted rule")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "Unable to reload rule")
	}
	if !current.Enabled || !current.IsArchiver() {
		logger.Debug("Not scheduling archival job of rule that no longer archives")
		return nil
	}

	if !s.registry.AddIfAbsent(key) {
		if job, ok := s.jobs[key]; ok {
			job.setRecordingId(recording.Id)
		}
		logger.Debug("Archival job already scheduled")
		return nil
	}

	job := &archiveJob{
		s:           s,
		key:         key,
		ruleId:      current.Id,
		recordingId: recording.Id,
	}

	err = s.scheduler.ScheduleJob(key, current.InitialDelay(), current.ArchivalPeriod(), domain.MisfireFireNowKeepCount, job)
	if err != nil {
		s.registry.Remove(key)
		logger.WithError(err).Error("Unable to schedule archival job")
		return err
	}

	s.jobs[key] = job
	s.metrics.ScheduledJobs(s.registry.Len())

	logger.WithFields(logrus.Fields{
		"initial_delay": current.InitialDelay().String(),
		"period":        current.ArchivalPeriod().String(),
		"preserved":     current.PreservedArchives,
	}).Info("Scheduled archival job")

	return nil
}

// Cancel removes the job from the scheduler. The bookkeeping entry is dropped
// even when the scheduler fails, otherwise the job could never be cancelled
// or rescheduled again.
func (s *ArchiveScheduler) Cancel(key domain.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancelLocked(key)
}

func (s *ArchiveScheduler) cancelLocked(key domain.JobKey) (err error) {
	defer func() {
		s.registry.Remove(key)
		delete(s.jobs, key)
		s.metrics.ScheduledJobs(s.registry.Len())
	}()

	err = s.scheduler.DeleteJob(key)
	if err != nil {
		s.logger.WithError(err).WithField("job", key.String()).Error("Unable to delete archival job")
		return err
	}

	s.logger.WithField("job", key.String()).Info("Cancelled archival job")

	return nil
}

func (s *ArchiveScheduler) CancelRule(ruleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result error
	for _, key := range s.registry.ByRule(ruleName) {
		result = multierr.Append(result, s.cancelLocked(key))
	}
	return result
}

func (s *ArchiveScheduler) CancelTarget(jvmId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result error
	for _, key := range s.registry.ByTarget(jvmId) {
		result = multierr.Append(result, s.cancelLocked(key))
	}
	return result
}

// Shutdown stops the underlying scheduler and forgets every job. The lock is
// released before waiting for running jobs since a job may cancel itself.
func (s *ArchiveScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for _, key := range s.registry.All() {
		s.registry.Remove(key)
	}
	s.jobs = make(map[domain.JobKey]*archiveJob)
	s.metrics.ScheduledJobs(0)
	s.mu.Unlock()

	return s.scheduler.Shutdown(ctx)
}

func (s *ArchiveScheduler) Jobs() []domain.JobKey {
	return s.registry.All()
}
