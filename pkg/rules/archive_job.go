package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

// archiveJob copies the active recording of a rule on one target into archive
// storage and keeps at most PreservedArchives archives of the pair. Ticks of
// a job never overlap, so previous is only touched by one goroutine at a time.
type archiveJob struct {
	s *ArchiveScheduler

	key    domain.JobKey
	ruleId int64

	mu          sync.Mutex
	recordingId int64

	initialized bool
	previous    []string
}

func (j *archiveJob) setRecordingId(id int64) {
	j.mu.Lock()
	j.recordingId = id
	j.mu.Unlock()
}

func (j *archiveJob) currentRecordingId() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.recordingId
}

func (j *archiveJob) Execute(ctx context.Context) error {
	rule, err := j.s.rules.FindById(ctx, j.ruleId)
	if errors.Cause(err) == domain.ErrRuleNotFound {
		return j.retire(ctx, "rule no longer exists")
	}
	if err != nil {
		return errors.Wrap(err, "Unable to load rule")
	}
	if !rule.Enabled || !rule.IsArchiver() {
		return j.retire(ctx, "rule no longer archives")
	}

	target, ok := j.s.targets.Target(j.key.JvmId)
	if !ok {
		return &domain.ConsistencyError{Key: j.key, Reason: "target is no longer known"}
	}

	ctx = appcontext.WithTarget(ctx, target.JvmId, target.ConnectUrl)
	logger := appcontext.LoggerFromContext(j.s.logger, ctx)

	recordingId := j.currentRecordingId()
	recording, err := j.s.recordings.GetActiveRecording(ctx, target, func(r domain.Recording) bool {
		return r.Id == recordingId
	})
	if errors.Cause(err) == domain.ErrRecordingNotFound {
		return &domain.ConsistencyError{Key: j.key, Reason: "active recording no longer exists"}
	}
	if err != nil {
		return errors.Wrap(err, "Unable to look up active recording")
	}

	if !j.initialized {
		if err := j.loadPrevious(ctx, target, rule); err != nil {
			return err
		}
	}

	for len(j.previous) > 0 && len(j.previous) >= rule.PreservedArchives {
		oldest := j.previous[0]

		if err := j.s.storage.DeleteArchivedRecording(ctx, target.JvmId, oldest); err != nil {
			return errors.Wrapf(err, "Unable to delete archived recording %s", oldest)
		}

		j.previous = j.previous[1:]
		j.s.metrics.ArchivePruned(rule.Name)
		logger.WithField("filename", oldest).Info("Pruned archived recording")
	}

	filename, err := j.s.storage.ArchiveRecording(ctx, target, recording, maxAge(rule), maxSize(rule))
	j.s.metrics.ArchiveFinished(rule.Name, err)
	if err != nil {
		return errors.Wrap(err, "Unable to archive recording")
	}

	j.previous = append(j.previous, filename)
	logger.WithField("filename", filename).Info("Archived recording")

	return nil
}

// retire cancels the job when the rule it archives for is gone or disabled,
// which happens when the cancellation raced with the job being scheduled.
func (j *archiveJob) retire(ctx context.Context, reason string) error {
	appcontext.LoggerFromContext(j.s.logger, ctx).WithField("reason", reason).Warn("Retiring archival job")

	if err := j.s.Cancel(j.key); err != nil {
		return errors.Wrap(err, "Unable to retire archival job")
	}
	return nil
}

// loadPrevious rebuilds the FIFO from archives left by earlier runs of the
// same rule on the same target, oldest first.
func (j *archiveJob) loadPrevious(ctx context.Context, target domain.Target, rule domain.Rule) error {
	archived, err := j.s.storage.ListArchivedRecordings(ctx)
	if err != nil {
		return errors.Wrap(err, "Unable to list archived recordings")
	}

	var owned []domain.ArchivedRecording
	for _, a := range archived {
		if a.JvmId != target.JvmId {
			continue
		}

		parsed, ok := domain.ParseArchiveFilename(a.Filename)
		if !ok || parsed.RecordingName != rule.RecordingName() {
			continue
		}

		owned = append(owned, a)
	}

	sort.SliceStable(owned, func(i, k int) bool {
		if !owned[i].LastModified.Equal(owned[k].LastModified) {
			return owned[i].LastModified.Before(owned[k].LastModified)
		}
		return owned[i].Filename < owned[k].Filename
	})

	j.previous = j.previous[:0]
	for _, a := range owned {
		j.previous = append(j.previous, a.Filename)
	}
	j.initialized = true

	return nil
}

func maxAge(rule domain.Rule) time.Duration {
	if rule.MaxAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(rule.MaxAgeSeconds) * time.Second
}

func maxSize(rule domain.Rule) int64 {
	if rule.MaxSizeBytes <= 0 {
		return 0
	}
	return rule.MaxSizeBytes
}
