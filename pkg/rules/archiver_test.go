package rules

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

var (
	shopTarget = domain.Target{JvmId: "jvm-shop", Alias: "shop", ConnectUrl: "http://shop:8778/jolokia"}
	cartTarget = domain.Target{JvmId: "jvm-cart", Alias: "cart", ConnectUrl: "http://cart:8778/jolokia"}

	archiverRule = domain.Rule{
		Name:                  "hourly",
		MatchExpression:       `true`,
		EventSpecifier:        "template=Continuous",
		ArchivalPeriodSeconds: 60,
		PreservedArchives:     2,
		MaxAgeSeconds:         -1,
		MaxSizeBytes:          -1,
		Enabled:               true,
	}
)

type archiverFixture struct {
	scheduler  *schedulerMock
	rules      *memRules
	recordings *fakeRecordings
	storage    *memStorage
	archiver   *ArchiveScheduler
}

func newArchiverFixture(targets []domain.Target, storage *memStorage, rules ...domain.Rule) *archiverFixture {
	f := &archiverFixture{
		scheduler:  &schedulerMock{},
		rules:      newMemRules(rules...),
		recordings: newFakeRecordings(),
		storage:    storage,
	}

	f.archiver = NewArchiveScheduler(
		discardLogger(),
		NewJobRegistry(),
		f.scheduler,
		f.rules,
		staticTargets(targets),
		f.recordings,
		f.storage,
		nil,
	)

	return f
}

func (f *archiverFixture) rule(t *testing.T, name string) domain.Rule {
	r, err := f.rules.FindByName(context.Background(), name)
	require.NoError(t, err)
	return r
}

func (f *archiverFixture) start(t *testing.T, rule domain.Rule, target domain.Target) domain.Recording {
	rec, err := f.recordings.StartRecording(
		context.Background(), target, domain.ReplaceAlways, domain.Template{},
		domain.RecordingOptions{Name: rule.RecordingName()}, nil,
	)
	require.NoError(t, err)
	return rec
}

func TestArchiveScheduler_Schedule(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	key := domain.JobKey{RuleName: "hourly", JvmId: shopTarget.JvmId}

	f.scheduler.
		On("ScheduleJob", key, time.Minute, time.Minute, domain.MisfireFireNowKeepCount, mock.Anything).
		Return(nil).
		Once()

	err := f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1})

	assert.NoError(t, err)
	assert.Equal(t, []domain.JobKey{key}, f.archiver.Jobs())
	f.scheduler.AssertExpectations(t)
}

func TestArchiveScheduler_Schedule_Idempotent(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	key := domain.JobKey{RuleName: "hourly", JvmId: shopTarget.JvmId}

	f.scheduler.On("ScheduleJob", key, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1}))
	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 2}))

	f.scheduler.AssertNumberOfCalls(t, "ScheduleJob", 1)
	assert.Len(t, f.archiver.Jobs(), 1)
	assert.Equal(t, int64(2), f.archiver.jobs[key].currentRecordingId())
}

func TestArchiveScheduler_Schedule_FailureLeavesNoEntry(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")

	f.scheduler.On("ScheduleJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("timer failure"))

	err := f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1})

	assert.Error(t, err)
	assert.Empty(t, f.archiver.Jobs())
}

func TestArchiveScheduler_Cancel_RemovesEntryOnSchedulerFailure(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	key := domain.JobKey{RuleName: "hourly", JvmId: shopTarget.JvmId}

	f.scheduler.On("ScheduleJob", key, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.scheduler.On("DeleteJob", key).Return(errors.New("timer failure"))

	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1}))

	err := f.archiver.Cancel(key)

	assert.Error(t, err)
	assert.Empty(t, f.archiver.Jobs())

	// the pair can be scheduled again afterwards
	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 2}))
	f.scheduler.AssertNumberOfCalls(t, "ScheduleJob", 2)
}

func TestArchiveScheduler_CancelTarget(t *testing.T) {
	other := archiverRule
	other.Name = "daily"

	f := newArchiverFixture([]domain.Target{shopTarget, cartTarget}, newMemStorage(), archiverRule, other)
	hourly, daily := f.rule(t, "hourly"), f.rule(t, "daily")

	f.scheduler.On("ScheduleJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.scheduler.On("DeleteJob", mock.Anything).Return(nil)

	require.NoError(t, f.archiver.Schedule(context.Background(), hourly, shopTarget, domain.Recording{Id: 1}))
	require.NoError(t, f.archiver.Schedule(context.Background(), daily, shopTarget, domain.Recording{Id: 2}))
	require.NoError(t, f.archiver.Schedule(context.Background(), hourly, cartTarget, domain.Recording{Id: 3}))

	err := f.archiver.CancelTarget(shopTarget.JvmId)

	assert.NoError(t, err)
	assert.Equal(t, []domain.JobKey{{RuleName: "hourly", JvmId: cartTarget.JvmId}}, f.archiver.Jobs())
	f.scheduler.AssertNumberOfCalls(t, "DeleteJob", 2)
}

func TestArchiveScheduler_CancelRule(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget, cartTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")

	f.scheduler.On("ScheduleJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.scheduler.On("DeleteJob", mock.Anything).Return(nil)

	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1}))
	require.NoError(t, f.archiver.Schedule(context.Background(), rule, cartTarget, domain.Recording{Id: 2}))

	assert.NoError(t, f.archiver.CancelRule("hourly"))
	assert.Empty(t, f.archiver.Jobs())
}

func TestArchiveScheduler_Shutdown(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")

	f.scheduler.On("ScheduleJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.scheduler.On("Shutdown", mock.Anything).Return(nil)

	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1}))

	assert.NoError(t, f.archiver.Shutdown(context.Background()))
	assert.Empty(t, f.archiver.Jobs())
}

func TestArchiveScheduler_Schedule_SkipsDisabledRule(t *testing.T) {
	disabled := archiverRule
	disabled.Enabled = false

	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), disabled)
	rule := f.rule(t, "hourly")

	// the caller still holds the state it loaded before the rule was disabled
	rule.Enabled = true

	assert.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1}))
	assert.Empty(t, f.archiver.Jobs())
	f.scheduler.AssertNotCalled(t, "ScheduleJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiveScheduler_Schedule_SkipsDeletedRule(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage())

	assert.NoError(t, f.archiver.Schedule(context.Background(), archiverRule, shopTarget, domain.Recording{Id: 1}))
	assert.Empty(t, f.archiver.Jobs())
}

func TestArchiveScheduler_Schedule_AfterShutdown(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	f.scheduler.On("Shutdown", mock.Anything).Return(nil)

	require.NoError(t, f.archiver.Shutdown(context.Background()))

	err := f.archiver.Schedule(context.Background(), rule, shopTarget, domain.Recording{Id: 1})

	var schedulingErr *domain.JobSchedulingError
	assert.ErrorAs(t, err, &schedulingErr)
	assert.Empty(t, f.archiver.Jobs())
}

// region archiveJob
func (f *archiverFixture) scheduledJob(t *testing.T, rule domain.Rule, target domain.Target, recording domain.Recording) *archiveJob {
	f.scheduler.On("ScheduleJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, f.archiver.Schedule(context.Background(), rule, target, recording))

	job, ok := f.archiver.jobs[domain.JobKey{RuleName: rule.Name, JvmId: target.JvmId}]
	require.True(t, ok)

	return job
}

func TestArchiveJob_KeepsPreservedArchives(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, f.start(t, rule, shopTarget))

	var archived []string
	for i := 0; i < 3; i++ {
		require.NoError(t, job.Execute(context.Background()))
		archived = append(archived, job.previous[len(job.previous)-1])
	}

	assert.Equal(t, archived[1:], f.storage.filenames(shopTarget.JvmId))
	assert.Equal(t, archived[1:], job.previous)
}

func TestArchiveJob_RecoversPreviousArchives(t *testing.T) {
	name := func(hour int) string {
		return domain.ArchiveFilename{
			TargetTag:     "shop",
			RecordingName: "auto_hourly",
			Timestamp:     archiveEpoch.Add(-time.Duration(hour) * time.Hour),
		}.String()
	}
	existing := func(hour int) domain.ArchivedRecording {
		return domain.ArchivedRecording{
			JvmId:        shopTarget.JvmId,
			Filename:     name(hour),
			LastModified: archiveEpoch.Add(-time.Duration(hour) * time.Hour),
		}
	}

	foreign := domain.ArchivedRecording{
		JvmId:        shopTarget.JvmId,
		Filename:     "shop_auto_other_20230101T000000Z.jfr",
		LastModified: archiveEpoch.Add(-100 * time.Hour),
	}

	storage := newMemStorage(existing(3), existing(2), existing(1), foreign)
	f := newArchiverFixture([]domain.Target{shopTarget}, storage, archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, f.start(t, rule, shopTarget))

	require.NoError(t, job.Execute(context.Background()))

	files := f.storage.filenames(shopTarget.JvmId)
	assert.Len(t, files, 3)
	assert.Contains(t, files, foreign.Filename)
	assert.Contains(t, files, name(1))
	assert.NotContains(t, files, name(2))
	assert.NotContains(t, files, name(3))
}

func TestArchiveJob_DeleteFailureKeepsEntry(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, f.start(t, rule, shopTarget))

	require.NoError(t, job.Execute(context.Background()))
	require.NoError(t, job.Execute(context.Background()))

	f.storage.deleteErr = errors.New("storage down")

	assert.Error(t, job.Execute(context.Background()))
	assert.Len(t, job.previous, 2)
}

func TestArchiveJob_RecordingGone(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, domain.Recording{Id: 42})

	err := job.Execute(context.Background())

	var consistencyErr *domain.ConsistencyError
	assert.ErrorAs(t, err, &consistencyErr)
	assert.Empty(t, f.storage.filenames(shopTarget.JvmId))
}

func TestArchiveJob_TargetGone(t *testing.T) {
	f := newArchiverFixture(nil, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, domain.Recording{Id: 1})

	err := job.Execute(context.Background())

	var consistencyErr *domain.ConsistencyError
	assert.ErrorAs(t, err, &consistencyErr)
}

func TestArchiveJob_FollowsReactivatedRecording(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, f.start(t, rule, shopTarget))

	// a restart replaces the recording, the job must follow it
	replacement := f.start(t, rule, shopTarget)
	require.NoError(t, f.archiver.Schedule(context.Background(), rule, shopTarget, replacement))

	assert.NoError(t, job.Execute(context.Background()))
}

func TestArchiveJob_DisabledRuleRetiresJob(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, f.start(t, rule, shopTarget))
	f.scheduler.On("DeleteJob", job.key).Return(nil).Once()

	disabled := rule
	disabled.Enabled = false
	require.NoError(t, f.rules.Update(context.Background(), disabled))

	assert.NoError(t, job.Execute(context.Background()))
	assert.Empty(t, f.archiver.Jobs())
	assert.Empty(t, f.storage.filenames(shopTarget.JvmId))
	f.scheduler.AssertExpectations(t)
}

func TestArchiveJob_DeletedRuleRetiresJob(t *testing.T) {
	f := newArchiverFixture([]domain.Target{shopTarget}, newMemStorage(), archiverRule)
	rule := f.rule(t, "hourly")
	job := f.scheduledJob(t, rule, shopTarget, f.start(t, rule, shopTarget))
	f.scheduler.On("DeleteJob", job.key).Return(nil).Once()

	require.NoError(t, f.rules.Delete(context.Background(), rule))

	assert.NoError(t, job.Execute(context.Background()))
	assert.Empty(t, f.archiver.Jobs())
	assert.Empty(t, f.storage.filenames(shopTarget.JvmId))
	f.scheduler.AssertExpectations(t)
}

// endregion
