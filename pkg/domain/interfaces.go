package domain

import (
	"context"
	"time"
)

type RuleRepository interface {
	Create(context.Context, Rule) (Rule, error)
	Update(context.Context, Rule) error
	Delete(context.Context, Rule) error
	FindById(context.Context, int64) (Rule, error)
	FindByName(context.Context, string) (Rule, error)
	FindAll(context.Context) ([]Rule, error)
	FindEnabled(context.Context) ([]Rule, error)
}

// TargetSource gives access to the currently known targets.
type TargetSource interface {
	Targets() []Target
	Target(jvmId string) (Target, bool)
}

type EventBus interface {
	Publish(topic string, event interface{})
}

type RecordingLifecycle interface {
	StartRecording(ctx context.Context, target Target, policy ReplacePolicy, template Template, options RecordingOptions, labels map[string]string) (Recording, error)
	StopRecording(ctx context.Context, target Target, recording Recording) error
	// GetActiveRecording returns ErrRecordingNotFound when no active recording matches.
	GetActiveRecording(ctx context.Context, target Target, predicate func(Recording) bool) (Recording, error)
}

type TemplateResolver interface {
	ParseEventSpecifier(specifier string) (name string, typ TemplateType, err error)
	GetPreferredTemplate(ctx context.Context, target Target, name string, typ TemplateType) (Template, error)
}

type ArchiveStorage interface {
	ArchiveRecording(ctx context.Context, target Target, recording Recording, maxAge time.Duration, maxSize int64) (string, error)
	DeleteArchivedRecording(ctx context.Context, jvmId string, filename string) error
	ListArchivedRecordings(ctx context.Context) ([]ArchivedRecording, error)
}

type JobScheduler interface {
	ScheduleJob(key JobKey, initialDelay, interval time.Duration, misfire MisfirePolicy, job Job) error
	DeleteJob(key JobKey) error
	Shutdown(ctx context.Context) error
}

// ExpressionEvaluator decides whether a match expression applies to a target.
type ExpressionEvaluator interface {
	Validate(expression string) error
	Applies(expression string, target Target) (bool, error)
	MatchedTargets(expression string) ([]Target, error)
}
