package domain

import (
	"context"
	"time"
)

// JobKey identifies a scheduled archival job. There is at most one job per
// (rule, target) pair.
type JobKey struct {
	RuleName string `json:"ruleName"`
	JvmId    string `json:"jvmId"`
}

func (k JobKey) String() string {
	return k.RuleName + "/" + k.JvmId
}

type MisfirePolicy int

const (
	// Fire once as soon as possible after a missed tick and keep the original
	// schedule; missed ticks are not replayed.
	MisfireFireNowKeepCount MisfirePolicy = iota
)

type Job interface {
	Execute(ctx context.Context) error
}

type JobFunc func(ctx context.Context) error

func (f JobFunc) Execute(ctx context.Context) error { return f(ctx) }

// JobStatus is the scheduler-side view of a job.
type JobStatus struct {
	Key                 JobKey        `json:"key"`
	Interval            time.Duration `json:"interval"`
	NextRun             time.Time     `json:"nextRun"`
	LastRun             time.Time     `json:"lastRun"`
	LastError           string        `json:"lastError,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
}
