package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrRuleExists        = errors.New("rule with this name already exists")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrRecordingNotFound = errors.New("recording not found")
	ErrTemplateNotFound  = errors.New("event template not found")
	ErrTargetNotFound    = errors.New("target not found")
)

// The typed errors below implement Unwrap only, so errors.Cause stops at
// them while errors.Is and errors.As still reach the wrapped error.

// EvaluationError is returned when a match expression cannot be compiled or
// cannot be evaluated against a particular target.
type EvaluationError struct {
	Expression string
	JvmId      string
	Err        error
}

func (e *EvaluationError) Error() string {
	if e.JvmId == "" {
		return fmt.Sprintf("unable to evaluate %q: %v", e.Expression, e.Err)
	}
	return fmt.Sprintf("unable to evaluate %q against %s: %v", e.Expression, e.JvmId, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ConnectionError means the remote target was unreachable or did not answer
// within the connection timeout.
type ConnectionError struct {
	ConnectUrl string
	Op         string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.ConnectUrl, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// JobSchedulingError is a failure to register or cancel a timer.
type JobSchedulingError struct {
	Key JobKey
	Op  string
	Err error
}

func (e *JobSchedulingError) Error() string {
	return fmt.Sprintf("unable to %s job %s: %v", e.Op, e.Key, e.Err)
}

func (e *JobSchedulingError) Unwrap() error { return e.Err }

// ConsistencyError means the state a scheduled job refers to is gone, e.g.
// its recording was closed behind its back.
type ConsistencyError struct {
	Key    JobKey
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("job %s is inconsistent: %s", e.Key, e.Reason)
}
