package domain

import (
	"regexp"
	"time"

	"github.com/pkg/errors"
)

const recordingNamePrefix = "auto_"

var ruleNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// Rule is a persisted automation rule. Rules whose match expression applies to
// a target get a recording started on it, and archiver rules additionally get
// a recurring archival job per matched target.
type Rule struct {
	Id              int64  `mapstructure:"-" json:"id"`
	Name            string `mapstructure:"name" json:"name"`
	Description     string `mapstructure:"description" json:"description"`
	MatchExpression string `mapstructure:"match_expression" json:"matchExpression"`
	EventSpecifier  string `mapstructure:"event_specifier" json:"eventSpecifier"`

	ArchivalPeriodSeconds int `mapstructure:"archival_period_seconds" json:"archivalPeriodSeconds"`
	InitialDelaySeconds   int `mapstructure:"initial_delay_seconds" json:"initialDelaySeconds"`
	PreservedArchives     int `mapstructure:"preserved_archives" json:"preservedArchives"`

	// -1 means unbounded
	MaxAgeSeconds int   `mapstructure:"max_age_seconds" json:"maxAgeSeconds"`
	MaxSizeBytes  int64 `mapstructure:"max_size_bytes" json:"maxSizeBytes"`

	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// RecordingName is the name of the recording the rule starts on every
// matched target. Archived files of the rule are recognized by it too.
func (r Rule) RecordingName() string {
	return recordingNamePrefix + r.Name
}

func (r Rule) IsArchiver() bool {
	return r.PreservedArchives > 0 && r.ArchivalPeriodSeconds > 0
}

// InitialDelay is the delay before the first archival tick. An archiver never
// fires at time zero unless an explicit initial delay is configured.
func (r Rule) InitialDelay() time.Duration {
	if r.InitialDelaySeconds > 0 {
		return time.Duration(r.InitialDelaySeconds) * time.Second
	}
	return r.ArchivalPeriod()
}

func (r Rule) ArchivalPeriod() time.Duration {
	return time.Duration(r.ArchivalPeriodSeconds) * time.Second
}

func (r Rule) Validate() error {
	if !ruleNameRegex.MatchString(r.Name) {
		return errors.Wrapf(ErrInvalidRule, "name %q must match %s", r.Name, ruleNameRegex.String())
	}
	if r.MatchExpression == "" {
		return errors.Wrap(ErrInvalidRule, "match expression must not be empty")
	}
	if r.EventSpecifier == "" {
		return errors.Wrap(ErrInvalidRule, "event specifier must not be empty")
	}
	if r.ArchivalPeriodSeconds < 0 || r.InitialDelaySeconds < 0 || r.PreservedArchives < 0 {
		return errors.Wrap(ErrInvalidRule, "archival settings must not be negative")
	}
	if r.MaxAgeSeconds < -1 || r.MaxSizeBytes < -1 {
		return errors.Wrap(ErrInvalidRule, "retention bounds must be -1 or greater")
	}
	return nil
}

// RulePatch holds the mutable fields of a rule. Nil fields are left untouched.
type RulePatch struct {
	Description     *string `json:"description"`
	MatchExpression *string `json:"matchExpression"`
	EventSpecifier  *string `json:"eventSpecifier"`

	ArchivalPeriodSeconds *int `json:"archivalPeriodSeconds"`
	InitialDelaySeconds   *int `json:"initialDelaySeconds"`
	PreservedArchives     *int `json:"preservedArchives"`

	MaxAgeSeconds *int   `json:"maxAgeSeconds"`
	MaxSizeBytes  *int64 `json:"maxSizeBytes"`

	Enabled *bool `json:"enabled"`
}

func (p RulePatch) Apply(rule Rule) Rule {
	if p.Description != nil {
		rule.Description = *p.Description
	}
	if p.MatchExpression != nil {
		rule.MatchExpression = *p.MatchExpression
	}
	if p.EventSpecifier != nil {
		rule.EventSpecifier = *p.EventSpecifier
	}
	if p.ArchivalPeriodSeconds != nil {
		rule.ArchivalPeriodSeconds = *p.ArchivalPeriodSeconds
	}
	if p.InitialDelaySeconds != nil {
		rule.InitialDelaySeconds = *p.InitialDelaySeconds
	}
	if p.PreservedArchives != nil {
		rule.PreservedArchives = *p.PreservedArchives
	}
	if p.MaxAgeSeconds != nil {
		rule.MaxAgeSeconds = *p.MaxAgeSeconds
	}
	if p.MaxSizeBytes != nil {
		rule.MaxSizeBytes = *p.MaxSizeBytes
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
	return rule
}
