package rules

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/worker"
)

const (
	LabelRule         = "rule"
	LabelTemplateName = "template.name"
	LabelTemplateType = "template.type"
)

type submitter interface {
	Submit(worker.Task) error
}

// Coordinator reacts to rule and discovery events: it starts the recording of
// every enabled rule on every target its expression matches, and keeps the
// archival jobs in line with rule and target lifecycles.
//
// Handlers only evaluate expressions and touch in-memory bookkeeping; remote
// work is submitted to the worker pool so event delivery is never blocked by
// a slow target.
type Coordinator struct {
	logger logrus.FieldLogger

	rules      domain.RuleRepository
	evaluator  domain.ExpressionEvaluator
	recordings domain.RecordingLifecycle
	templates  domain.TemplateResolver
	archiver   *ArchiveScheduler
	pool       submitter
	metrics    Metrics

	// bounds every remote operation of one activation
	timeout time.Duration
}

func NewCoordinator(
	logger logrus.FieldLogger,
	rules domain.RuleRepository,
	evaluator domain.ExpressionEvaluator,
	recordings domain.RecordingLifecycle,
	templates domain.TemplateResolver,
	archiver *ArchiveScheduler,
	pool submitter,
	metrics Metrics,
	timeout time.Duration,
) *Coordinator {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Coordinator{
		logger:     logger,
		rules:      rules,
		evaluator:  evaluator,
		recordings: recordings,
		templates:  templates,
		archiver:   archiver,
		pool:       pool,
		metrics:    metrics,
		timeout:    timeout,
	}
}

func (c *Coordinator) HandleRuleEvent(event interface{}) {
	ev, ok := event.(domain.RuleEvent)
	if !ok {
		return
	}

	rule := ev.Rule
	logger := c.logger.WithFields(logrus.Fields{"rule": rule.Name, "category": string(ev.Category)})
	logger.Debug("Handling rule event")

	switch ev.Category {
	case domain.RuleCreated:
		if rule.Enabled {
			c.activateRule(rule)
		}

	case domain.RuleUpdated:
		// jobs of the old rule state must not outlive it; fresh ones come
		// from re-evaluation below
		if err := c.archiver.CancelRule(rule.Name); err != nil {
			logger.WithError(err).Error("Unable to cancel some archival jobs")
		}
		if rule.Enabled {
			c.activateRule(rule)
		}

	case domain.RuleDeleted:
		if err := c.archiver.CancelRule(rule.Name); err != nil {
			logger.WithError(err).Error("Unable to cancel some archival jobs")
		}
	}
}

// HandleRuleCleanEvent cancels the jobs of the rule and stops its recording
// on every target the rule currently matches.
func (c *Coordinator) HandleRuleCleanEvent(event interface{}) {
	ev, ok := event.(domain.RuleEvent)
	if !ok {
		return
	}

	rule := ev.Rule
	logger := c.logger.WithField("rule", rule.Name)

	if err := c.archiver.CancelRule(rule.Name); err != nil {
		logger.WithError(err).Error("Unable to cancel some archival jobs")
	}

	targets, err := c.evaluator.MatchedTargets(rule.MatchExpression)
	if err != nil {
		logger.WithError(err).Error("Unable to find targets to clean")
		return
	}

	for _, target := range targets {
		target := target
		c.submit(rule, target, func(ctx context.Context) {
			if err := c.stopRuleRecording(ctx, rule, target); err != nil {
				appcontext.LoggerFromContext(c.logger, ctx).WithError(err).Error("Unable to stop rule recording")
			}
		})
	}
}

func (c *Coordinator) HandleDiscoveryEvent(event interface{}) {
	ev, ok := event.(domain.DiscoveryEvent)
	if !ok {
		return
	}

	target := ev.Target
	logger := c.logger.WithFields(logrus.Fields{"jvm_id": target.JvmId, "kind": string(ev.Kind)})
	logger.Debug("Handling discovery event")

	switch ev.Kind {
	case domain.TargetFound:
		rules, err := c.rules.FindEnabled(context.Background())
		if err != nil {
			logger.WithError(err).Error("Unable to load enabled rules")
			return
		}

		for _, rule := range rules {
			ok, err := c.evaluator.Applies(rule.MatchExpression, target)
			if err != nil {
				logger.WithError(err).WithField("rule", rule.Name).Warn("Unable to evaluate rule against target")
				continue
			}
			if ok {
				c.submitActivation(rule, target)
			}
		}

	case domain.TargetLost:
		if err := c.archiver.CancelTarget(target.JvmId); err != nil {
			logger.WithError(err).Error("Unable to cancel some archival jobs")
		}
	}
}

func (c *Coordinator) activateRule(rule domain.Rule) {
	targets, err := c.evaluator.MatchedTargets(rule.MatchExpression)
	if err != nil {
		c.logger.WithError(err).WithField("rule", rule.Name).Error("Unable to evaluate rule")
		return
	}

	for _, target := range targets {
		c.submitActivation(rule, target)
	}
}

func (c *Coordinator) submitActivation(rule domain.Rule, target domain.Target) {
	c.submit(rule, target, func(ctx context.Context) {
		err := c.Activate(ctx, rule.Name, target)
		c.metrics.ActivationFinished(rule.Name, err)

		if err != nil {
			appcontext.LoggerFromContext(c.logger, ctx).WithError(err).Error("Unable to activate rule on target")
		}
	})
}

func (c *Coordinator) submit(rule domain.Rule, target domain.Target, task func(ctx context.Context)) {
	err := c.pool.Submit(func(ctx context.Context) {
		ctx = appcontext.WithRuleName(ctx, rule.Name)
		ctx = appcontext.WithTarget(ctx, target.JvmId, target.ConnectUrl)
		task(ctx)
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"rule":   rule.Name,
			"jvm_id": target.JvmId,
		}).Error("Unable to submit rule work")
	}
}

// Activate starts the recording of the rule on the target, replacing the one
// a previous activation left behind, and schedules archival for archivers.
// The rule is reloaded first so queued work never resurrects a rule that has
// since been disabled or deleted.
func (c *Coordinator) Activate(ctx context.Context, ruleName string, target domain.Target) error {
	logger := appcontext.LoggerFromContext(c.logger, ctx)

	rule, err := c.rules.FindByName(ctx, ruleName)
	if errors.Cause(err) == domain.ErrRuleNotFound {
		logger.Debug("Skipping activation of deleted rule")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "Unable to load rule")
	}
	if !rule.Enabled {
		logger.Debug("Skipping activation of disabled rule")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.stopRuleRecording(ctx, rule, target); err != nil {
		return err
	}

	templateName, templateType, err := c.templates.ParseEventSpecifier(rule.EventSpecifier)
	if err != nil {
		return errors.Wrapf(err, "Unable to parse event specifier %q", rule.EventSpecifier)
	}

	template, err := c.templates.GetPreferredTemplate(ctx, target, templateName, templateType)
	if err != nil {
		return errors.Wrapf(err, "Unable to resolve template %q", templateName)
	}

	labels := map[string]string{
		LabelRule:         rule.Name,
		LabelTemplateName: template.Name,
		LabelTemplateType: string(template.Type),
	}

	options := domain.RecordingOptions{
		Name:    rule.RecordingName(),
		MaxAge:  maxAge(rule),
		MaxSize: maxSize(rule),
		ToDisk:  true,
	}

	recording, err := c.recordings.StartRecording(ctx, target, domain.ReplaceAlways, template, options, labels)
	if err != nil {
		return errors.Wrap(err, "Unable to start recording")
	}

	logger.WithField("recording_id", recording.Id).Info("Started rule recording")

	if !rule.IsArchiver() {
		return nil
	}

	return c.archiver.Schedule(ctx, rule, target, recording)
}

// stopRuleRecording stops the active recording named after the rule, if any.
func (c *Coordinator) stopRuleRecording(ctx context.Context, rule domain.Rule, target domain.Target) error {
	name := rule.RecordingName()

	existing, err := c.recordings.GetActiveRecording(ctx, target, func(r domain.Recording) bool {
		return r.Name == name
	})
	if errors.Cause(err) == domain.ErrRecordingNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "Unable to look up rule recording")
	}

	if err := c.recordings.StopRecording(ctx, target, existing); err != nil {
		return errors.Wrapf(err, "Unable to stop recording %d", existing.Id)
	}

	appcontext.LoggerFromContext(c.logger, ctx).WithField("recording_id", existing.Id).Info("Stopped rule recording")

	return nil
}

// CleanRule synchronously stops the rule recording on each of the targets;
// failures of one target do not prevent the others.
func (c *Coordinator) CleanRule(ctx context.Context, rule domain.Rule, targets []domain.Target) error {
	var result error

	for _, target := range targets {
		tctx, cancel := context.WithTimeout(appcontext.WithTarget(ctx, target.JvmId, target.ConnectUrl), c.timeout)
		result = multierr.Append(result, c.stopRuleRecording(tctx, rule, target))
		cancel()
	}

	return result
}
