package rules

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

// Registry is the entry point for rule mutations. Every committed mutation is
// announced on the event bus so that the evaluator and the coordinator can
// react to it.
type Registry struct {
	logger logrus.FieldLogger

	repo      domain.RuleRepository
	evaluator domain.ExpressionEvaluator
	templates domain.TemplateResolver
	bus       domain.EventBus

	// serializes read-modify-write of rules
	mu sync.Mutex
}

func NewRegistry(
	logger logrus.FieldLogger,
	repo domain.RuleRepository,
	evaluator domain.ExpressionEvaluator,
	templates domain.TemplateResolver,
	bus domain.EventBus,
) *Registry {
	return &Registry{
		logger:    logger,
		repo:      repo,
		evaluator: evaluator,
		templates: templates,
		bus:       bus,
	}
}

func (r *Registry) validate(rule domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	if err := r.evaluator.Validate(rule.MatchExpression); err != nil {
		return errors.Wrapf(domain.ErrInvalidRule, "match expression: %v", err)
	}

	if r.templates != nil {
		if _, _, err := r.templates.ParseEventSpecifier(rule.EventSpecifier); err != nil {
			return errors.Wrapf(domain.ErrInvalidRule, "event specifier: %v", err)
		}
	}

	return nil
}

func (r *Registry) Create(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	if err := r.validate(rule); err != nil {
		return domain.Rule{}, err
	}

	r.mu.Lock()
	created, err := r.repo.Create(ctx, rule)
	r.mu.Unlock()

	if err != nil {
		return domain.Rule{}, err
	}

	appcontext.LoggerFromContext(r.logger, ctx).WithField("rule", created.Name).Info("Rule created")

	r.bus.Publish(domain.TopicRules, domain.RuleEvent{Category: domain.RuleCreated, Rule: created})

	return created, nil
}

// Update applies the patch to the named rule. With clean set, disabling the
// rule also stops its recordings on every target it currently matches.
func (r *Registry) Update(ctx context.Context, name string, patch domain.RulePatch, clean bool) (domain.Rule, error) {
	r.mu.Lock()

	previous, err := r.repo.FindByName(ctx, name)
	if err != nil {
		r.mu.Unlock()
		return domain.Rule{}, err
	}

	updated := patch.Apply(previous)

	if err := r.validate(updated); err != nil {
		r.mu.Unlock()
		return domain.Rule{}, err
	}

	if err := r.repo.Update(ctx, updated); err != nil {
		r.mu.Unlock()
		return domain.Rule{}, err
	}

	r.mu.Unlock()

	appcontext.LoggerFromContext(r.logger, ctx).WithFields(logrus.Fields{
		"rule":    updated.Name,
		"enabled": updated.Enabled,
	}).Info("Rule updated")

	if clean && previous.Enabled && !updated.Enabled {
		r.bus.Publish(domain.TopicRulesClean, domain.RuleEvent{Category: domain.RuleUpdated, Rule: previous})
	}

	r.bus.Publish(domain.TopicRules, domain.RuleEvent{
		Category: domain.RuleUpdated,
		Rule:     updated,
		Previous: &previous,
	})

	return updated, nil
}

// Delete removes the named rule. With clean set, the rule's recordings are
// stopped on every target it currently matches.
func (r *Registry) Delete(ctx context.Context, name string, clean bool) error {
	r.mu.Lock()

	rule, err := r.repo.FindByName(ctx, name)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	if err := r.repo.Delete(ctx, rule); err != nil {
		r.mu.Unlock()
		return err
	}

	r.mu.Unlock()

	appcontext.LoggerFromContext(r.logger, ctx).WithField("rule", rule.Name).Info("Rule deleted")

	if clean {
		r.bus.Publish(domain.TopicRulesClean, domain.RuleEvent{Category: domain.RuleDeleted, Rule: rule})
	}

	r.bus.Publish(domain.TopicRules, domain.RuleEvent{Category: domain.RuleDeleted, Rule: rule})

	return nil
}

func (r *Registry) Get(ctx context.Context, name string) (domain.Rule, error) {
	return r.repo.FindByName(ctx, name)
}

func (r *Registry) List(ctx context.Context) ([]domain.Rule, error) {
	return r.repo.FindAll(ctx)
}

// Seed creates the configured rules that do not exist yet. Existing rules are
// left as they are so that changes made through the API survive restarts.
func (r *Registry) Seed(ctx context.Context, rules []domain.Rule) error {
	logger := appcontext.LoggerFromContext(r.logger, ctx)

	for _, rule := range rules {
		_, err := r.Create(ctx, rule)

		switch errors.Cause(err) {
		case nil:
		case domain.ErrRuleExists:
			logger.WithField("rule", rule.Name).Debug("Seed rule already exists")
		default:
			return errors.Wrapf(err, "Unable to seed rule %q", rule.Name)
		}
	}

	return nil
}
