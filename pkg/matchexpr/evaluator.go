// Package matchexpr evaluates rule match expressions, written in CEL, against
// discovered targets.
//
// Expressions see a single variable, target, with the fields
//
//	target.alias, target.connectUrl, target.jvmId,
//	target.labels, target.annotations.platform, target.annotations.cryostat
//
// Compiled programs and per-target results are cached until invalidated by a
// rule or discovery event.
package matchexpr

import (
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const keySeparator = "\x00"

// targetAttributes is the typed view of a target expressions select from,
// so a misspelled field fails compilation instead of every evaluation.
type targetAttributes struct {
	Alias       string            `cel:"alias"`
	ConnectUrl  string            `cel:"connectUrl"`
	JvmId       string            `cel:"jvmId"`
	Labels      map[string]string `cel:"labels"`
	Annotations annotations       `cel:"annotations"`
}

type annotations struct {
	Platform map[string]string `cel:"platform"`
	Cryostat map[string]string `cel:"cryostat"`
}

var targetType = reflect.TypeOf(targetAttributes{})

type Evaluator struct {
	logger  logrus.FieldLogger
	env     *cel.Env
	targets domain.TargetSource

	programs *cache.Cache
	results  *cache.Cache
}

func New(logger logrus.FieldLogger, targets domain.TargetSource) (*Evaluator, error) {
	env, err := cel.NewEnv(
		ext.NativeTypes(targetType, ext.ParseStructTags(true)),
		cel.Variable("target", cel.ObjectType("matchexpr.targetAttributes")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create CEL environment")
	}

	return &Evaluator{
		logger:   logger,
		env:      env,
		targets:  targets,
		programs: cache.New(cache.NoExpiration, 0),
		results:  cache.New(cache.NoExpiration, 0),
	}, nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	if p, ok := e.programs.Get(expression); ok {
		return p.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.EvaluationError{Expression: expression, Err: issues.Err()}
	}

	if t := ast.OutputType().String(); t != "bool" && t != "dyn" {
		return nil, &domain.EvaluationError{
			Expression: expression,
			Err:        errors.Errorf("expression must produce bool, got %s", t),
		}
	}

	p, err := e.env.Program(ast)
	if err != nil {
		return nil, &domain.EvaluationError{Expression: expression, Err: err}
	}

	e.programs.SetDefault(expression, p)

	return p, nil
}

// Validate checks that the expression compiles to a boolean program.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *Evaluator) Applies(expression string, target domain.Target) (bool, error) {
	key := resultKey(expression, target.JvmId)

	if r, ok := e.results.Get(key); ok {
		return r.(bool), nil
	}

	p, err := e.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := p.Eval(map[string]interface{}{"target": attributes(target)})
	if err != nil {
		return false, &domain.EvaluationError{Expression: expression, JvmId: target.JvmId, Err: err}
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, &domain.EvaluationError{
			Expression: expression,
			JvmId:      target.JvmId,
			Err:        errors.Errorf("expression produced %T instead of bool", out.Value()),
		}
	}

	e.results.SetDefault(key, result)

	return result, nil
}

// MatchedTargets returns every known target the expression applies to.
// Targets failing evaluation are logged and skipped; only an expression that
// does not compile fails the whole scan.
func (e *Evaluator) MatchedTargets(expression string) ([]domain.Target, error) {
	if err := e.Validate(expression); err != nil {
		return nil, err
	}

	var matched []domain.Target

	for _, target := range e.targets.Targets() {
		ok, err := e.Applies(expression, target)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"jvm_id":     target.JvmId,
				"expression": expression,
			}).Warn("Excluding target that failed expression evaluation")
			continue
		}

		if ok {
			matched = append(matched, target)
		}
	}

	return matched, nil
}

// InvalidateExpression drops the program and every cached result of the expression.
func (e *Evaluator) InvalidateExpression(expression string) {
	e.programs.Delete(expression)

	prefix := expression + keySeparator
	for key := range e.results.Items() {
		if strings.HasPrefix(key, prefix) {
			e.results.Delete(key)
		}
	}
}

// InvalidateTarget drops every cached result computed for the target.
func (e *Evaluator) InvalidateTarget(jvmId string) {
	suffix := keySeparator + jvmId
	for key := range e.results.Items() {
		if strings.HasSuffix(key, suffix) {
			e.results.Delete(key)
		}
	}
}

func (e *Evaluator) HandleRuleEvent(event interface{}) {
	ev, ok := event.(domain.RuleEvent)
	if !ok {
		return
	}

	switch ev.Category {
	case domain.RuleUpdated:
		if ev.Previous != nil && ev.Previous.MatchExpression != ev.Rule.MatchExpression {
			e.InvalidateExpression(ev.Previous.MatchExpression)
		}
		e.InvalidateExpression(ev.Rule.MatchExpression)
	case domain.RuleDeleted:
		e.InvalidateExpression(ev.Rule.MatchExpression)
	}
}

// HandleDiscoveryEvent forgets results of a target that appeared, changed or
// vanished, since its attributes may differ from the cached ones.
func (e *Evaluator) HandleDiscoveryEvent(event interface{}) {
	ev, ok := event.(domain.DiscoveryEvent)
	if !ok {
		return
	}

	e.InvalidateTarget(ev.Target.JvmId)
}

func resultKey(expression, jvmId string) string {
	return expression + keySeparator + jvmId
}

func attributes(target domain.Target) *targetAttributes {
	return &targetAttributes{
		Alias:      target.Alias,
		ConnectUrl: target.ConnectUrl,
		JvmId:      target.JvmId,
		Labels:     nonNil(target.Labels),
		Annotations: annotations{
			Platform: nonNil(target.PlatformAnnotations),
			Cryostat: nonNil(target.CryostatAnnotations),
		},
	}
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
