package rules

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/matchexpr"
)

type published struct {
	topic string
	event domain.RuleEvent
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(topic string, event interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic: topic, event: event.(domain.RuleEvent)})
}

func newTestRegistry(t *testing.T, rules ...domain.Rule) (*Registry, *memRules, *recordingBus) {
	evaluator, err := matchexpr.New(discardLogger(), staticTargets(nil))
	require.NoError(t, err)

	repo := newMemRules(rules...)
	bus := &recordingBus{}

	return NewRegistry(discardLogger(), repo, evaluator, fakeTemplates{}, bus), repo, bus
}

func TestRegistry_Create(t *testing.T) {
	registry, repo, bus := newTestRegistry(t)

	created, err := registry.Create(context.Background(), shopOnlyRule)

	require.NoError(t, err)
	assert.NotZero(t, created.Id)

	stored, err := repo.FindByName(context.Background(), "shop_only")
	require.NoError(t, err)
	assert.Equal(t, created, stored)

	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.TopicRules, bus.events[0].topic)
	assert.Equal(t, domain.RuleCreated, bus.events[0].event.Category)
	assert.Equal(t, created, bus.events[0].event.Rule)
}

func TestRegistry_Create_Invalid(t *testing.T) {
	registry, _, bus := newTestRegistry(t)

	cases := map[string]func(r *domain.Rule){
		"bad name":              func(r *domain.Rule) { r.Name = "has space" },
		"expression not bool":   func(r *domain.Rule) { r.MatchExpression = `1 + 1` },
		"expression syntax":     func(r *domain.Rule) { r.MatchExpression = `target.alias ==` },
		"empty specifier":       func(r *domain.Rule) { r.EventSpecifier = "" },
		"malformed specifier":   func(r *domain.Rule) { r.EventSpecifier = "Continuous" },
		"negative preservation": func(r *domain.Rule) { r.PreservedArchives = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rule := shopOnlyRule
			mutate(&rule)

			_, err := registry.Create(context.Background(), rule)

			assert.Equal(t, domain.ErrInvalidRule, errors.Cause(err))
		})
	}

	assert.Empty(t, bus.events)
}

func TestRegistry_Create_Duplicate(t *testing.T) {
	registry, _, bus := newTestRegistry(t, shopOnlyRule)

	_, err := registry.Create(context.Background(), shopOnlyRule)

	assert.Equal(t, domain.ErrRuleExists, errors.Cause(err))
	assert.Empty(t, bus.events)
}

func TestRegistry_Update(t *testing.T) {
	registry, _, bus := newTestRegistry(t, shopOnlyRule)
	expression := `target.alias == "cart"`

	updated, err := registry.Update(context.Background(), "shop_only", domain.RulePatch{MatchExpression: &expression}, false)

	require.NoError(t, err)
	assert.Equal(t, expression, updated.MatchExpression)

	require.Len(t, bus.events, 1)
	ev := bus.events[0].event
	assert.Equal(t, domain.RuleUpdated, ev.Category)
	assert.Equal(t, expression, ev.Rule.MatchExpression)
	require.NotNil(t, ev.Previous)
	assert.Equal(t, shopOnlyRule.MatchExpression, ev.Previous.MatchExpression)
}

func TestRegistry_Update_CleanDisable(t *testing.T) {
	registry, _, bus := newTestRegistry(t, shopOnlyRule)
	disabled := false

	_, err := registry.Update(context.Background(), "shop_only", domain.RulePatch{Enabled: &disabled}, true)

	require.NoError(t, err)
	require.Len(t, bus.events, 2)
	assert.Equal(t, domain.TopicRulesClean, bus.events[0].topic)
	assert.True(t, bus.events[0].event.Rule.Enabled)
	assert.Equal(t, domain.TopicRules, bus.events[1].topic)
	assert.False(t, bus.events[1].event.Rule.Enabled)
}

func TestRegistry_Update_CleanIgnoredWhileEnabled(t *testing.T) {
	registry, _, bus := newTestRegistry(t, shopOnlyRule)
	description := "still running"

	_, err := registry.Update(context.Background(), "shop_only", domain.RulePatch{Description: &description}, true)

	require.NoError(t, err)
	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.TopicRules, bus.events[0].topic)
}

func TestRegistry_Update_Invalid(t *testing.T) {
	registry, repo, bus := newTestRegistry(t, shopOnlyRule)
	expression := `target.alias ==`

	_, err := registry.Update(context.Background(), "shop_only", domain.RulePatch{MatchExpression: &expression}, false)

	assert.Equal(t, domain.ErrInvalidRule, errors.Cause(err))
	assert.Empty(t, bus.events)

	stored, _ := repo.FindByName(context.Background(), "shop_only")
	assert.Equal(t, shopOnlyRule.MatchExpression, stored.MatchExpression)
}

func TestRegistry_Update_NotFound(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	_, err := registry.Update(context.Background(), "missing", domain.RulePatch{}, false)

	assert.Equal(t, domain.ErrRuleNotFound, errors.Cause(err))
}

func TestRegistry_Delete(t *testing.T) {
	registry, repo, bus := newTestRegistry(t, shopOnlyRule)

	require.NoError(t, registry.Delete(context.Background(), "shop_only", false))

	_, err := repo.FindByName(context.Background(), "shop_only")
	assert.Equal(t, domain.ErrRuleNotFound, err)

	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.RuleDeleted, bus.events[0].event.Category)
}

func TestRegistry_Delete_Clean(t *testing.T) {
	registry, _, bus := newTestRegistry(t, shopOnlyRule)

	require.NoError(t, registry.Delete(context.Background(), "shop_only", true))

	require.Len(t, bus.events, 2)
	assert.Equal(t, domain.TopicRulesClean, bus.events[0].topic)
	assert.Equal(t, domain.TopicRules, bus.events[1].topic)
}

func TestRegistry_Seed(t *testing.T) {
	registry, repo, bus := newTestRegistry(t, shopOnlyRule)

	other := archiverRule
	err := registry.Seed(context.Background(), []domain.Rule{shopOnlyRule, other})

	require.NoError(t, err)
	all, _ := repo.FindAll(context.Background())
	assert.Len(t, all, 2)
	assert.Len(t, bus.events, 1)
}

func TestRegistry_Seed_Invalid(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	broken := shopOnlyRule
	broken.EventSpecifier = ""

	assert.Error(t, registry.Seed(context.Background(), []domain.Rule{broken}))
}
