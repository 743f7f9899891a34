package domain

const (
	TopicRules      = "rules"
	TopicRulesClean = "rules.clean"
	TopicTargets    = "targets"
)

type ruleEventCategory string

const (
	RuleCreated ruleEventCategory = "CREATED"
	RuleUpdated ruleEventCategory = "UPDATED"
	RuleDeleted ruleEventCategory = "DELETED"
)

type RuleEvent struct {
	Category ruleEventCategory
	Rule     Rule

	// state before an update, nil for other categories
	Previous *Rule
}

type discoveryEventKind string

const (
	TargetFound    discoveryEventKind = "FOUND"
	TargetModified discoveryEventKind = "MODIFIED"
	TargetLost     discoveryEventKind = "LOST"
)

type DiscoveryEvent struct {
	Kind   discoveryEventKind
	Target Target
}
