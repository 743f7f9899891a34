package domainfx

import (
	"go.uber.org/fx"

	"github.com/yurykabanov/jfrkeeper/pkg/rules"
)

var Module = fx.Options(
	fx.Provide(EventBus),
	fx.Provide(Evaluator),
	fx.Provide(WorkerPoolConfigProvider),
	fx.Provide(WorkerPool),
	fx.Provide(Scheduler),
	fx.Provide(rules.NewJobRegistry),
	fx.Provide(ArchiveScheduler),
	fx.Provide(Coordinator),
	fx.Provide(RuleRegistry),

	fx.Invoke(CloseEventBus),
	fx.Invoke(Subscribe),
	fx.Invoke(RunEngine),
)

// Seeding creates configured rules once everything else is running. It must
// be the last option given to the application.
var Seeding = fx.Options(
	fx.Provide(LoadRules),
	fx.Invoke(SeedRules),
)
