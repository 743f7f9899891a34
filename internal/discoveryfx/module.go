package discoveryfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(DiscoveryConfigProvider),
	fx.Provide(TargetRegistry),
	fx.Provide(Watchers),
	fx.Invoke(RunWatchers),
)
