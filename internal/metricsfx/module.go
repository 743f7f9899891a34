package metricsfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(Metrics),
	fx.Invoke(RegisterMetricsHandler),
)
