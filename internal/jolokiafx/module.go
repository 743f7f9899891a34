package jolokiafx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(JolokiaConfigProvider),
	fx.Provide(JolokiaClient),
)
