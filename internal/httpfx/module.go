package httpfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(HttpServerConfigProvider),
	fx.Provide(HttpServer),
	fx.Provide(HttpRouter),
	fx.Provide(Listener),

	fx.Provide(RulesHandler),
	fx.Provide(JobsHandler),
	fx.Provide(TargetsHandler),
	fx.Invoke(RegisterHandlers),

	fx.Invoke(RunServer),
)
