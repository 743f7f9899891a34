package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/yurykabanov/jfrkeeper/internal/archivefx"
	"github.com/yurykabanov/jfrkeeper/internal/configfx"
	"github.com/yurykabanov/jfrkeeper/internal/discoveryfx"
	"github.com/yurykabanov/jfrkeeper/internal/dockerfx"
	"github.com/yurykabanov/jfrkeeper/internal/domainfx"
	"github.com/yurykabanov/jfrkeeper/internal/httpfx"
	"github.com/yurykabanov/jfrkeeper/internal/jolokiafx"
	"github.com/yurykabanov/jfrkeeper/internal/loggerfx"
	"github.com/yurykabanov/jfrkeeper/internal/metricsfx"
	"github.com/yurykabanov/jfrkeeper/internal/sqlfx"
)

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(30*time.Second),
		fx.StopTimeout(30*time.Second),

		fx.Logger(logger),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		dockerfx.Module,
		metricsfx.Module,
		jolokiafx.Module,
		archivefx.Module,
		domainfx.Module,
		discoveryfx.Module,
		httpfx.Module,
		domainfx.Seeding,
	)

	app.Run()
}
