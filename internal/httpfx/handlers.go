package httpfx

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/http/handler"
	"github.com/yurykabanov/jfrkeeper/pkg/scheduler"
)

func RulesHandler(logger *logrus.Logger, service handler.RuleService) *handler.RulesHandler {
	return handler.NewRulesHandler(logger, service)
}

func JobsHandler(logger *logrus.Logger, s *scheduler.Scheduler) *handler.JobsHandler {
	return handler.NewJobsHandler(logger, s)
}

func TargetsHandler(logger *logrus.Logger, targets domain.TargetSource) *handler.TargetsHandler {
	return handler.NewTargetsHandler(logger, targets)
}

func RegisterHandlers(
	router *mux.Router,
	rules *handler.RulesHandler,
	jobs *handler.JobsHandler,
	targets *handler.TargetsHandler,
) {
	rules.Register(router)
	jobs.Register(router)
	targets.Register(router)
}
