package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

type TargetsHandler struct {
	logger  logrus.FieldLogger
	targets domain.TargetSource
}

func NewTargetsHandler(logger logrus.FieldLogger, targets domain.TargetSource) *TargetsHandler {
	return &TargetsHandler{
		logger:  logger,
		targets: targets,
	}
}

func (h *TargetsHandler) Register(router *mux.Router) {
	router.Handle("/api/v1/targets", h).Methods(http.MethodGet)
}

func (h *TargetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, appcontext.LoggerFromContext(h.logger, r.Context()), http.StatusOK, h.targets.Targets())
}
