package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const requestTimeout = 10 * time.Second

type RuleService interface {
	Create(ctx context.Context, rule domain.Rule) (domain.Rule, error)
	Update(ctx context.Context, name string, patch domain.RulePatch, clean bool) (domain.Rule, error)
	Delete(ctx context.Context, name string, clean bool) error
	Get(ctx context.Context, name string) (domain.Rule, error)
	List(ctx context.Context) ([]domain.Rule, error)
}

type RulesHandler struct {
	logger  logrus.FieldLogger
	service RuleService
}

func NewRulesHandler(logger logrus.FieldLogger, service RuleService) *RulesHandler {
	return &RulesHandler{
		logger:  logger,
		service: service,
	}
}

func (h *RulesHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/rules", h.List).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/rules", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/rules/{name}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/rules/{name}", h.Update).Methods(http.MethodPatch)
	router.HandleFunc("/api/v1/rules/{name}", h.Delete).Methods(http.MethodDelete)
}

func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	rules, err := h.service.List(ctx)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	if rules == nil {
		rules = []domain.Rule{}
	}

	writeJSON(w, logger, http.StatusOK, rules)
}

func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	// rules are enabled unless stated otherwise
	rule := domain.Rule{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, logger, errors.Wrapf(domain.ErrInvalidRule, "malformed body: %v", err))
		return
	}

	created, err := h.service.Create(ctx, rule)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/rules/"+created.Name)
	writeJSON(w, logger, http.StatusCreated, created)
}

func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	rule, err := h.service.Get(ctx, mux.Vars(r)["name"])
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, rule)
}

func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	var patch domain.RulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, logger, errors.Wrapf(domain.ErrInvalidRule, "malformed body: %v", err))
		return
	}

	rule, err := h.service.Update(ctx, mux.Vars(r)["name"], patch, cleanParam(r))
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, rule)
}

func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	if err := h.service.Delete(ctx, mux.Vars(r)["name"], cleanParam(r)); err != nil {
		writeError(w, logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func cleanParam(r *http.Request) bool {
	clean, _ := strconv.ParseBool(r.URL.Query().Get("clean"))
	return clean
}
