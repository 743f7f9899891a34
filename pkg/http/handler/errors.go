package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch errors.Cause(err) {
	case domain.ErrRuleNotFound, domain.ErrTargetNotFound:
		return http.StatusNotFound
	case domain.ErrRuleExists:
		return http.StatusConflict
	case domain.ErrInvalidRule:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	status := statusOf(err)

	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	}

	writeJSON(w, logger, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("Unable to encode response")
	}
}
