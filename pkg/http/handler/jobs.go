package handler

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

type JobLister interface {
	Jobs() []domain.JobStatus
}

type JobsHandler struct {
	logger logrus.FieldLogger
	jobs   JobLister
}

func NewJobsHandler(logger logrus.FieldLogger, jobs JobLister) *JobsHandler {
	return &JobsHandler{
		logger: logger,
		jobs:   jobs,
	}
}

func (h *JobsHandler) Register(router *mux.Router) {
	router.Handle("/api/v1/jobs", h).Methods(http.MethodGet)
}

type jobResponse struct {
	Rule                string `json:"rule"`
	JvmId               string `json:"jvmId"`
	IntervalSeconds     int64  `json:"intervalSeconds"`
	NextRun             int64  `json:"nextRunMtime"`
	LastRun             int64  `json:"lastRunMtime,omitempty"`
	LastError           string `json:"lastError,omitempty"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := appcontext.LoggerFromContext(h.logger, r.Context())

	statuses := h.jobs.Jobs()
	sort.Slice(statuses, func(i, k int) bool { return statuses[i].Key.String() < statuses[k].Key.String() })

	result := make([]jobResponse, 0, len(statuses))

	for _, s := range statuses {
		job := jobResponse{
			Rule:                s.Key.RuleName,
			JvmId:               s.Key.JvmId,
			IntervalSeconds:     int64(s.Interval.Seconds()),
			NextRun:             s.NextRun.UnixNano() / 1e6,
			LastError:           s.LastError,
			ConsecutiveFailures: s.ConsecutiveFailures,
		}
		if !s.LastRun.IsZero() {
			job.LastRun = s.LastRun.UnixNano() / 1e6
		}
		result = append(result, job)
	}

	writeJSON(w, logger, http.StatusOK, result)
}
