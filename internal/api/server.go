// Package api exposes scans, ideas, configuration and schedules over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/signalforge/signalforge/internal/metrics"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/scanning"
	"github.com/signalforge/signalforge/internal/scheduler"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/signalforge/signalforge/internal/trends"
	"github.com/sirupsen/logrus"
)

// Server wires HTTP routes to the scan service and store
type Server struct {
	scans   *scanning.Service
	store   storage.ScanStore
	metrics *metrics.Metrics
}

// NewServer creates the API. m may be nil, in which case /metrics is not served.
func NewServer(scans *scanning.Service, store storage.ScanStore, m *metrics.Metrics) *Server {
	return &Server{scans: scans, store: store, metrics: m}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	org := router.PathPrefix("/orgs/{org:[0-9]+}").Subrouter()
	org.HandleFunc("/scans", s.triggerScan).Methods(http.MethodPost)
	org.HandleFunc("/scans", s.listScans).Methods(http.MethodGet)
	org.HandleFunc("/scans/{scan}", s.scanDetail).Methods(http.MethodGet)
	org.HandleFunc("/ideas", s.latestIdeas).Methods(http.MethodGet)
	org.HandleFunc("/config", s.getConfig).Methods(http.MethodGet)
	org.HandleFunc("/config", s.putConfig).Methods(http.MethodPut)
	org.HandleFunc("/schedule", s.getSchedule).Methods(http.MethodGet)
	org.HandleFunc("/schedule", s.putSchedule).Methods(http.MethodPut)

	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) triggerScan(w http.ResponseWriter, r *http.Request) {
	orgID := orgFrom(r)
	res, err := s.scans.TriggerScan(r.Context(), orgID)
	if err != nil {
		logrus.WithField("org_id", orgID).Errorf("Manual scan failed: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scans, err := s.scans.ListScans(r.Context(), orgFrom(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) scanDetail(w http.ResponseWriter, r *http.Request) {
	minScore, err := intParam(r, "min_score", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	filter := trends.ItemFilter{Source: q.Get("source"), Idea: q.Get("idea"), MinScore: minScore}

	view, err := s.scans.ScanDetail(r.Context(), orgFrom(r), mux.Vars(r)["scan"], trends.ParseSortKey(q.Get("sort")), filter)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) latestIdeas(w http.ResponseWriter, r *http.Request) {
	minMentions, err := intParam(r, "min_mentions", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	filter := trends.Filter{MinMentions: minMentions, Source: q.Get("source")}

	view, err := s.scans.LatestIdeas(r.Context(), orgFrom(r), trends.ParseSortKey(q.Get("sort")), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetScanConfiguration(r.Context(), orgFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.ScanConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.SaveScanConfiguration(r.Context(), orgFrom(r), &cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.GetSchedule(r.Context(), orgFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type scheduleRequest struct {
	Interval string `json:"interval"`
}

func (s *Server) putSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hours, err := scheduler.ParseInterval(req.Interval)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, err := s.store.SetScheduleInterval(r.Context(), orgFrom(r), hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// orgFrom reads the organization id; the route pattern guarantees digits.
func orgFrom(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["org"], 10, 64)
	return id
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Debugf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
