// Package server exposes the pipeline over HTTP: webhook-triggered scans
// and read endpoints for runs, findings, profiles, and health.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/monitoring"
	"github.com/sells-group/sentinel-cli/internal/profile"
	"github.com/sells-group/sentinel-cli/internal/store"
)

// Runner executes one pipeline pass. Satisfied by pipeline.Coordinator.
type Runner interface {
	Run(ctx context.Context, orgID string, window model.TimeWindow) (*model.PipelineRunSummary, error)
}

// API serves the HTTP surface of the pipeline.
type API struct {
	store    store.Store
	profiles profile.Provider
	runner   Runner
	monitor  *monitoring.Collector

	// lookbackHours bounds the /status snapshot.
	lookbackHours int
}

func New(st store.Store, profiles profile.Provider, runner Runner, monitor *monitoring.Collector, lookbackHours int) *API {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	return &API{
		store:         st,
		profiles:      profiles,
		runner:        runner,
		monitor:       monitor,
		lookbackHours: lookbackHours,
	}
}

// RegisterRoutes mounts all API routes on the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/scan", a.handleScan)
	r.Get("/runs", a.handleListRuns)
	r.Get("/runs/{id}", a.handleGetRun)
	r.Get("/findings", a.handleListFindings)
	r.Get("/profiles", a.handleListProfiles)
	r.Get("/status", a.handleStatus)
	r.Get("/health", a.handleHealth)
}

type scanRequest struct {
	Org    string `json:"org"`
	Window string `json:"window"`
}

// handleScan accepts a scan request and runs the pipeline asynchronously.
// The caller gets a 202 immediately; results land in the store.
func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Org == "" {
		writeError(w, http.StatusBadRequest, "org is required")
		return
	}
	if req.Window == "" {
		req.Window = string(model.Window24h)
	}

	window, err := model.ParseWindow(req.Window)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Reject unknown orgs up front so the caller gets a 404 instead of a
	// silently failed background run.
	if _, err := a.profiles.Get(r.Context(), req.Org); err != nil {
		writeError(w, http.StatusNotFound, "unknown organization: "+req.Org)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Minute)
		defer cancel()

		summary, err := a.runner.Run(ctx, req.Org, window)
		if err != nil {
			zap.L().Error("server: webhook scan failed",
				zap.String("org", req.Org),
				zap.Error(err),
			)
			return
		}
		zap.L().Info("server: webhook scan complete",
			zap.String("org", req.Org),
			zap.String("run_id", summary.RunID),
			zap.Int("dispatched", summary.SignalsDispatched),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"org":    req.Org,
		"window": string(window),
	})
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		OrgID:  q.Get("org"),
		Status: model.RunStatus(q.Get("status")),
		Limit:  50,
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	findings, err := a.store.ListFindings(r.Context(), store.FindingFilter{
		OrgID:    q.Get("org"),
		RunID:    q.Get("run"),
		Analyzer: q.Get("analyzer"),
		Limit:    100,
	})
	if err != nil {
		zap.L().Error("server: list findings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list findings failed")
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

func (a *API) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.profiles.List(r.Context())
	if err != nil {
		zap.L().Error("server: list profiles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list profiles failed")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.monitor == nil {
		writeError(w, http.StatusNotFound, "monitoring disabled")
		return
	}
	snap, err := a.monitor.Collect(r.Context(), a.lookbackHours)
	if err != nil {
		zap.L().Error("server: status snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
