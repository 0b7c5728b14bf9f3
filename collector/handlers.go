// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"baobab/platform/collector/cache"
	"baobab/platform/collector/mediator"
	"baobab/platform/collector/sources"
	"baobab/platform/collector/store"
	"baobab/platform/shared/logger"
	"baobab/platform/shared/types"
)

// Server is the HTTP control surface. Read routes are open; mutating routes
// require a bearer token once an API secret is configured.
type Server struct {
	cfg       *Config
	st        store.Gateway
	cache     *cache.TwoTierCache
	med       *mediator.Mediator
	sups      *Registry
	orch      *Orchestrator
	sched     *Scheduler
	backfill  *Backfill
	community *Community
	srcs      map[string]sources.Source
	clock     Clock
	log       *logger.Logger
}

// ServerDeps wires the control surface. Config, Store, and Supervisors are
// required; handlers over absent optional components answer 503.
type ServerDeps struct {
	Config      *Config
	Store       store.Gateway
	Cache       *cache.TwoTierCache
	Mediator    *mediator.Mediator
	Supervisors *Registry
	Orch        *Orchestrator
	Scheduler   *Scheduler
	Backfill    *Backfill
	Community   *Community
	Sources     map[string]sources.Source
	Clock       Clock
}

// NewServer builds the control surface.
func NewServer(deps ServerDeps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Server{
		cfg:       deps.Config,
		st:        deps.Store,
		cache:     deps.Cache,
		med:       deps.Mediator,
		sups:      deps.Supervisors,
		orch:      deps.Orch,
		sched:     deps.Scheduler,
		backfill:  deps.Backfill,
		community: deps.Community,
		srcs:      deps.Sources,
		clock:     clock,
		log:       logger.New("api"),
	}
}

// Router assembles the route table. CORS wrapping happens in Run so tests
// exercise the bare router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check and metrics
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", s.metricsHandler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)

	api.HandleFunc("/status", s.statusHandler).Methods("GET")

	// Pipeline control
	api.HandleFunc("/pipelines/{name}/trigger", s.pipelineTriggerHandler).Methods("POST")
	api.HandleFunc("/pipelines/{name}/results", s.pipelineResultsHandler).Methods("GET")

	// Scheduler control
	api.HandleFunc("/scheduler", s.schedulerStatusHandler).Methods("GET")
	api.HandleFunc("/scheduler", s.schedulerUpdateHandler).Methods("POST")
	api.HandleFunc("/scheduler/start", s.schedulerStartHandler).Methods("POST")
	api.HandleFunc("/scheduler/stop", s.schedulerStopHandler).Methods("POST")
	api.HandleFunc("/scheduler/trigger", s.cycleTriggerHandler).Methods("POST")

	// Cache operations
	api.HandleFunc("/cache/stats", s.cacheStatsHandler).Methods("GET")
	api.HandleFunc("/cache/invalidate", s.cacheInvalidateHandler).Methods("POST")
	api.HandleFunc("/cache/clear-negative", s.cacheClearNegativeHandler).Methods("POST")
	api.HandleFunc("/cache/warm", s.cacheWarmHandler).Methods("POST")

	// Backfill control
	api.HandleFunc("/backfill/trigger", s.backfillTriggerHandler).Methods("POST")
	api.HandleFunc("/backfill/status", s.backfillStatusHandler).Methods("GET")
	api.HandleFunc("/backfill/stats", s.backfillStatsHandler).Methods("GET")

	// Community curation
	api.HandleFunc("/community/submissions", s.submissionCreateHandler).Methods("POST")
	api.HandleFunc("/community/submissions", s.submissionListHandler).Methods("GET")
	api.HandleFunc("/community/votes", s.voteHandler).Methods("POST")

	return r
}

// requireAuth validates the bearer token on mutating routes. Reads stay open
// and everything is open until an API secret is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APISecret == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.APISecret), nil
		})
		if err != nil || !token.Valid {
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"status":  "healthy",
		"service": "collector",
		"time":    s.clock.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// metricsHandler refreshes the mirrored gauges, then serves the registry.
func (s *Server) metricsHandler() http.Handler {
	prom := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var stats cache.Stats
		var costs mediator.CostSnapshot
		if s.cache != nil {
			stats = s.cache.Stats()
		}
		if s.med != nil {
			costs = s.med.Costs()
		}
		syncObservedMetrics(stats, costs)
		prom.ServeHTTP(w, r)
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"service": "collector",
		"time":    s.clock.Now().UTC().Format(time.RFC3339),
	}
	if s.sups != nil {
		resp["pipelines"] = s.sups.Statuses()
	}
	if s.orch != nil {
		resp["cycle_running"] = s.orch.Running()
	}
	if s.sched != nil {
		resp["scheduler"] = s.sched.Status()
	}
	if s.med != nil {
		resp["costs"] = s.med.Costs()
		resp["sources"] = s.med.Sources()
	}
	if s.cache != nil {
		resp["cache"] = s.cache.Stats()
	}
	if s.backfill != nil {
		resp["backfill"] = s.backfill.Stats()
	}
	writeJSONResponse(w, resp, http.StatusOK)
}

type pipelineTriggerRequest struct {
	Terms           []string `json:"terms,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	TimePeriod      string   `json:"time_period,omitempty"`
	GeographicFocus []string `json:"geographic_focus,omitempty"`
}

func (s *Server) pipelineTriggerHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sup, ok := s.sups.Get(name)
	if !ok {
		writeJSONError(w, fmt.Sprintf("unknown pipeline %q", name), http.StatusNotFound)
		return
	}

	var req pipelineTriggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if s.orch == nil {
		writeJSONError(w, "orchestrator not wired", http.StatusServiceUnavailable)
		return
	}
	fn, ok := s.orch.PipelineFuncFor(name, CycleParams{
		Terms:           req.Terms,
		Provider:        req.Provider,
		TimePeriod:      req.TimePeriod,
		GeographicFocus: req.GeographicFocus,
	})
	if !ok {
		writeJSONError(w, fmt.Sprintf("pipeline %q has no wired source", name), http.StatusServiceUnavailable)
		return
	}

	// The run outlives the request, so it gets a fresh context.
	verdict := sup.Start(context.Background(), fn)
	s.log.Info(name, "", "pipeline trigger requested", map[string]interface{}{
		"result": string(verdict),
	})
	writeJSONResponse(w, map[string]string{
		"pipeline": name,
		"result":   string(verdict),
	}, statusForVerdict(verdict))
}

func (s *Server) pipelineResultsHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.sups.Get(name); !ok {
		writeJSONError(w, fmt.Sprintf("unknown pipeline %q", name), http.StatusNotFound)
		return
	}

	runs, err := s.st.RecentRuns(r.Context(), name, queryLimit(r, 10, 100))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"pipeline": name,
		"runs":     runs,
	}, http.StatusOK)
}

func (s *Server) schedulerStatusHandler(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		writeJSONError(w, "scheduler not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, s.sched.Status(), http.StatusOK)
}

type scheduleUpdateRequest struct {
	Interval        string             `json:"interval,omitempty"`
	Enabled         *bool              `json:"enabled,omitempty"`
	ReportTypes     []types.ReportType `json:"report_types,omitempty"`
	Provider        *string            `json:"provider,omitempty"`
	GeographicFocus []string           `json:"geographic_focus,omitempty"`
	DisableSnowball *bool              `json:"disable_snowball,omitempty"`
}

func (s *Server) schedulerUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeJSONError(w, "scheduler not wired", http.StatusServiceUnavailable)
		return
	}

	var req scheduleUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	upd := ScheduleUpdate{
		Enabled:         req.Enabled,
		ReportTypes:     req.ReportTypes,
		Provider:        req.Provider,
		GeographicFocus: req.GeographicFocus,
		DisableSnowball: req.DisableSnowball,
	}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeJSONError(w, fmt.Sprintf("invalid interval %q", req.Interval), http.StatusBadRequest)
			return
		}
		upd.Interval = &d
	}

	if err := s.sched.UpdateSchedule(upd); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSONResponse(w, s.sched.Status(), http.StatusOK)
}

func (s *Server) schedulerStartHandler(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		writeJSONError(w, "scheduler not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, map[string]bool{"started": s.sched.Start()}, http.StatusOK)
}

func (s *Server) schedulerStopHandler(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		writeJSONError(w, "scheduler not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, map[string]bool{"stopped": s.sched.Stop()}, http.StatusOK)
}

type cycleTriggerRequest struct {
	ReportTypes     []types.ReportType `json:"report_types,omitempty"`
	Provider        string             `json:"provider,omitempty"`
	TimePeriod      string             `json:"time_period,omitempty"`
	GeographicFocus []string           `json:"geographic_focus,omitempty"`
	EnableSnowball  *bool              `json:"enable_snowball,omitempty"`
}

// cycleTriggerHandler kicks off a full collection cycle outside the cadence.
// The cycle runs in the background; its result lands in the scheduler status.
func (s *Server) cycleTriggerHandler(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil || s.orch == nil {
		writeJSONError(w, "scheduler not wired", http.StatusServiceUnavailable)
		return
	}
	if s.orch.Running() {
		writeJSONError(w, "collection cycle already running", http.StatusConflict)
		return
	}

	var req cycleTriggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	params := CycleParams{
		ReportTypes:     req.ReportTypes,
		Provider:        req.Provider,
		TimePeriod:      req.TimePeriod,
		GeographicFocus: req.GeographicFocus,
	}
	if req.EnableSnowball != nil && !*req.EnableSnowball {
		params.DisableSnowball = true
	}

	go s.sched.Trigger(context.Background(), params)
	s.log.Info("orchestrator", "", "manual collection cycle requested", map[string]interface{}{
		"provider":    params.Provider,
		"time_period": params.TimePeriod,
	})
	writeJSONResponse(w, map[string]string{"result": "accepted"}, http.StatusAccepted)
}

func (s *Server) cacheStatsHandler(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		writeJSONError(w, "cache not wired", http.StatusServiceUnavailable)
		return
	}
	resp := map[string]interface{}{"stats": s.cache.Stats()}
	if s.med != nil {
		resp["costs"] = s.med.Costs()
	}
	writeJSONResponse(w, resp, http.StatusOK)
}

type cacheInvalidateRequest struct {
	Pattern string `json:"pattern"`
}

func (s *Server) cacheInvalidateHandler(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSONError(w, "cache not wired", http.StatusServiceUnavailable)
		return
	}

	var req cacheInvalidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	n, err := s.cache.Invalidate(r.Context(), req.Pattern)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSONResponse(w, map[string]int{"invalidated": n}, http.StatusOK)
}

type clearNegativeRequest struct {
	Source string `json:"source,omitempty"`
}

func (s *Server) cacheClearNegativeHandler(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSONError(w, "cache not wired", http.StatusServiceUnavailable)
		return
	}

	var req clearNegativeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	n, err := s.cache.ClearNegative(r.Context(), req.Source)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, map[string]int{"cleared": n}, http.StatusOK)
}

type warmTaskRequest struct {
	Source     string   `json:"source"`
	Terms      []string `json:"terms,omitempty"`
	ReportType string   `json:"report_type,omitempty"`
	TimePeriod string   `json:"time_period,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
	Window     string   `json:"window,omitempty"`
}

type warmRequest struct {
	Tasks []warmTaskRequest `json:"tasks"`
}

// cacheWarmHandler pre-executes queries through the named adapters so their
// results are cached before the next cycle needs them. Negative outcomes
// count as warmed: the cache now answers for those too.
func (s *Server) cacheWarmHandler(w http.ResponseWriter, r *http.Request) {
	var req warmRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if len(req.Tasks) == 0 {
		writeJSONError(w, "no warm tasks given", http.StatusBadRequest)
		return
	}

	var warmed, failed int
	for _, t := range req.Tasks {
		src, ok := s.srcs[t.Source]
		if !ok {
			failed++
			continue
		}
		spec := sources.QuerySpec{
			Terms:      t.Terms,
			ReportType: t.ReportType,
			TimePeriod: t.TimePeriod,
			MaxResults: t.MaxResults,
		}
		if t.Window != "" {
			if d, err := time.ParseDuration(t.Window); err == nil {
				spec.Window = d
			}
		}
		_, err := src.Fetch(r.Context(), spec)
		switch {
		case err == nil:
			warmed++
		case errors.As(err, new(*cache.NegativeError)):
			warmed++
		default:
			failed++
		}
	}
	writeJSONResponse(w, map[string]int{"warmed": warmed, "failed": failed}, http.StatusOK)
}

type backfillTriggerRequest struct {
	InnovationIDs []string `json:"innovation_ids,omitempty"`
	MaxJobs       int      `json:"max_jobs,omitempty"`
}

// backfillTriggerHandler runs a backfill pass under the enrichment
// supervisor so it shares the single-run guard and run bookkeeping.
func (s *Server) backfillTriggerHandler(w http.ResponseWriter, r *http.Request) {
	if s.backfill == nil {
		writeJSONError(w, "backfill not wired", http.StatusServiceUnavailable)
		return
	}
	sup, ok := s.sups.Get(PipelineEnrichment)
	if !ok {
		writeJSONError(w, "enrichment pipeline not wired", http.StatusServiceUnavailable)
		return
	}

	var req backfillTriggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	fn := func(ctx context.Context) (RunStats, error) {
		var pass BackfillPassStats
		var err error
		if len(req.InnovationIDs) > 0 {
			pass, err = s.backfill.RunTargeted(ctx, req.InnovationIDs, req.MaxJobs)
		} else {
			pass, err = s.backfill.RunPass(ctx)
		}
		stats := RunStats{ItemsProcessed: pass.FieldsWritten, ItemsFailed: pass.JobsFailed}
		if err != nil {
			return stats, err
		}
		if pass.JobsProcessed == 0 && pass.JobsSkipped == 0 {
			return stats, ErrRunSkipped
		}
		return stats, nil
	}

	verdict := sup.Start(context.Background(), fn)
	writeJSONResponse(w, map[string]string{
		"pipeline": PipelineEnrichment,
		"result":   string(verdict),
	}, statusForVerdict(verdict))
}

func (s *Server) backfillStatusHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.st.BackfillJobCounts(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]interface{}{"jobs": counts}
	if sup, ok := s.sups.Get(PipelineEnrichment); ok {
		resp["pipeline"] = sup.Status()
	}
	writeJSONResponse(w, resp, http.StatusOK)
}

func (s *Server) backfillStatsHandler(w http.ResponseWriter, _ *http.Request) {
	if s.backfill == nil {
		writeJSONError(w, "backfill not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, s.backfill.Stats(), http.StatusOK)
}

func (s *Server) submissionCreateHandler(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeJSONError(w, "community not wired", http.StatusServiceUnavailable)
		return
	}

	var sub types.CommunitySubmission
	if err := decodeBody(r, &sub); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	out, err := s.community.Submit(r.Context(), sub)
	if err != nil {
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	writeJSONResponse(w, out, http.StatusCreated)
}

func (s *Server) submissionListHandler(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeJSONError(w, "community not wired", http.StatusServiceUnavailable)
		return
	}

	subs, err := s.community.Pending(r.Context(), queryLimit(r, 20, 100))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, map[string]interface{}{"submissions": subs}, http.StatusOK)
}

func (s *Server) voteHandler(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeJSONError(w, "community not wired", http.StatusServiceUnavailable)
		return
	}

	var vote types.CommunityVote
	if err := decodeBody(r, &vote); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	out, err := s.community.Vote(r.Context(), vote)
	if err != nil {
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	writeJSONResponse(w, out, http.StatusOK)
}

// decodeBody parses an optional JSON body. An empty body leaves the target
// at its zero value.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func statusForVerdict(v StartResult) int {
	switch v {
	case StartAlreadyRunning:
		return http.StatusConflict
	case StartDisabled:
		return http.StatusForbidden
	default:
		return http.StatusAccepted
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case strings.Contains(err.Error(), string(types.ErrKindValidation)):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Error encoding response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}, statusCode)
}
