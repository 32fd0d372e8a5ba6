package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/aggregate"
	"github.com/sells-group/leadval-cli/internal/anomaly"
	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/monitoring"
	"github.com/sells-group/leadval-cli/internal/report"
	"github.com/sells-group/leadval-cli/internal/resilience"
	"github.com/sells-group/leadval-cli/internal/score"
	"github.com/sells-group/leadval-cli/internal/store"
)

// apiServer serves the read-only dashboard API over the store. Anomaly
// statuses are not resolved here; lifecycle lookups need CRM credentials and
// belong to the anomalies command.
type apiServer struct {
	store     store.Store
	cfg       *config.Config
	builder   *report.Builder
	collector *monitoring.Collector
}

// newRouter builds the API router. Kept separate from the serve command so
// tests can drive it with httptest.
func newRouter(st store.Store, cfg *config.Config, breakers *resilience.ServiceBreakers) http.Handler {
	api := &apiServer{
		store:     st,
		cfg:       cfg,
		builder:   report.NewBuilder(st, cfg),
		collector: monitoring.NewCollector(st, breakers),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", api.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", api.handleSummary)
		r.Get("/sources", api.handleSources)
		r.Get("/trends/{granularity}", api.handleTrends)
		r.Get("/anomalies", api.handleAnomalies)
		r.Get("/report/daily", api.handleDailyReport)
		r.Get("/leads/{id}", api.handleLead)
		r.Get("/metrics", api.handleMetrics)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// daysParam reads an integer day-count query parameter. ok is false when the
// value is present but not a non-negative integer.
func daysParam(r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0, false
	}
	return days, true
}

func (s *apiServer) assess(ctx context.Context, window model.Window) (score.BatchResult, error) {
	records, err := s.store.ListValidations(ctx, store.ValidationFilter{Window: window})
	if err != nil {
		return score.BatchResult{}, err
	}
	return score.AssessBatch(records, s.cfg.Scoring), nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type summaryResponse struct {
	WindowDays  int                `json:"window_days"`
	NoData      bool               `json:"no_data,omitempty"`
	Totals      aggregate.Totals   `json:"totals"`
	Status      model.SystemStatus `json:"status,omitempty"`
	Freshness   model.Freshness    `json:"freshness"`
	GeneratedAt time.Time          `json:"generated_at"`
}

func (s *apiServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(r, "window", 30)
	if !ok {
		writeError(w, http.StatusBadRequest, "window must be a non-negative day count")
		return
	}
	window := windowFlag(days)

	res, err := s.assess(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := summaryResponse{
		WindowDays:  days,
		Freshness:   report.FreshnessOf(counts.NewestValidated, time.Now().UTC()),
		GeneratedAt: time.Now().UTC(),
	}
	if len(res.Assessments) == 0 {
		resp.NoData = true
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Totals = aggregate.ComputeTotals(res.Assessments, window)
	if resp.Totals.QualityCount > 0 {
		resp.Status = report.StatusOf(resp.Totals.AvgQuality)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleSources(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(r, "window", 30)
	if !ok {
		writeError(w, http.StatusBadRequest, "window must be a non-negative day count")
		return
	}

	card, err := s.builder.Scorecard(r.Context(), windowFlag(days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("worst") == "1" {
		card.Sources = nil
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *apiServer) handleTrends(w http.ResponseWriter, r *http.Request) {
	g := model.Granularity(chi.URLParam(r, "granularity"))
	if !g.Valid() {
		writeError(w, http.StatusBadRequest, "granularity must be daily, weekly, or monthly")
		return
	}
	days, ok := daysParam(r, "window", s.cfg.Trends.WindowDays)
	if !ok {
		writeError(w, http.StatusBadRequest, "window must be a non-negative day count")
		return
	}

	rep, err := s.builder.Trends(r.Context(), g, r.URL.Query().Get("source"), windowFlag(days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type anomaliesResponse struct {
	WindowDays  int                   `json:"window_days"`
	Count       int                   `json:"count"`
	Anomalies   []model.AnomalyRecord `json:"anomalies,omitempty"`
	GeneratedAt time.Time             `json:"generated_at"`
}

func (s *apiServer) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(r, "window", s.cfg.Anomaly.LookbackDays)
	if !ok {
		writeError(w, http.StatusBadRequest, "window must be a non-negative day count")
		return
	}
	limit, ok := daysParam(r, "limit", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	records, err := s.store.LatestPerLead(r.Context(), windowFlag(days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res := score.AssessBatch(records, s.cfg.Scoring)

	detector := anomaly.NewDetector(nil, s.cfg.Anomaly, s.cfg.Scoring.HighVolumeSources)
	anomalies := detector.Detect(r.Context(), res.Assessments, records)
	if limit > 0 && len(anomalies) > limit {
		anomalies = anomalies[:limit]
	}

	writeJSON(w, http.StatusOK, anomaliesResponse{
		WindowDays:  days,
		Count:       len(anomalies),
		Anomalies:   anomalies,
		GeneratedAt: time.Now().UTC(),
	})
}

func (s *apiServer) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		date, err = time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	rep, err := s.builder.Daily(r.Context(), date, report.DailyOptions{
		Hourly: r.URL.Query().Get("hourly") == "1",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type leadResponse struct {
	LeadID      string                 `json:"lead_id"`
	Validations int                    `json:"validations"`
	Latest      *model.LeadAssessment  `json:"latest,omitempty"`
	History     []model.LeadAssessment `json:"history,omitempty"`
}

func (s *apiServer) handleLead(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "id")
	history, err := s.store.LeadHistory(r.Context(), leadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	res := score.AssessBatch(history, s.cfg.Scoring)
	resp := leadResponse{
		LeadID:      leadID,
		Validations: len(history),
		History:     res.Assessments,
	}
	// History is newest first, so the first assessment is the current verdict.
	if len(res.Assessments) > 0 {
		resp.Latest = &res.Assessments[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), s.cfg.Monitoring.LookbackHours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
