package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/store"
)

// newRouter wires the HTTP surface. Ingestion is rate-limited; everything
// else is bounded by the store.
func newRouter(env *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	limiter := rate.NewLimiter(rate.Limit(cfg.Server.IngestRate), cfg.Server.IngestBurst)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(rateLimit(limiter)).Post("/entries", handleCreateEntry(env))
		r.Post("/entries/{id}/process", handleProcessEntry(env))
		r.Get("/records/{id}", handleGetRecord(env))

		r.Get("/corrections", handleCorrectionQueue(env))
		r.Post("/corrections", handleSubmitCorrection(env))
		r.Post("/corrections/{id}/approve", handleCorrectionAction(env, "approve"))
		r.Post("/corrections/{id}/reject", handleCorrectionAction(env, "reject"))
		r.Post("/corrections/{id}/implement", handleCorrectionAction(env, "implement"))
		r.Post("/corrections/{id}/revert", handleCorrectionAction(env, "revert"))

		r.Get("/alerts", handleListAlerts(env))
		r.Post("/alerts/{id}/acknowledge", handleAlertAcknowledge(env))
		r.Post("/alerts/{id}/resolve", handleAlertResolve(env))

		r.Get("/lineage/{id}/graph", handleLineageGraph(env))
	})

	return r
}

// rateLimit rejects requests above the configured ingestion rate.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "ingestion rate exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type entryRequest struct {
	CompanyID       string         `json:"company_id"`
	SourceID        string         `json:"source_id"`
	Fields          map[string]any `json:"fields"`
	SourceTimestamp *time.Time     `json:"source_timestamp,omitempty"`
}

func handleCreateEntry(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req entryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CompanyID == "" {
			writeError(w, http.StatusBadRequest, "company_id is required")
			return
		}
		if req.SourceID == "" {
			req.SourceID = "webhook"
		}

		entry := &model.RawEntry{
			CompanyID:       req.CompanyID,
			SourceID:        req.SourceID,
			Fields:          req.Fields,
			Status:          model.EntryPending,
			SourceTimestamp: req.SourceTimestamp,
		}
		if err := env.Store.SaveEntry(r.Context(), entry); err != nil {
			zap.L().Error("entry ingestion failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "save entry")
			return
		}
		writeJSON(w, http.StatusAccepted, entry)
	}
}

func handleProcessEntry(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := env.Pipeline.ProcessEntry(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleGetRecord(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := env.Store.GetRecord(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load record")
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

type correctionRequest struct {
	TargetID       string `json:"target_id"`
	Field          string `json:"field,omitempty"`
	Type           string `json:"type"`
	ProposedValue  string `json:"proposed_value"`
	Reason         string `json:"reason"`
	SubmittedBy    string `json:"submitted_by"`
	CompanyID      string `json:"company_id,omitempty"`
	BusinessImpact string `json:"business_impact,omitempty"`
	DataType       string `json:"data_type,omitempty"`
}

func handleSubmitCorrection(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req correctionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c, err := env.Corrections.Submit(r.Context(), correction.Submission{
			TargetID:       req.TargetID,
			Field:          req.Field,
			Type:           model.CorrectionType(req.Type),
			ProposedValue:  req.ProposedValue,
			Reason:         req.Reason,
			SubmittedBy:    req.SubmittedBy,
			CompanyID:      req.CompanyID,
			BusinessImpact: model.Impact(req.BusinessImpact),
			DataType:       model.DataCategory(req.DataType),
		})
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func handleCorrectionQueue(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		items, err := env.Corrections.Queue(r.Context(), correction.Filter{
			CompanyID: q.Get("company_id"),
			Status:    model.CorrectionStatus(q.Get("status")),
			Impact:    model.Impact(q.Get("impact")),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list corrections")
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

type actionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

func handleCorrectionAction(env *env, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Actor == "" {
			writeError(w, http.StatusBadRequest, "actor is required")
			return
		}

		id := chi.URLParam(r, "id")
		var (
			c   *model.Correction
			err error
		)
		switch action {
		case "approve":
			c, err = env.Corrections.Approve(r.Context(), id, req.Actor)
		case "reject":
			c, err = env.Corrections.Reject(r.Context(), id, req.Actor, req.Reason)
		case "implement":
			c, err = env.Corrections.Implement(r.Context(), id, req.Actor)
		case "revert":
			c, err = env.Corrections.Revert(r.Context(), id, req.Actor)
		}
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleListAlerts(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		alerts, err := env.Store.ListAlerts(r.Context(), store.AlertFilter{
			CompanyID: q.Get("company_id"),
			Status:    model.AlertStatus(q.Get("status")),
			Level:     model.Level(q.Get("level")),
			Limit:     limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list alerts")
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

func handleAlertAcknowledge(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Actor == "" {
			writeError(w, http.StatusBadRequest, "actor is required")
			return
		}
		alert, err := env.Alerts.Acknowledge(r.Context(), chi.URLParam(r, "id"), req.Actor)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, alert)
	}
}

func handleAlertResolve(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Actor == "" {
			writeError(w, http.StatusBadRequest, "actor is required")
			return
		}
		alert, err := env.Alerts.Resolve(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Notes)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, alert)
	}
}

func handleLineageGraph(env *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		direction := model.GraphDirection(q.Get("direction"))
		if direction == "" {
			direction = model.DirectionFull
		}
		depth, _ := strconv.Atoi(q.Get("depth"))
		if depth == 0 {
			depth = cfg.Lineage.DefaultDepth
		}

		g, err := env.Recorder.Graph(r.Context(), chi.URLParam(r, "id"), direction, depth)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
