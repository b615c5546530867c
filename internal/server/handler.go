// Package server exposes the generation pipeline over HTTP for local
// tooling: a generation endpoint, history queries, health and metrics.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhanren/Malden-image-creator/internal/history"
	"github.com/zhanren/Malden-image-creator/internal/pipeline"
)

var version = "dev"

// Handler holds the dependencies for the HTTP endpoints.
type Handler struct {
	pipe    *pipeline.Pipeline
	store   *history.Store
	metrics *Metrics
	logger  *slog.Logger
}

// NewHandler builds the endpoint handler.
func NewHandler(pipe *pipeline.Pipeline, store *history.Store, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipe: pipe, store: store, metrics: metrics, logger: logger}
}

// GenerationRequest is the POST /v1/generations body.
type GenerationRequest struct {
	Prompt         string         `json:"prompt"`
	Width          int            `json:"width,omitempty"`
	Height         int            `json:"height,omitempty"`
	Model          string         `json:"model,omitempty"`
	Style          *string        `json:"style,omitempty"`
	NegativePrompt *string        `json:"negative_prompt,omitempty"`
	Seed           *int64         `json:"seed,omitempty"`
	Variables      map[string]any `json:"variables,omitempty"`
	DryRun         bool           `json:"dry_run,omitempty"`
}

// GenerationResponse is the POST /v1/generations reply.
type GenerationResponse struct {
	Status         string `json:"status"`
	ResolvedPrompt string `json:"resolved_prompt"`
	OutputPath     string `json:"output_path,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`
}

// Generate handles POST /v1/generations.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	ctx := h.pipe.NewContext(pipeline.ContextParams{
		Prompt:          req.Prompt,
		Width:           req.Width,
		Height:          req.Height,
		Model:           req.Model,
		Style:           req.Style,
		NegativePrompt:  req.NegativePrompt,
		Seed:            req.Seed,
		TemplateContext: req.Variables,
	})

	if req.DryRun {
		writeJSON(w, http.StatusOK, h.pipe.DryRun(ctx))
		return
	}

	result := h.pipe.Run(ctx)

	status := "success"
	if !result.Success {
		status = "failed"
	}
	if h.metrics != nil {
		h.metrics.RecordGeneration(ctx.Model, status, float64(result.DurationMs))
	}

	resp := GenerationResponse{
		Status:         status,
		ResolvedPrompt: ctx.ResolvedPrompt,
		OutputPath:     result.OutputPath,
		DurationMs:     result.DurationMs,
		Error:          result.ErrorMessage,
	}
	if result.Generation != nil {
		resp.RequestID = result.Generation.RequestID
	}

	code := http.StatusOK
	if !result.Success {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp)
}

// History handles GET /v1/history. The q, series and status parameters
// filter the listing, limit caps it.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	filter := history.Filter{
		Prompt: r.URL.Query().Get("q"),
		Series: r.URL.Query().Get("series"),
		Status: r.URL.Query().Get("status"),
	}
	var entries []history.Entry
	var err error
	if filter != (history.Filter{}) {
		entries, err = h.store.Search(filter)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err = h.store.List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HistoryStats handles GET /v1/history/stats.
func (h *Handler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":             stats.Total,
		"succeeded":         stats.Succeeded,
		"failed":            stats.Failed,
		"by_model":          stats.ByModel,
		"series_count":      stats.SeriesCount,
		"total_duration_ms": stats.TotalDurationMs,
		"avg_duration_ms":   stats.AvgDurationMs,
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

// NewRouter wires the endpoints onto a chi router. metricsHandler may
// be nil to disable the /metrics endpoint.
func NewRouter(h *Handler, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", h.Health)
	r.Post("/v1/generations", h.Generate)
	r.Get("/v1/history", h.History)
	r.Get("/v1/history/stats", h.HistoryStats)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	return r
}

// MetricsHandler returns the default promhttp handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
