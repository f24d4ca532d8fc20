// Package handlers implements the HTTP handlers for the modelmux gateway.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/modelmux/modelmux/internal/catalog"
	"github.com/modelmux/modelmux/internal/dispatch"
	"github.com/modelmux/modelmux/internal/metrics"
	"github.com/modelmux/modelmux/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Catalog    *catalog.Catalog
	Dispatcher *dispatch.Dispatcher
	Recorder   *metrics.Recorder
}

// New creates a new Handlers instance with all dependencies.
func New(cat *catalog.Catalog, d *dispatch.Dispatcher, rec *metrics.Recorder) *Handlers {
	return &Handlers{Catalog: cat, Dispatcher: d, Recorder: rec}
}

// ── Chat ─────────────────────────────────────────────────────

func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	name := chi.URLParam(r, "name")
	modelID := provider + "/" + name

	var req models.LLMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondModelError(w, models.NewError(models.KindConversion, "invalid request body: %v", err))
		return
	}

	resp, err := h.Dispatcher.Chat(r.Context(), modelID, &req)
	if err != nil {
		respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ── Registry ─────────────────────────────────────────────────

type listModelsRequest struct {
	Provider string `json:"provider,omitempty"`
}

func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	var req listModelsRequest
	if r.Body != nil {
		// An empty body means all providers.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"models": h.Catalog.ListModels(req.Provider),
	})
}

func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"providers": h.Catalog.ListProviders(),
	})
}

func (h *Handlers) ModelInfo(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model_id")
	if modelID == "" {
		respondModelError(w, models.NewError(models.KindConversion, "model_id query parameter is required"))
		return
	}
	m, err := h.Catalog.GetModel(modelID)
	if err != nil {
		respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// ── Stats ────────────────────────────────────────────────────

type statsRequest struct {
	ModelKey  string     `json:"model_key"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit"`
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondModelError(w, models.NewError(models.KindConversion, "invalid request body: %v", err))
		return
	}
	if req.ModelKey == "" {
		respondModelError(w, models.NewError(models.KindConversion, "model_key is required"))
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	stats, records, err := h.Recorder.GetLogs(req.ModelKey, req.StartTime, req.EndTime, req.Limit)
	if err != nil {
		log.Error().Err(err).Str("model", req.ModelKey).Msg("Stats query failed")
		respondModelError(w, models.NewError(models.KindServiceCall, "stats query failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"stats":   stats,
		"records": records,
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondModelError writes the taxonomy error shape:
// {"detail": {"error": <kind>, "message": ..., "xml"?, "return_class"?}}
func respondModelError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	detail := map[string]any{
		"error":   string(kind),
		"message": err.Error(),
	}
	if e := models.AsError(err); e != nil && kind == models.KindStructuredResponse {
		detail["xml"] = e.RawText
		detail["return_class"] = e.ReturnClass
	}
	respondJSON(w, statusForKind(kind), map[string]any{"detail": detail})
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindConversion:
		return http.StatusBadRequest
	case models.KindCredentials:
		return http.StatusUnauthorized
	case models.KindModelNotFound:
		return http.StatusNotFound
	case models.KindThrottling:
		return http.StatusTooManyRequests
	case models.KindStructuredResponse:
		return http.StatusUnprocessableEntity
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
