// Package handlers provides HTTP request handlers for the pharmacy price API endpoints.
// This file holds the handler type, the response helpers and the health endpoint.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/pharmaprice-api/analysis"
	"github.com/giygas/pharmaprice-api/interfaces"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/reconcile"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// Dependencies are the components the handlers delegate to
type Dependencies struct {
	Analyzer    interfaces.Analyzer
	Collections interfaces.CollectionStore
	Checkout    interfaces.CheckoutEngine
	Health      interfaces.HealthChecker
	Validator   interfaces.InputValidator

	// OracleTimeout bounds every request that reaches the oracle
	OracleTimeout time.Duration
	// MaxUploadBytes bounds multipart forms kept in memory
	MaxUploadBytes int64
	StartTime      time.Time
}

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	analyzer    interfaces.Analyzer
	collections interfaces.CollectionStore
	checkout    interfaces.CheckoutEngine
	health      interfaces.HealthChecker
	validator   interfaces.InputValidator

	oracleTimeout  time.Duration
	maxUploadBytes int64
	startTime      time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(deps Dependencies) interfaces.HTTPHandler {
	if deps.OracleTimeout <= 0 {
		deps.OracleTimeout = 90 * time.Second
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}

	return &HTTPHandlerImpl{
		analyzer:       deps.Analyzer,
		collections:    deps.Collections,
		checkout:       deps.Checkout,
		health:         deps.Health,
		validator:      deps.Validator,
		oracleTimeout:  deps.OracleTimeout,
		maxUploadBytes: deps.MaxUploadBytes,
		startTime:      deps.StartTime,
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	NextRefresh   string         `json:"next_refresh,omitempty"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Debug("Failed to write response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

// respondWithDomainError maps analysis and checkout errors to HTTP statuses
func (h *HTTPHandlerImpl) respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analysis.ErrValidation):
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		h.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, analysis.ErrAnalysisFailed):
		h.RespondWithError(w, http.StatusBadGateway, analysis.ErrAnalysisFailed.Error())
	case errors.Is(err, reconcile.ErrNothingSelected):
		h.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, reconcile.ErrInvalidTransition), errors.Is(err, reconcile.ErrEmptyBasket):
		h.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reconcile.ErrUnknownItem):
		h.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reconcile.ErrNoPharmacy):
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logging.Error("Unhandled error", "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a single JSON document from the request body
func (h *HTTPHandlerImpl) decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("invalid JSON body: trailing data")
	}
	return nil
}

// pathParam returns a decoded URL parameter. chi matches on the raw path when
// the request escapes reserved characters, as in "Co-codamol 30%2F500".
func pathParam(r *http.Request, key string) string {
	param := chi.URLParam(r, key)
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(param); err == nil {
			return unescaped
		}
	}
	return param
}

// formatUptimeHuman formats duration into a human-readable string
func (h *HTTPHandlerImpl) formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)
	status, details, httpStatus := h.health.HealthCheck(r.Context())

	response := HealthResponse{
		Status:        status,
		Uptime:        h.formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}
	if next := h.health.CalculateNextUpdate(); !next.IsZero() {
		response.NextRefresh = next.Format(time.RFC3339)
	}

	h.RespondWithJSON(w, httpStatus, response)
}
