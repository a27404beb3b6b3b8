package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/pharmaprice-api/analysis"
	"github.com/giygas/pharmaprice-api/collections"
	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/reconcile"
	"github.com/giygas/pharmaprice-api/validation"
)

// ============================================================================
// TEST DOUBLES
// ============================================================================

// fakeAnalyzer records what the handlers pass and answers with a canned result
type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	latest *analysis.Result

	lastRequest  analysis.Request
	lastRecord   entities.PriceRecord
	lastLocation *entities.Location
	hadDeadline  bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	_, f.hadDeadline = ctx.Deadline()
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	f.latest = f.result
	return f.result, nil
}

func (f *fakeAnalyzer) SwitchToGeneric(ctx context.Context, record entities.PriceRecord, loc *entities.Location) (*analysis.Result, error) {
	_, f.hadDeadline = ctx.Deadline()
	f.lastRecord = record
	f.lastLocation = loc
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) Refresh(ctx context.Context, name string) (*analysis.Result, error) {
	return f.result, f.err
}

func (f *fakeAnalyzer) Latest() (*analysis.Result, bool) {
	return f.latest, f.latest != nil
}

func (f *fakeAnalyzer) InProgress() bool { return false }

func (f *fakeAnalyzer) LastSuccess() time.Time { return time.Time{} }

type mockHealthChecker struct {
	status     string
	httpStatus int
	next       time.Time
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) (string, map[string]any, int) {
	return m.status, map[string]any{"oracle_configured": true}, m.httpStatus
}

func (m *mockHealthChecker) CalculateNextUpdate() time.Time { return m.next }

// ============================================================================
// FIXTURES
// ============================================================================

func amoxicillin() entities.PriceRecord {
	return entities.PriceRecord{
		MedicationName: "Amoxicillin 500mg",
		Dosage:         "500mg capsules",
		Offers: []entities.PharmacyOffer{
			{PharmacyName: "Boots", Price: "€4.50", StockStatus: entities.InStock},
			{PharmacyName: "Lloyds", Price: "€5.00", StockStatus: entities.LowStock},
		},
		CheapestPharmacy:   "Boots",
		GenericAlternative: &entities.GenericAlternative{Name: "Amoxicillin", Price: "€3.00", Savings: "€1.50"},
	}
}

func ibuprofen() entities.PriceRecord {
	return entities.PriceRecord{
		MedicationName: "Ibuprofen 200mg",
		Offers: []entities.PharmacyOffer{
			{PharmacyName: "Boots", Price: "€2.00", StockStatus: entities.InStock},
			{PharmacyName: "Lloyds", Price: "€2.50", StockStatus: entities.InStock},
		},
		CheapestPharmacy: "Boots",
	}
}

type testEnv struct {
	handler  *HTTPHandlerImpl
	analyzer *fakeAnalyzer
	manager  *collections.Manager
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	manager := collections.NewManager()
	analyzer := &fakeAnalyzer{result: &analysis.Result{
		RequestID:   "req-1",
		Record:      amoxicillin(),
		Citations:   []entities.CitationLink{},
		CompletedAt: time.Now(),
	}}

	handler := NewHTTPHandler(Dependencies{
		Analyzer:      analyzer,
		Collections:   manager,
		Checkout:      reconcile.NewEngine(manager, nil),
		Health:        &mockHealthChecker{status: "healthy", httpStatus: http.StatusOK},
		Validator:     validation.NewInputValidator(1 << 20),
		OracleTimeout: 5 * time.Second,
	}).(*HTTPHandlerImpl)

	r := chi.NewRouter()
	r.Post("/v1/analysis", handler.Analyze)
	r.Post("/v1/analysis/generic", handler.SwitchToGeneric)
	r.Get("/v1/analysis/latest", handler.LatestAnalysis)
	r.Get("/v1/history", handler.ServeHistory)
	r.Delete("/v1/history", handler.ClearHistory)
	r.Get("/v1/saved", handler.ServeSaved)
	r.Post("/v1/saved/toggle", handler.ToggleSaved)
	r.Get("/v1/basket", handler.ServeBasket)
	r.Post("/v1/basket", handler.AddToBasket)
	r.Post("/v1/basket/saved", handler.AddSavedToBasket)
	r.Delete("/v1/basket/{medicationName}", handler.RemoveFromBasket)
	r.Delete("/v1/basket", handler.ClearBasket)
	r.Get("/v1/basket/summary", handler.BasketSummary)
	r.Get("/v1/basket/total", handler.BasketTotal)
	r.Get("/v1/checkout", handler.ServeCheckout)
	r.Post("/v1/checkout/pharmacy", handler.SelectPharmacy)
	r.Post("/v1/checkout/items/{medicationName}/toggle", handler.ToggleCheckoutItem)
	r.Post("/v1/checkout/select-all", handler.ToggleSelectAll)
	r.Post("/v1/checkout/cancel", handler.CancelCheckout)
	r.Post("/v1/checkout/confirm", handler.ConfirmCheckout)
	r.Get("/health", handler.HealthCheck)

	return &testEnv{handler: handler, analyzer: analyzer, manager: manager, router: r}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

// ============================================================================
// CORE HANDLER TESTS
// ============================================================================

func TestNewHTTPHandler_Defaults(t *testing.T) {
	handler := NewHTTPHandler(Dependencies{}).(*HTTPHandlerImpl)

	if handler.oracleTimeout != 90*time.Second {
		t.Errorf("Expected default oracle timeout 90s, got %v", handler.oracleTimeout)
	}
	if handler.maxUploadBytes != 10<<20 {
		t.Errorf("Expected default upload limit 10MB, got %d", handler.maxUploadBytes)
	}
	if handler.startTime.IsZero() {
		t.Error("Expected start time to default to now")
	}
}

func TestRespondWithJSON(t *testing.T) {
	handler := newTestEnv(t).handler

	tests := []struct {
		name         string
		code         int
		payload      any
		expectedJSON string
	}{
		{"object", http.StatusOK, map[string]string{"message": "success"}, `{"message":"success"}`},
		{"created", http.StatusCreated, []string{"item1", "item2"}, `["item1","item2"]`},
		{"nil payload", http.StatusOK, nil, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			handler.RespondWithJSON(rr, tt.code, tt.payload)

			if rr.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Errorf("Expected Content-Type application/json; charset=utf-8, got %s", ct)
			}
			if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("Expected Cache-Control no-store, got %s", cc)
			}
			if rr.Body.String() != tt.expectedJSON {
				t.Errorf("Expected body %s, got %s", tt.expectedJSON, rr.Body.String())
			}
		})
	}
}

func TestRespondWithJSON_MarshalFailure(t *testing.T) {
	rr := httptest.NewRecorder()

	newTestEnv(t).handler.RespondWithJSON(rr, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}
}

func TestRespondWithError(t *testing.T) {
	rr := httptest.NewRecorder()

	newTestEnv(t).handler.RespondWithError(rr, http.StatusNotFound, "Basket item not found")

	body := decodeBody(t, rr)
	if body["error"] != "Not Found" || body["message"] != "Basket item not found" || body["code"] != float64(404) {
		t.Errorf("Unexpected error envelope: %v", body)
	}
}

func TestRespondWithDomainError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedMessage string
	}{
		{"validation", &analysis.ValidationError{Field: "query", Message: "a query or an image is required"}, http.StatusBadRequest, "query: a query or an image is required"},
		{"in progress", analysis.ErrAnalysisInProgress, http.StatusConflict, analysis.ErrAnalysisInProgress.Error()},
		{"analysis failed hides cause", fmt.Errorf("%w: oracle returned 500", analysis.ErrAnalysisFailed), http.StatusBadGateway, analysis.ErrAnalysisFailed.Error()},
		{"nothing selected", reconcile.ErrNothingSelected, http.StatusUnprocessableEntity, reconcile.ErrNothingSelected.Error()},
		{"invalid transition", reconcile.ErrInvalidTransition, http.StatusConflict, reconcile.ErrInvalidTransition.Error()},
		{"empty basket", reconcile.ErrEmptyBasket, http.StatusConflict, reconcile.ErrEmptyBasket.Error()},
		{"unknown item", reconcile.ErrUnknownItem, http.StatusNotFound, reconcile.ErrUnknownItem.Error()},
		{"no pharmacy", reconcile.ErrNoPharmacy, http.StatusBadRequest, reconcile.ErrNoPharmacy.Error()},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "Internal server error"},
	}

	handler := newTestEnv(t).handler
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/analysis", nil)

			handler.respondWithDomainError(rr, req, tt.err)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if msg := decodeBody(t, rr)["message"]; msg != tt.expectedMessage {
				t.Errorf("Expected message %q, got %q", tt.expectedMessage, msg)
			}
		})
	}
}

func TestDecodeJSON_RejectsTrailingData(t *testing.T) {
	handler := newTestEnv(t).handler
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pharmacy":"Boots"} {"pharmacy":"Lloyds"}`))

	var body selectPharmacyRequest
	if err := handler.decodeJSON(req, &body); err == nil {
		t.Error("Expected trailing data to be rejected")
	}
}

func TestFormatUptimeHuman(t *testing.T) {
	handler := newTestEnv(t).handler

	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{3 * time.Hour, "3h 0m 0s"},
		{26*time.Hour + 30*time.Minute + 1*time.Second, "1d 2h 30m 1s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := handler.formatUptimeHuman(tt.duration); got != tt.expected {
				t.Errorf("formatUptimeHuman(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

// ============================================================================
// HEALTH
// ============================================================================

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		checker        *mockHealthChecker
		expectedStatus int
		expectNext     bool
	}{
		{"healthy with schedule", &mockHealthChecker{status: "healthy", httpStatus: http.StatusOK, next: time.Now().Add(time.Hour)}, http.StatusOK, true},
		{"degraded without schedule", &mockHealthChecker{status: "degraded", httpStatus: http.StatusServiceUnavailable}, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.handler.health = tt.checker

			rr := env.do(t, http.MethodGet, "/health", "")

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}

			var resp HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode health response: %v", err)
			}
			if resp.Status != tt.checker.status {
				t.Errorf("Expected status %s, got %s", tt.checker.status, resp.Status)
			}
			if (resp.NextRefresh != "") != tt.expectNext {
				t.Errorf("Unexpected next_refresh %q", resp.NextRefresh)
			}
			if resp.Data["oracle_configured"] != true {
				t.Errorf("Expected checker details in data, got %v", resp.Data)
			}
			if _, ok := resp.System["goroutines"]; !ok {
				t.Error("Expected goroutine count in system details")
			}
		})
	}
}
