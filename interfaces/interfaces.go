// Package interfaces defines core abstractions for the pharmacy price API
// to keep the HTTP layer, the scheduler and the health checks testable.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/pharmaprice-api/analysis"
	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/reconcile"
)

// Analyzer defines the contract for price analyses against the oracle.
// Only one analysis runs at a time; the others fail fast.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	SwitchToGeneric(ctx context.Context, record entities.PriceRecord, loc *entities.Location) (*analysis.Result, error)
	Refresh(ctx context.Context, medicationName string) (*analysis.Result, error)

	Latest() (*analysis.Result, bool)
	InProgress() bool
	LastSuccess() time.Time
}

// CollectionStore defines the contract for the history, saved prescriptions
// and basket collections, all keyed on the medication name.
type CollectionStore interface {
	// Read access, every call returns independent copies
	History() []entities.PriceRecord
	Saved() []entities.PriceRecord
	Basket() []entities.PriceRecord
	Find(collection, name string) (entities.PriceRecord, bool)
	IsSaved(name string) bool
	InBasket(name string) bool
	Counts() map[string]int

	// Mutations
	ClearHistory()
	ToggleSaved(record entities.PriceRecord) bool
	ReplaceSaved(record entities.PriceRecord) bool
	AddToBasket(record entities.PriceRecord) bool
	AddAllSavedToBasket() int
	RemoveFromBasket(names ...string) int
	ClearBasket()
}

// CheckoutEngine defines the contract for basket reconciliation and the
// checkout selection.
type CheckoutEngine interface {
	State() reconcile.Checkout
	SelectPharmacy(pharmacy string) (reconcile.Checkout, error)
	ToggleItem(name string) (reconcile.Checkout, error)
	ToggleSelectAll() (reconcile.Checkout, error)
	Cancel() (reconcile.Checkout, error)
	Confirm() (*reconcile.Confirmation, error)

	TotalAt(pharmacy string, itemNames []string) string
	Summary() reconcile.Summary
}

// RefreshReport summarizes one run of the saved prescriptions refresh
type RefreshReport struct {
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration_ns"`
}

// RefreshTracker defines the contract for the refresh state shared by the
// scheduler and the health checks.
type RefreshTracker interface {
	GetLastRefreshed() time.Time
	GetLastReport() RefreshReport
	IsRefreshing() bool
	GetServerStartTime() time.Time

	// BeginRefresh returns false when a refresh is already running
	BeginRefresh() bool
	EndRefresh(report RefreshReport)
}

// Scheduler defines the contract for background jobs.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
type HTTPHandler interface {
	// Analysis
	Analyze(w http.ResponseWriter, r *http.Request)
	SwitchToGeneric(w http.ResponseWriter, r *http.Request)
	LatestAnalysis(w http.ResponseWriter, r *http.Request)

	// Collections
	ServeHistory(w http.ResponseWriter, r *http.Request)
	ClearHistory(w http.ResponseWriter, r *http.Request)
	ServeSaved(w http.ResponseWriter, r *http.Request)
	ToggleSaved(w http.ResponseWriter, r *http.Request)
	ServeBasket(w http.ResponseWriter, r *http.Request)
	AddToBasket(w http.ResponseWriter, r *http.Request)
	AddSavedToBasket(w http.ResponseWriter, r *http.Request)
	RemoveFromBasket(w http.ResponseWriter, r *http.Request)
	ClearBasket(w http.ResponseWriter, r *http.Request)

	// Reconciliation
	BasketSummary(w http.ResponseWriter, r *http.Request)
	BasketTotal(w http.ResponseWriter, r *http.Request)
	ServeCheckout(w http.ResponseWriter, r *http.Request)
	SelectPharmacy(w http.ResponseWriter, r *http.Request)
	ToggleCheckoutItem(w http.ResponseWriter, r *http.Request)
	ToggleSelectAll(w http.ResponseWriter, r *http.Request)
	CancelCheckout(w http.ResponseWriter, r *http.Request)
	ConfirmCheckout(w http.ResponseWriter, r *http.Request)

	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns the current status, its details and the HTTP code to answer with
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled refresh of the saved prescriptions
	CalculateNextUpdate() time.Time
}

// InputValidator defines the contract for user input validation.
type InputValidator interface {
	// ValidateQuery validates the free text sent to an analysis
	ValidateQuery(input string) error

	// ValidateMedicationName validates a collection key and returns it trimmed
	ValidateMedicationName(input string) (string, error)

	// ValidatePharmacyName validates a pharmacy picked for checkout and returns it trimmed
	ValidatePharmacyName(input string) (string, error)

	// ValidateImage checks the declared type and decoded size of an uploaded image
	ValidateImage(mimeType string, size int) error

	// ValidateLocation checks coordinate bounds
	ValidateLocation(loc *entities.Location) error

	// ValidateRecord checks a record posted back by the client
	ValidateRecord(record *entities.PriceRecord) error
}
