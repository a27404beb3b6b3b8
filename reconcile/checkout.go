package reconcile

import (
	"errors"
	"strings"
	"sync"

	"github.com/giygas/pharmaprice-api/currency"
	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/metrics"
)

var (
	ErrInvalidTransition = errors.New("operation not allowed in the current checkout state")
	ErrEmptyBasket       = errors.New("basket is empty")
	ErrNothingSelected   = errors.New("nothing selected")
	ErrUnknownItem       = errors.New("item is not in the basket")
	ErrNoPharmacy        = errors.New("pharmacy name is required")
)

type State string

const (
	Browsing  State = "browsing"
	Reviewing State = "reviewing"
)

// Basket is the part of the collection manager the engine reads and mutates.
// BasketSnapshot returns the entries with a stamp that changes whenever a
// name is removed and added back.
type Basket interface {
	Basket() []entities.PriceRecord
	BasketSnapshot() ([]entities.PriceRecord, map[string]uint64)
	RemoveFromBasket(names ...string) int
	BasketGeneration() uint64
}

// Checkout is a snapshot of the selection state
type Checkout struct {
	State         State    `json:"state"`
	Pharmacy      string   `json:"pharmacy,omitempty"`
	SelectedItems []string `json:"selectedItems"`
	AllSelected   bool     `json:"allSelected"`
	Total         string   `json:"total,omitempty"`
}

// Confirmation is returned by a successful Confirm
type Confirmation struct {
	Pharmacy       string   `json:"pharmacy"`
	ConfirmedItems []string `json:"confirmedItems"`
	Total          string   `json:"total"`
	BasketEmpty    bool     `json:"basketEmpty"`
}

// ChangeHook observes checkout transitions. It runs with the engine lock held.
type ChangeHook func(Checkout)

// Engine owns the checkout selection for one basket. The selection is kept a
// subset of the live basket: each selected item remembers the basket entry it
// was selected from, so an item removed from the basket never comes back
// selected, even when it is added again. The selection is dropped entirely
// once the basket has been emptied.
type Engine struct {
	mu        sync.Mutex
	basket    Basket
	formatter *currency.Formatter
	hooks     []ChangeHook

	pharmacy   string
	selected   map[string]uint64 // name to basket stamp
	generation uint64
}

func NewEngine(basket Basket, formatter *currency.Formatter) *Engine {
	if formatter == nil {
		formatter = currency.DefaultFormatter()
	}
	return &Engine{basket: basket, formatter: formatter}
}

// OnChange registers a hook called after each checkout transition
func (e *Engine) OnChange(hook ChangeHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, hook)
}

func (e *Engine) reviewing() bool {
	return e.selected != nil
}

func (e *Engine) reset() {
	e.pharmacy = ""
	e.selected = nil
}

// sync reconciles the selection with the live basket (caller holds mu)
func (e *Engine) sync() ([]entities.PriceRecord, map[string]uint64) {
	records, stamps := e.basket.BasketSnapshot()
	if !e.reviewing() {
		return records, stamps
	}

	if e.basket.BasketGeneration() != e.generation || len(records) == 0 {
		logging.Debug("Basket emptied, discarding checkout selection", "pharmacy", e.pharmacy)
		e.reset()
		return records, stamps
	}

	for name, stamp := range e.selected {
		if current, ok := stamps[name]; !ok || current != stamp {
			delete(e.selected, name)
		}
	}
	return records, stamps
}

func (e *Engine) isSelected(name string) bool {
	_, ok := e.selected[name]
	return ok
}

// snapshot builds the public view (caller holds mu and has synced)
func (e *Engine) snapshot(records []entities.PriceRecord) Checkout {
	if !e.reviewing() {
		return Checkout{State: Browsing, SelectedItems: []string{}}
	}
	selected := e.selectedNames(records)
	return Checkout{
		State:         Reviewing,
		Pharmacy:      e.pharmacy,
		SelectedItems: selected,
		AllSelected:   len(selected) == len(records),
		Total:         e.formatter.Format(TotalAt(e.pharmacy, records, selected)),
	}
}

// selectedNames lists the selection in basket order
func (e *Engine) selectedNames(records []entities.PriceRecord) []string {
	names := []string{}
	for _, r := range records {
		if e.isSelected(r.MedicationName) {
			names = append(names, r.MedicationName)
		}
	}
	return names
}

func (e *Engine) changed(records []entities.PriceRecord) Checkout {
	c := e.snapshot(records)
	for _, hook := range e.hooks {
		hook(c)
	}
	return c
}

// State returns the current checkout view
func (e *Engine) State() Checkout {
	e.mu.Lock()
	defer e.mu.Unlock()
	records, _ := e.sync()
	return e.snapshot(records)
}

// SelectPharmacy enters review for pharmacy with every basket item selected
func (e *Engine) SelectPharmacy(pharmacy string) (Checkout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, stamps := e.sync()
	if e.reviewing() {
		return e.snapshot(records), ErrInvalidTransition
	}
	if strings.TrimSpace(pharmacy) == "" {
		return e.snapshot(records), ErrNoPharmacy
	}
	if len(records) == 0 {
		return e.snapshot(records), ErrEmptyBasket
	}

	e.pharmacy = pharmacy
	e.generation = e.basket.BasketGeneration()
	e.selected = make(map[string]uint64, len(records))
	for _, r := range records {
		e.selected[r.MedicationName] = stamps[r.MedicationName]
	}
	return e.changed(records), nil
}

// ToggleItem flips one item in or out of the selection
func (e *Engine) ToggleItem(name string) (Checkout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, stamps := e.sync()
	if !e.reviewing() {
		return e.snapshot(records), ErrInvalidTransition
	}
	stamp, ok := stamps[name]
	if !ok {
		return e.snapshot(records), ErrUnknownItem
	}

	if e.isSelected(name) {
		delete(e.selected, name)
	} else {
		e.selected[name] = stamp
	}
	return e.changed(records), nil
}

// ToggleSelectAll selects the whole basket, or clears the selection when it
// already holds the whole basket
func (e *Engine) ToggleSelectAll() (Checkout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, stamps := e.sync()
	if !e.reviewing() {
		return e.snapshot(records), ErrInvalidTransition
	}

	if len(e.selected) == len(records) {
		clear(e.selected)
	} else {
		for _, r := range records {
			e.selected[r.MedicationName] = stamps[r.MedicationName]
		}
	}
	return e.changed(records), nil
}

// Cancel leaves review without touching the basket
func (e *Engine) Cancel() (Checkout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, _ := e.sync()
	if !e.reviewing() {
		return e.snapshot(records), ErrInvalidTransition
	}
	e.reset()
	return e.changed(records), nil
}

// Confirm removes the selected items from the basket and returns to browsing.
// An empty selection is reported as ErrNothingSelected and changes nothing.
func (e *Engine) Confirm() (*Confirmation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, _ := e.sync()
	if !e.reviewing() {
		return nil, ErrInvalidTransition
	}

	selected := e.selectedNames(records)
	if len(selected) == 0 {
		return nil, ErrNothingSelected
	}

	confirmation := &Confirmation{
		Pharmacy:       e.pharmacy,
		ConfirmedItems: selected,
		Total:          e.formatter.Format(TotalAt(e.pharmacy, records, selected)),
	}

	e.basket.RemoveFromBasket(selected...)
	e.reset()

	remaining := e.basket.Basket()
	confirmation.BasketEmpty = len(remaining) == 0
	metrics.CheckoutConfirmations.Inc()
	logging.Info("Checkout confirmed",
		"pharmacy", confirmation.Pharmacy,
		"items", len(selected),
		"total", confirmation.Total,
		"basket_empty", confirmation.BasketEmpty,
	)

	e.changed(remaining)
	return confirmation, nil
}

// TotalAt formats the total at pharmacy for itemNames. With no names it uses
// the checkout selection while reviewing, otherwise the whole basket.
func (e *Engine) TotalAt(pharmacy string, itemNames []string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, _ := e.sync()
	if len(itemNames) == 0 {
		if e.reviewing() {
			itemNames = e.selectedNames(records)
		} else {
			itemNames = recordNames(records)
		}
	}
	return e.formatter.Format(TotalAt(pharmacy, records, itemNames))
}
