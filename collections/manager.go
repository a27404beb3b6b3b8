// Package collections owns the three user collections of price records:
// search history, saved prescriptions and the basket.
package collections

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/kvstore"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/metrics"
)

// Collection names double as the storage keys
const (
	History = "history"
	Saved   = "savedPrescriptions"
	Basket  = "basket"
)

// HistoryLimit is the maximum number of history entries kept
const HistoryLimit = 10

// MutationHook receives the full new contents of a collection after a
// successful mutation. Hooks run synchronously, in registration order, while
// the manager lock is held, and must not call back into the Manager.
type MutationHook func(collection string, records []entities.PriceRecord)

// Manager is the only write surface of the collections. Every record is
// copied on the way in and on the way out.
type Manager struct {
	mu               sync.Mutex
	history          []entities.PriceRecord
	saved            []entities.PriceRecord
	basket           []entities.PriceRecord
	basketGeneration uint64
	// basketStamps records when each basket entry was added; a removed and
	// re-added name gets a new stamp
	basketStamps map[string]uint64
	stampSeq     uint64
	hooks            []MutationHook
}

func NewManager(hooks ...MutationHook) *Manager {
	return &Manager{hooks: hooks, basketStamps: make(map[string]uint64)}
}

// OnMutation registers another hook. Call it before serving requests.
func (m *Manager) OnMutation(hook MutationHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Load reads the three collections from store. A missing key or an
// undecodable value leaves that collection empty. Hooks are not invoked.
func (m *Manager) Load(ctx context.Context, store kvstore.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = loadCollection(ctx, store, History)
	m.saved = loadCollection(ctx, store, Saved)
	m.basket = loadCollection(ctx, store, Basket)

	m.history = dedupByName(m.history)
	if len(m.history) > HistoryLimit {
		m.history = m.history[:HistoryLimit]
	}
	m.saved = dedupByName(m.saved)
	m.basket = dedupByName(m.basket)
	clear(m.basketStamps)
	for _, r := range m.basket {
		m.stamp(r.MedicationName)
	}

	for name, records := range map[string][]entities.PriceRecord{History: m.history, Saved: m.saved, Basket: m.basket} {
		metrics.CollectionSize.WithLabelValues(name).Set(float64(len(records)))
	}

	logging.Info("Collections loaded",
		"backend", store.Backend(),
		"history", len(m.history),
		"saved", len(m.saved),
		"basket", len(m.basket),
	)
}

func loadCollection(ctx context.Context, store kvstore.Store, key string) []entities.PriceRecord {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("load").Inc()
		logging.Warn("Failed to read collection, starting empty", "collection", key, "error", err)
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	var records []entities.PriceRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		metrics.PersistenceErrors.WithLabelValues("decode").Inc()
		logging.Warn("Stored collection is not valid JSON, starting empty", "collection", key, "error", err)
		return nil
	}
	return records
}

func dedupByName(records []entities.PriceRecord) []entities.PriceRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		if seen[r.MedicationName] {
			continue
		}
		seen[r.MedicationName] = true
		out = append(out, r)
	}
	return out
}

// notify runs the hooks with a private copy of the collection (caller holds mu)
func (m *Manager) notify(collection string, records []entities.PriceRecord) {
	for _, hook := range m.hooks {
		hook(collection, cloneAll(records))
	}
}

func cloneAll(records []entities.PriceRecord) []entities.PriceRecord {
	out := make([]entities.PriceRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// stamp marks name as freshly added to the basket (caller holds mu)
func (m *Manager) stamp(name string) {
	if m.basketStamps == nil {
		m.basketStamps = make(map[string]uint64)
	}
	m.stampSeq++
	m.basketStamps[name] = m.stampSeq
}

func indexOf(records []entities.PriceRecord, name string) int {
	return slices.IndexFunc(records, func(r entities.PriceRecord) bool {
		return r.MedicationName == name
	})
}

// RecordHistory moves record to the front of the history, replacing any
// entry with the same name, and drops entries past HistoryLimit.
func (m *Manager) RecordHistory(record entities.PriceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]entities.PriceRecord, 0, HistoryLimit)
	next = append(next, record.Clone())
	for _, r := range m.history {
		if r.MedicationName == record.MedicationName {
			continue
		}
		if len(next) == HistoryLimit {
			break
		}
		next = append(next, r)
	}
	m.history = next
	m.notify(History, m.history)
}

func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return
	}
	m.history = nil
	m.notify(History, m.history)
}

// ToggleSaved removes the record from the saved prescriptions when one with
// the same name is present, otherwise appends it. Returns the new saved state.
func (m *Manager) ToggleSaved(record entities.PriceRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := true
	if i := indexOf(m.saved, record.MedicationName); i >= 0 {
		m.saved = slices.Delete(m.saved, i, i+1)
		saved = false
	} else {
		m.saved = append(m.saved, record.Clone())
	}
	m.notify(Saved, m.saved)
	return saved
}

// ReplaceSaved swaps the saved record carrying the same name for record.
// Returns false when no such saved record exists.
func (m *Manager) ReplaceSaved(record entities.PriceRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.saved, record.MedicationName)
	if i < 0 {
		return false
	}
	m.saved[i] = record.Clone()
	m.notify(Saved, m.saved)
	return true
}

// AddToBasket appends record unless the basket already holds that name.
func (m *Manager) AddToBasket(record entities.PriceRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if indexOf(m.basket, record.MedicationName) >= 0 {
		return false
	}
	m.basket = append(m.basket, record.Clone())
	m.stamp(record.MedicationName)
	m.notify(Basket, m.basket)
	return true
}

// AddAllSavedToBasket adds every saved record missing from the basket and
// returns how many were added.
func (m *Manager) AddAllSavedToBasket() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, r := range m.saved {
		if indexOf(m.basket, r.MedicationName) >= 0 {
			continue
		}
		m.basket = append(m.basket, r.Clone())
		m.stamp(r.MedicationName)
		added++
	}
	if added > 0 {
		m.notify(Basket, m.basket)
	}
	return added
}

// RemoveFromBasket removes every entry whose name is listed and returns the
// number removed.
func (m *Manager) RemoveFromBasket(names ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.basket)
	m.basket = slices.DeleteFunc(m.basket, func(r entities.PriceRecord) bool {
		return slices.Contains(names, r.MedicationName)
	})
	removed := before - len(m.basket)
	if removed == 0 {
		return 0
	}
	for _, name := range names {
		delete(m.basketStamps, name)
	}
	if len(m.basket) == 0 {
		m.basketGeneration++
	}
	m.notify(Basket, m.basket)
	return removed
}

func (m *Manager) ClearBasket() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.basket) == 0 {
		return
	}
	m.basket = nil
	clear(m.basketStamps)
	m.basketGeneration++
	m.notify(Basket, m.basket)
}

func (m *Manager) History() []entities.PriceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.history)
}

func (m *Manager) Saved() []entities.PriceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.saved)
}

func (m *Manager) Basket() []entities.PriceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.basket)
}

// Find returns a copy of the named record from a collection
func (m *Manager) Find(collection, name string) (entities.PriceRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []entities.PriceRecord
	switch collection {
	case History:
		records = m.history
	case Saved:
		records = m.saved
	case Basket:
		records = m.basket
	}
	if i := indexOf(records, name); i >= 0 {
		return records[i].Clone(), true
	}
	return entities.PriceRecord{}, false
}

func (m *Manager) IsSaved(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return indexOf(m.saved, name) >= 0
}

func (m *Manager) InBasket(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return indexOf(m.basket, name) >= 0
}

// BasketSnapshot returns a copy of the basket together with the add stamp of
// each entry, read under one lock. Stamps only grow: an entry that was
// removed and added back never gets its old stamp again.
func (m *Manager) BasketSnapshot() ([]entities.PriceRecord, map[string]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.basket), maps.Clone(m.basketStamps)
}

// BasketNames returns the basket medication names in basket order
func (m *Manager) BasketNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.basket))
	for i, r := range m.basket {
		names[i] = r.MedicationName
	}
	return names
}

// BasketGeneration changes every time a mutation leaves the basket empty.
func (m *Manager) BasketGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.basketGeneration
}

// Counts reports the size of each collection
func (m *Manager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		History: len(m.history),
		Saved:   len(m.saved),
		Basket:  len(m.basket),
	}
}
