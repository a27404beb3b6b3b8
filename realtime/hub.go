// Package realtime pushes collection and checkout changes to websocket clients
package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/olahol/melody"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/metrics"
	"github.com/giygas/pharmaprice-api/reconcile"
)

// Event types sent to clients
const (
	EventCollection = "collection"
	EventCheckout   = "checkout"
	EventAnalysis   = "analysis"
)

// Event is the message written to every connected client
type Event struct {
	Type       string    `json:"type"`
	Collection string    `json:"collection,omitempty"`
	Payload    any       `json:"payload"`
	At         time.Time `json:"at"`
}

type Hub struct {
	m *melody.Melody
}

func NewHub() *Hub {
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		metrics.RealtimeSessions.Inc()
		logging.Debug("Realtime client connected", "remote_addr", s.Request.RemoteAddr)
	})
	m.HandleDisconnect(func(s *melody.Session) {
		metrics.RealtimeSessions.Dec()
		logging.Debug("Realtime client disconnected", "remote_addr", s.Request.RemoteAddr)
	})
	m.HandleError(func(s *melody.Session, err error) {
		logging.Debug("Realtime session error", "error", err)
	})
	// the feed is one-way, client messages are dropped

	return &Hub{m: m}
}

// ServeHTTP upgrades the request and blocks until the client goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.m.HandleRequest(w, r); err != nil {
		logging.Warn("Failed to upgrade websocket", "error", err)
	}
}

func (h *Hub) broadcast(e Event) {
	if h.m.Len() == 0 {
		return
	}
	msg, err := json.Marshal(e)
	if err != nil {
		logging.Error("Failed to encode realtime event", "type", e.Type, "error", err)
		return
	}
	if err := h.m.Broadcast(msg); err != nil {
		logging.Warn("Failed to broadcast realtime event", "type", e.Type, "error", err)
	}
}

// CollectionHook broadcasts collection mutations
func (h *Hub) CollectionHook(collection string, records []entities.PriceRecord) {
	h.broadcast(Event{Type: EventCollection, Collection: collection, Payload: records, At: time.Now()})
}

// CheckoutHook broadcasts checkout transitions
func (h *Hub) CheckoutHook(c reconcile.Checkout) {
	h.broadcast(Event{Type: EventCheckout, Payload: c, At: time.Now()})
}

// AnalysisCompleted announces a new latest analysis
func (h *Hub) AnalysisCompleted(requestID, medicationName string) {
	h.broadcast(Event{
		Type:    EventAnalysis,
		Payload: map[string]string{"requestId": requestID, "medicationName": medicationName},
		At:      time.Now(),
	})
}

// Sessions returns the number of connected clients
func (h *Hub) Sessions() int {
	return h.m.Len()
}

// Close disconnects every client
func (h *Hub) Close() error {
	return h.m.Close()
}
