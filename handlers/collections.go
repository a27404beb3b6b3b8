package handlers

import (
	"fmt"
	"net/http"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/logging"
)

type collectionResponse struct {
	Items []entities.PriceRecord `json:"items"`
	Count int                    `json:"count"`
}

type toggleSavedResponse struct {
	MedicationName string `json:"medicationName"`
	Saved          bool   `json:"saved"`
}

type basketChangeResponse struct {
	Changed bool                   `json:"changed"`
	Count   int                    `json:"count"`
	Items   []entities.PriceRecord `json:"items"`
}

func orEmpty(items []entities.PriceRecord) []entities.PriceRecord {
	if items == nil {
		return []entities.PriceRecord{}
	}
	return items
}

func newCollectionResponse(items []entities.PriceRecord) collectionResponse {
	return collectionResponse{Items: orEmpty(items), Count: len(items)}
}

// ServeHistory returns the recent analyses, most recent first
func (h *HTTPHandlerImpl) ServeHistory(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, newCollectionResponse(h.collections.History()))
}

// ClearHistory empties the history
func (h *HTTPHandlerImpl) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.collections.ClearHistory()
	h.RespondWithJSON(w, http.StatusOK, newCollectionResponse(nil))
}

// ServeSaved returns the saved prescriptions
func (h *HTTPHandlerImpl) ServeSaved(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, newCollectionResponse(h.collections.Saved()))
}

// ToggleSaved saves the posted record, or unsaves it when already saved
func (h *HTTPHandlerImpl) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	record, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}

	saved := h.collections.ToggleSaved(record)
	h.RespondWithJSON(w, http.StatusOK, toggleSavedResponse{
		MedicationName: record.MedicationName,
		Saved:          saved,
	})
}

// ServeBasket returns the basket items
func (h *HTTPHandlerImpl) ServeBasket(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, newCollectionResponse(h.collections.Basket()))
}

// AddToBasket adds the posted record. Adding a name already in the basket changes nothing.
func (h *HTTPHandlerImpl) AddToBasket(w http.ResponseWriter, r *http.Request) {
	record, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}

	added := h.collections.AddToBasket(record)
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	basket := orEmpty(h.collections.Basket())
	h.RespondWithJSON(w, status, basketChangeResponse{Changed: added, Count: len(basket), Items: basket})
}

// AddSavedToBasket adds every saved prescription missing from the basket
func (h *HTTPHandlerImpl) AddSavedToBasket(w http.ResponseWriter, r *http.Request) {
	added := h.collections.AddAllSavedToBasket()
	basket := orEmpty(h.collections.Basket())
	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"added": added,
		"count": len(basket),
		"items": basket,
	})
}

// RemoveFromBasket removes one item by name
func (h *HTTPHandlerImpl) RemoveFromBasket(w http.ResponseWriter, r *http.Request) {
	param := pathParam(r, "medicationName")
	name, err := h.validator.ValidateMedicationName(param)
	if err != nil {
		logging.Warn("Unusual user input", "medicationName", param)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.collections.RemoveFromBasket(name) == 0 {
		h.RespondWithError(w, http.StatusNotFound, fmt.Sprintf("%s is not in the basket", name))
		return
	}

	basket := orEmpty(h.collections.Basket())
	h.RespondWithJSON(w, http.StatusOK, basketChangeResponse{Changed: true, Count: len(basket), Items: basket})
}

// ClearBasket empties the basket
func (h *HTTPHandlerImpl) ClearBasket(w http.ResponseWriter, r *http.Request) {
	h.collections.ClearBasket()
	h.RespondWithJSON(w, http.StatusOK, newCollectionResponse(nil))
}

// decodeRecord reads and validates a record body, answering 400 itself on failure
func (h *HTTPHandlerImpl) decodeRecord(w http.ResponseWriter, r *http.Request) (entities.PriceRecord, bool) {
	var record entities.PriceRecord
	if err := h.decodeJSON(r, &record); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return entities.PriceRecord{}, false
	}
	if err := h.validator.ValidateRecord(&record); err != nil {
		logging.Warn("Unusual user input", "medicationName", record.MedicationName, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return entities.PriceRecord{}, false
	}
	return record, true
}
