package handlers

import (
	"net/http"
	"strings"

	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/reconcile"
)

type selectPharmacyRequest struct {
	Pharmacy string `json:"pharmacy"`
}

type basketTotalResponse struct {
	Pharmacy string   `json:"pharmacy"`
	Items    []string `json:"items"`
	Total    string   `json:"total"`
}

// BasketSummary returns the basket with the pharmacies that can fill all of it
func (h *HTTPHandlerImpl) BasketSummary(w http.ResponseWriter, r *http.Request) {
	summary := h.checkout.Summary()
	summary.Items = orEmpty(summary.Items)
	h.RespondWithJSON(w, http.StatusOK, summary)
}

// BasketTotal prices basket items at one pharmacy.
// Query: ?pharmacy=Boots&items=a,b or repeated items= parameters.
// Without items the checkout selection, or else the whole basket, is priced.
func (h *HTTPHandlerImpl) BasketTotal(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	pharmacy, err := h.validator.ValidatePharmacyName(query.Get("pharmacy"))
	if err != nil {
		logging.Warn("Unusual user input", "pharmacy", query.Get("pharmacy"))
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := []string{}
	for _, raw := range query["items"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			name, err := h.validator.ValidateMedicationName(part)
			if err != nil {
				logging.Warn("Unusual user input", "items", raw)
				h.RespondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			items = append(items, name)
		}
	}

	h.RespondWithJSON(w, http.StatusOK, basketTotalResponse{
		Pharmacy: pharmacy,
		Items:    items,
		Total:    h.checkout.TotalAt(pharmacy, items),
	})
}

// ServeCheckout returns the current checkout state
func (h *HTTPHandlerImpl) ServeCheckout(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, h.checkout.State())
}

// SelectPharmacy starts reviewing the basket at one pharmacy
func (h *HTTPHandlerImpl) SelectPharmacy(w http.ResponseWriter, r *http.Request) {
	var body selectPharmacyRequest
	if err := h.decodeJSON(r, &body); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	pharmacy, err := h.validator.ValidatePharmacyName(body.Pharmacy)
	if err != nil {
		logging.Warn("Unusual user input", "pharmacy", body.Pharmacy)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithCheckout(w, r, func() (reconcile.Checkout, error) {
		return h.checkout.SelectPharmacy(pharmacy)
	})
}

// ToggleCheckoutItem flips one basket item in or out of the selection
func (h *HTTPHandlerImpl) ToggleCheckoutItem(w http.ResponseWriter, r *http.Request) {
	param := pathParam(r, "medicationName")
	name, err := h.validator.ValidateMedicationName(param)
	if err != nil {
		logging.Warn("Unusual user input", "medicationName", param)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithCheckout(w, r, func() (reconcile.Checkout, error) {
		return h.checkout.ToggleItem(name)
	})
}

// ToggleSelectAll selects or deselects every basket item
func (h *HTTPHandlerImpl) ToggleSelectAll(w http.ResponseWriter, r *http.Request) {
	h.respondWithCheckout(w, r, h.checkout.ToggleSelectAll)
}

// CancelCheckout leaves review, keeping the basket as it is
func (h *HTTPHandlerImpl) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	h.respondWithCheckout(w, r, h.checkout.Cancel)
}

// ConfirmCheckout removes the selected items from the basket
func (h *HTTPHandlerImpl) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	confirmation, err := h.checkout.Confirm()
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, confirmation)
}

func (h *HTTPHandlerImpl) respondWithCheckout(w http.ResponseWriter, r *http.Request, transition func() (reconcile.Checkout, error)) {
	checkout, err := transition()
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, checkout)
}
