package reconcile

import (
	"cmp"
	"slices"

	"github.com/giygas/pharmaprice-api/entities"
)

type PharmacyTotal struct {
	Pharmacy string  `json:"pharmacy"`
	Amount   float64 `json:"amount"`
	Total    string  `json:"total"`
}

// Summary is the basket view: the items, the pharmacies able to fill all of
// them with their totals, and how much choosing the cheapest one saves
type Summary struct {
	Items            []entities.PriceRecord `json:"items"`
	ItemCount        int                    `json:"itemCount"`
	CommonPharmacies []PharmacyTotal        `json:"commonPharmacies"`
	Cheapest         *PharmacyTotal         `json:"cheapest,omitempty"`
	Savings          string                 `json:"savings,omitempty"`
	Checkout         Checkout               `json:"checkout"`
}

// Summary computes the basket view against the live basket
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, _ := e.sync()
	names := recordNames(records)

	totals := []PharmacyTotal{}
	for _, pharmacy := range CommonPharmacies(records) {
		amount := TotalAt(pharmacy, records, names)
		totals = append(totals, PharmacyTotal{
			Pharmacy: pharmacy,
			Amount:   amount,
			Total:    e.formatter.Format(amount),
		})
	}
	slices.SortStableFunc(totals, func(a, b PharmacyTotal) int {
		return cmp.Compare(a.Amount, b.Amount)
	})

	s := Summary{
		Items:            records,
		ItemCount:        len(records),
		CommonPharmacies: totals,
		Checkout:         e.snapshot(records),
	}
	if len(totals) > 0 {
		cheapest := totals[0]
		s.Cheapest = &cheapest
		s.Savings = e.formatter.Format(totals[len(totals)-1].Amount - cheapest.Amount)
	}
	return s
}
