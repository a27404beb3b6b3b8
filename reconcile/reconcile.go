// Package reconcile compares a basket of price records pharmacy by pharmacy
// and drives the checkout selection.
package reconcile

import (
	"cmp"
	"slices"

	"github.com/giygas/pharmaprice-api/currency"
	"github.com/giygas/pharmaprice-api/entities"
)

// CommonPharmacies returns the pharmacies present in the offers of every
// record, ordered by first appearance in the first record. Names are compared
// as exact strings. An empty basket has no common pharmacy.
func CommonPharmacies(records []entities.PriceRecord) []string {
	if len(records) == 0 {
		return []string{}
	}

	counts := make(map[string]int)
	for _, r := range records {
		seen := make(map[string]bool, len(r.Offers))
		for _, o := range r.Offers {
			if seen[o.PharmacyName] {
				continue
			}
			seen[o.PharmacyName] = true
			counts[o.PharmacyName]++
		}
	}

	common := []string{}
	listed := make(map[string]bool)
	for _, o := range records[0].Offers {
		if listed[o.PharmacyName] || counts[o.PharmacyName] != len(records) {
			continue
		}
		listed[o.PharmacyName] = true
		common = append(common, o.PharmacyName)
	}
	return common
}

// TotalAt sums the pharmacy's price for every record named in itemNames.
// A record without an offer from that pharmacy adds 0.
func TotalAt(pharmacy string, records []entities.PriceRecord, itemNames []string) float64 {
	wanted := make(map[string]bool, len(itemNames))
	for _, n := range itemNames {
		wanted[n] = true
	}

	total := 0.0
	for _, r := range records {
		if !wanted[r.MedicationName] {
			continue
		}
		if offer, ok := r.OfferFrom(pharmacy); ok {
			total += currency.ParseAmount(offer.Price)
		}
	}
	return total
}

// CheapestFirst returns a copy of offers ordered by parsed price. Offers with
// the same price keep their relative order.
func CheapestFirst(offers []entities.PharmacyOffer) []entities.PharmacyOffer {
	sorted := slices.Clone(offers)
	slices.SortStableFunc(sorted, func(a, b entities.PharmacyOffer) int {
		return cmp.Compare(currency.ParseAmount(a.Price), currency.ParseAmount(b.Price))
	})
	return sorted
}

func recordNames(records []entities.PriceRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.MedicationName
	}
	return names
}
