// Package entities holds the medication price-comparison model shared by every
// other package of the API.
package entities

// StockStatus is the availability reported by a pharmacy for a medication.
type StockStatus string

const (
	InStock    StockStatus = "In Stock"
	LowStock   StockStatus = "Low Stock"
	OutOfStock StockStatus = "Out of Stock"
)

// PharmacyOffer is one pharmacy's quote for a medication.
// PharmacyName is only unique inside the offer list of a single record.
type PharmacyOffer struct {
	PharmacyName string      `json:"pharmacyName"`
	Price        string      `json:"price"`
	StockStatus  StockStatus `json:"stockStatus"`
	Distance     string      `json:"distance"`
	Address      string      `json:"address"`
	URL          string      `json:"url,omitempty"`
}

type GenericAlternative struct {
	Name    string `json:"name"`
	Price   string `json:"price"`
	Savings string `json:"savings"`
}

// PriceRecord is the full comparison result for one medication.
// MedicationName is the natural key used by every collection.
type PriceRecord struct {
	MedicationName     string              `json:"medicationName"`
	Dosage             string              `json:"dosage"`
	Description        string              `json:"description"`
	Offers             []PharmacyOffer     `json:"offers"`
	CheapestPharmacy   string              `json:"cheapestPharmacy"`
	AveragePrice       string              `json:"averagePrice"`
	GenericAlternative *GenericAlternative `json:"genericAlternative,omitempty"`
}

// Clone returns a deep copy so collections never share offer slices.
func (r PriceRecord) Clone() PriceRecord {
	c := r
	if r.Offers != nil {
		c.Offers = make([]PharmacyOffer, len(r.Offers))
		copy(c.Offers, r.Offers)
	}
	if r.GenericAlternative != nil {
		g := *r.GenericAlternative
		c.GenericAlternative = &g
	}
	return c
}

// OfferFrom returns the offer of the named pharmacy, matched on the exact string.
func (r PriceRecord) OfferFrom(pharmacyName string) (PharmacyOffer, bool) {
	for _, o := range r.Offers {
		if o.PharmacyName == pharmacyName {
			return o, true
		}
	}
	return PharmacyOffer{}, false
}
