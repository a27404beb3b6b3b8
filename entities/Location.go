package entities

// Location is an optional coordinate pair used to bias map retrieval.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}
