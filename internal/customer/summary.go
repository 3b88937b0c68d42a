package customer

import "github.com/sells-group/customer-map/internal/model"

// Summary counts a record set by provenance and geocoding state.
type Summary struct {
	Total      int `json:"total"`
	Seed       int `json:"seed"`
	Live       int `json:"live"`
	Merged     int `json:"merged"`
	Geocoded   int `json:"geocoded"`
	Ungeocoded int `json:"ungeocoded"`
}

// Summarize counts records.
func Summarize(records []model.Customer) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Source {
		case model.ProvenanceSeed:
			s.Seed++
		case model.ProvenanceLive:
			s.Live++
		case model.ProvenanceLiveMerged:
			s.Merged++
		}
		if r.Geocoded() {
			s.Geocoded++
		} else {
			s.Ungeocoded++
		}
	}
	return s
}

// Coverage returns the share of records with coordinates, or 0 for an empty set.
func (s Summary) Coverage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Geocoded) / float64(s.Total)
}
