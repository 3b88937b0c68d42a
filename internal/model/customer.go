// Package model defines the canonical customer records shared by the sync pipeline.
package model

import (
	"strings"
	"time"
)

// DefaultName is used for records without a name.
const DefaultName = "Unknown School"

// Category is the organization type of a customer.
type Category string

// Known categories. CategoryDistrict is the default for unknown organizations.
const (
	CategoryDistrict Category = "district"
	CategoryCharter  Category = "charter"
	CategoryPrivate  Category = "private"

	DefaultCategory = CategoryDistrict
)

// ParseCategory maps a free-form value onto a known Category, case-insensitively.
// The second return is false when the value is not a known category.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryDistrict, CategoryCharter, CategoryPrivate:
		return c, true
	default:
		return "", false
	}
}

// Capabilities is the set of products enabled for a customer.
type Capabilities struct {
	CMS      bool `json:"cms" yaml:"cms"`
	Mobile   bool `json:"mobile" yaml:"mobile"`
	MassComm bool `json:"masscomm" yaml:"masscomm"`
	Payments bool `json:"payments" yaml:"payments"`
}

// DefaultCapabilities is applied when a record says nothing about its products.
// Most customers run the CMS.
func DefaultCapabilities() Capabilities {
	return Capabilities{CMS: true}
}

// Provenance records which source last wrote a customer.
type Provenance string

const (
	ProvenanceSeed       Provenance = "seed"
	ProvenanceLive       Provenance = "live"
	ProvenanceLiveMerged Provenance = "live-merged-with-seed"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lng" yaml:"lng"`
}

// Defaulted marks fields the normalizer could not infer and filled with a
// default. The merge uses it to let seed values win over guesses.
type Defaulted struct {
	Name         bool
	Category     bool
	Capabilities bool
}

// Customer is a real-world organization placed on the map.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Address holds the composite one-line address used for geocoding.
	Address string `json:"address,omitempty"`
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`

	Website string `json:"url,omitempty"`
	Phone   string `json:"phone,omitempty"`

	Category     Category     `json:"type"`
	Capabilities Capabilities `json:"products"`

	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	GeocodeLabel string       `json:"geocode_display,omitempty"`

	ContractValue string `json:"contract_value,omitempty"`
	RenewalDate   string `json:"renewal_date,omitempty"`

	Source Provenance `json:"source"`
	// LastUpdated is nil for records that were never refreshed from a live source.
	LastUpdated *time.Time `json:"last_updated,omitempty"`

	Defaulted Defaulted `json:"-"`
}

// Geocoded reports whether the customer has coordinates.
func (c Customer) Geocoded() bool {
	return c.Coordinates != nil
}

// Clone returns a deep copy of c.
func (c Customer) Clone() Customer {
	out := c
	if c.Coordinates != nil {
		coords := *c.Coordinates
		out.Coordinates = &coords
	}
	if c.LastUpdated != nil {
		ts := *c.LastUpdated
		out.LastUpdated = &ts
	}
	return out
}

// SourceStatus is the health of one upstream source.
type SourceStatus struct {
	Connected   bool       `json:"connected"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	RecordCount int        `json:"record_count"`
	LastError   string     `json:"last_error,omitempty"`
}
