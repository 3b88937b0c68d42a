package hubspot

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Property names requested from the CRM.
const (
	PropName          = "name"
	PropAddress       = "address"
	PropCity          = "city"
	PropState         = "state"
	PropZip           = "zip"
	PropCountry       = "country"
	PropWebsite       = "website"
	PropDomain        = "domain"
	PropPhone         = "phone"
	PropSchoolType    = "school_type"
	PropProducts      = "edlio_products"
	PropContractValue = "contract_value"
	PropRenewalDate   = "renewal_date"

	// Per-product checkbox properties used by older portals instead of
	// edlio_products. They are carried in Properties.Extra.
	PropHasCMS      = "has_cms"
	PropHasMobile   = "has_mobile_app"
	PropHasMassComm = "has_mass_comm"
	PropHasPayments = "has_payments"
)

// knownProperties have named fields on Properties.
var knownProperties = []string{
	PropName, PropAddress, PropCity, PropState, PropZip, PropCountry,
	PropWebsite, PropDomain, PropPhone, PropSchoolType, PropProducts,
	PropContractValue, PropRenewalDate,
}

// DefaultProperties is the property list sent with every list request.
var DefaultProperties = append(append([]string{}, knownProperties...),
	PropHasCMS, PropHasMobile, PropHasMassComm, PropHasPayments,
)

// Company is one CRM company object.
type Company struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
	Archived   bool       `json:"archived,omitempty"`
}

// Properties is the property bag of a Company. Known properties get named
// fields; anything else lands in Extra. A null or missing property is the
// empty string.
type Properties struct {
	Name          string
	Address       string
	City          string
	State         string
	Zip           string
	Country       string
	Website       string
	Domain        string
	Phone         string
	SchoolType    string
	Products      string
	ContractValue string
	RenewalDate   string

	Extra map[string]string
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "hubspot: decode properties")
	}

	*p = Properties{}
	for k, v := range raw {
		s, ok := stringify(v)
		if !ok {
			continue
		}
		if dst := p.field(k); dst != nil {
			*dst = s
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[k] = s
	}
	return nil
}

// MarshalJSON implements json.Marshaler, emitting only non-empty properties.
func (p Properties) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(p.Extra)+len(knownProperties))
	for k, v := range p.Extra {
		out[k] = v
	}
	for _, k := range knownProperties {
		if v := *p.field(k); v != "" {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// Get returns a property by its CRM name, known or extra.
func (p *Properties) Get(name string) string {
	if dst := p.field(name); dst != nil {
		return *dst
	}
	return p.Extra[name]
}

// Has reports whether a property carries a non-blank value.
func (p *Properties) Has(name string) bool {
	return strings.TrimSpace(p.Get(name)) != ""
}

func (p *Properties) field(name string) *string {
	switch name {
	case PropName:
		return &p.Name
	case PropAddress:
		return &p.Address
	case PropCity:
		return &p.City
	case PropState:
		return &p.State
	case PropZip:
		return &p.Zip
	case PropCountry:
		return &p.Country
	case PropWebsite:
		return &p.Website
	case PropDomain:
		return &p.Domain
	case PropPhone:
		return &p.Phone
	case PropSchoolType:
		return &p.SchoolType
	case PropProducts:
		return &p.Products
	case PropContractValue:
		return &p.ContractValue
	case PropRenewalDate:
		return &p.RenewalDate
	default:
		return nil
	}
}

// stringify renders a decoded JSON value as a string. Nulls report false;
// objects and arrays are re-encoded as JSON text.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", false
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(string(b)), true
	}
}
