// Package normalize maps CRM company objects onto the canonical customer schema.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/pkg/hubspot"
)

// IDPrefix namespaces CRM ids in customer ids.
const IDPrefix = "hs_"

// categoryRule maps a name keyword to a category.
type categoryRule struct {
	keyword  string
	category model.Category
}

// categoryRules are checked in order; the first match wins.
var categoryRules = []categoryRule{
	{"charter", model.CategoryCharter},
	{"district", model.CategoryDistrict},
	{"private", model.CategoryPrivate},
	{"academy", model.CategoryCharter},
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the time source for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// Normalizer converts CRM companies into customers. It never fails; missing
// or malformed input degrades to defaults.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps one CRM company to a live customer without coordinates.
func (n *Normalizer) Normalize(c hubspot.Company) model.Customer {
	p := c.Properties

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = model.DefaultName
	}

	category, inferred := InferCategory(p.SchoolType, p.Name)
	caps, known := capabilitiesFor(c.ID, &p)

	ts := n.now().UTC()
	return model.Customer{
		ID:            IDPrefix + c.ID,
		Name:          name,
		Address:       CompositeAddress(p.Address, p.City, p.State, p.Zip),
		Street:        strings.TrimSpace(p.Address),
		City:          strings.TrimSpace(p.City),
		State:         strings.TrimSpace(p.State),
		Zip:           strings.TrimSpace(p.Zip),
		Website:       firstNonBlank(p.Website, p.Domain),
		Phone:         strings.TrimSpace(p.Phone),
		Category:      category,
		Capabilities:  caps,
		ContractValue: strings.TrimSpace(p.ContractValue),
		RenewalDate:   strings.TrimSpace(p.RenewalDate),
		Source:        model.ProvenanceLive,
		LastUpdated:   &ts,
		Defaulted: model.Defaulted{
			Name:         strings.TrimSpace(p.Name) == "",
			Category:     !inferred,
			Capabilities: !known,
		},
	}
}

// CompositeAddress joins the non-blank parts with ", " in the given order.
func CompositeAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

// InferCategory picks a category from an explicit type or, failing that, from
// keywords in the name. The second return is false when the default was used.
// An explicit value outside the known categories is ignored.
func InferCategory(explicit, name string) (model.Category, bool) {
	if c, ok := model.ParseCategory(explicit); ok {
		return c, true
	}
	lower := strings.ToLower(name)
	for _, r := range categoryRules {
		if strings.Contains(lower, r.keyword) {
			return r.category, true
		}
	}
	return model.DefaultCategory, false
}

// ParseCapabilities reads a freeform products value: a JSON flag object when
// it starts with "{", otherwise a comma-separated token list. The second
// return is false when the value was blank or unparseable and the defaults
// were used.
func ParseCapabilities(products string) (model.Capabilities, bool) {
	s := strings.TrimSpace(products)
	if s == "" {
		return model.DefaultCapabilities(), false
	}
	if strings.HasPrefix(s, "{") {
		caps, err := parseFlagObject(s)
		if err != nil {
			return model.DefaultCapabilities(), false
		}
		return caps, true
	}
	return parseTokens(s), true
}

// capabilitiesFor prefers the products field, then per-product checkbox
// properties, then the defaults.
func capabilitiesFor(id string, p *hubspot.Properties) (model.Capabilities, bool) {
	if p.Has(hubspot.PropProducts) {
		caps, ok := ParseCapabilities(p.Products)
		if !ok {
			zap.L().Warn("normalize: unparseable products, using defaults",
				zap.String("record_id", id),
				zap.String("products", p.Products),
			)
		}
		return caps, ok
	}

	flags := []string{hubspot.PropHasCMS, hubspot.PropHasMobile, hubspot.PropHasMassComm, hubspot.PropHasPayments}
	present := false
	for _, f := range flags {
		if p.Has(f) {
			present = true
			break
		}
	}
	if !present {
		return model.DefaultCapabilities(), false
	}
	return model.Capabilities{
		CMS:      isTrue(p.Get(hubspot.PropHasCMS)),
		Mobile:   isTrue(p.Get(hubspot.PropHasMobile)),
		MassComm: isTrue(p.Get(hubspot.PropHasMassComm)),
		Payments: isTrue(p.Get(hubspot.PropHasPayments)),
	}, true
}

func parseFlagObject(s string) (model.Capabilities, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return model.Capabilities{}, err
	}
	var caps model.Capabilities
	for k, v := range raw {
		on := flagValue(v)
		switch strings.ToLower(k) {
		case "cms":
			caps.CMS = on
		case "mobile", "mobile_app", "access":
			caps.Mobile = caps.Mobile || on
		case "masscomm", "mass_communications", "sia":
			caps.MassComm = caps.MassComm || on
		case "payments":
			caps.Payments = on
		}
	}
	return caps, nil
}

func parseTokens(s string) model.Capabilities {
	var caps model.Capabilities
	for _, tok := range strings.Split(strings.ToLower(s), ",") {
		switch strings.TrimSpace(tok) {
		case "cms":
			caps.CMS = true
		case "mobile", "access":
			caps.Mobile = true
		case "masscomm", "sia":
			caps.MassComm = true
		case "payments":
			caps.Payments = true
		}
	}
	return caps
}

func flagValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return isTrue(t)
	case float64:
		return t != 0
	default:
		return false
	}
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true
	default:
		return false
	}
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
