package customer

import "github.com/sells-group/customer-map/internal/model"

// Field fallback policies. Each picks the live value when it carries
// information, then the seed value, then the default.

// PreferString returns the first non-empty value.
func PreferString(live, seed string) string {
	if live != "" {
		return live
	}
	return seed
}

// PreferName keeps a real live name, then the seed name, then model.DefaultName.
func PreferName(live model.Customer, seed model.Customer) string {
	if !live.Defaulted.Name && live.Name != "" {
		return live.Name
	}
	if !seed.Defaulted.Name && seed.Name != "" {
		return seed.Name
	}
	return model.DefaultName
}

// PreferCoordinates returns the seed coordinates when known, otherwise the
// live ones. Known geolocation is never erased.
func PreferCoordinates(live, seed *model.Coordinates) *model.Coordinates {
	if seed != nil {
		c := *seed
		return &c
	}
	if live != nil {
		c := *live
		return &c
	}
	return nil
}

// PreferCategory returns the live category unless it was a default guess,
// in which case a non-default seed category wins.
func PreferCategory(live, seed model.Customer) (model.Category, bool) {
	switch {
	case !live.Defaulted.Category && live.Category != "":
		return live.Category, false
	case !seed.Defaulted.Category && seed.Category != "":
		return seed.Category, false
	default:
		return model.DefaultCategory, true
	}
}

// PreferCapabilities works like PreferCategory for the product flags.
func PreferCapabilities(live, seed model.Customer) (model.Capabilities, bool) {
	switch {
	case !live.Defaulted.Capabilities:
		return live.Capabilities, false
	case !seed.Defaulted.Capabilities:
		return seed.Capabilities, false
	default:
		return model.DefaultCapabilities(), true
	}
}
