package customer

import (
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/model"
)

// Merge reconciles live records with the seed set, producing one record per
// identity key. Live records come first in input order, followed by the seed
// records no live record matched. With no live records the seed set is
// returned in order, tagged as seed. Seed records repeating an earlier key
// are dropped on every path, so the output never holds a key twice.
func Merge(live, seed []model.Customer) []model.Customer {
	seedByKey := make(map[string]int, len(seed))
	seedOrder := make([]string, 0, len(seed))
	for i, s := range seed {
		key := IdentityKey(s)
		if _, dup := seedByKey[key]; dup {
			zap.L().Debug("customer: duplicate seed key dropped",
				zap.String("key", key),
				zap.String("name", s.Name),
			)
			continue
		}
		seedByKey[key] = i
		seedOrder = append(seedOrder, key)
	}

	out := make([]model.Customer, 0, len(live)+len(seed))
	outByKey := make(map[string]int, len(live))
	consumed := make(map[string]bool, len(live))

	for _, l := range live {
		key := IdentityKey(l)
		if idx, dup := outByKey[key]; dup {
			fillEmpty(&out[idx], l)
			zap.L().Debug("customer: duplicate live key folded",
				zap.String("key", key),
				zap.String("record_id", l.ID),
			)
			continue
		}

		var rec model.Customer
		if si, ok := seedByKey[key]; ok {
			rec = mergePair(l, seed[si])
			consumed[key] = true
		} else {
			rec = l.Clone()
			if rec.Source == "" {
				rec.Source = model.ProvenanceLive
			}
		}
		outByKey[key] = len(out)
		out = append(out, rec)
	}

	for _, key := range seedOrder {
		if consumed[key] {
			continue
		}
		if _, taken := outByKey[key]; taken {
			continue
		}
		s := seed[seedByKey[key]].Clone()
		s.Source = model.ProvenanceSeed
		out = append(out, s)
	}
	return out
}

// mergePair combines a live record with its matching seed record. A record
// already tagged as seed is passed through so re-merging is stable.
func mergePair(live, seed model.Customer) model.Customer {
	out := live.Clone()
	if live.Source == model.ProvenanceSeed {
		return out
	}

	out.ID = PreferString(live.ID, seed.ID)
	out.Name = PreferName(live, seed)
	out.Address = PreferString(live.Address, seed.Address)
	out.Street = PreferString(live.Street, seed.Street)
	out.City = PreferString(live.City, seed.City)
	out.State = PreferString(live.State, seed.State)
	out.Zip = PreferString(live.Zip, seed.Zip)
	out.Website = PreferString(live.Website, seed.Website)
	out.Phone = PreferString(live.Phone, seed.Phone)
	out.ContractValue = PreferString(live.ContractValue, seed.ContractValue)
	out.RenewalDate = PreferString(live.RenewalDate, seed.RenewalDate)

	out.Coordinates = PreferCoordinates(live.Coordinates, seed.Coordinates)
	if seed.Coordinates != nil {
		out.GeocodeLabel = seed.GeocodeLabel
	}

	var catDefault, capsDefault bool
	out.Category, catDefault = PreferCategory(live, seed)
	out.Capabilities, capsDefault = PreferCapabilities(live, seed)
	out.Defaulted = model.Defaulted{
		Name:         (live.Defaulted.Name || live.Name == "") && (seed.Defaulted.Name || seed.Name == ""),
		Category:     catDefault,
		Capabilities: capsDefault,
	}

	out.Source = model.ProvenanceLiveMerged
	return out
}

// fillEmpty copies into dst the fields it lacks from src.
func fillEmpty(dst *model.Customer, src model.Customer) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.Address, src.Address)
	fill(&dst.Street, src.Street)
	fill(&dst.City, src.City)
	fill(&dst.State, src.State)
	fill(&dst.Zip, src.Zip)
	fill(&dst.Website, src.Website)
	fill(&dst.Phone, src.Phone)
	fill(&dst.ContractValue, src.ContractValue)
	fill(&dst.RenewalDate, src.RenewalDate)

	if dst.Defaulted.Name && !src.Defaulted.Name && src.Name != "" {
		dst.Name = src.Name
		dst.Defaulted.Name = false
	}
	if dst.Coordinates == nil && src.Coordinates != nil {
		c := *src.Coordinates
		dst.Coordinates = &c
		dst.GeocodeLabel = src.GeocodeLabel
	}
	if dst.Defaulted.Category && !src.Defaulted.Category {
		dst.Category = src.Category
		dst.Defaulted.Category = false
	}
	if dst.Defaulted.Capabilities && !src.Defaulted.Capabilities {
		dst.Capabilities = src.Capabilities
		dst.Defaulted.Capabilities = false
	}
}
