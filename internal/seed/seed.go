// Package seed loads the curated customer set that ships with precise
// coordinates.
package seed

import (
	"context"
	_ "embed"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/customer"
	"github.com/sells-group/customer-map/internal/model"
	"github.com/sells-group/customer-map/internal/normalize"
)

//go:embed customers.yaml
var bundled []byte

// IDPrefix namespaces seed record ids.
const IDPrefix = "seed_"

// Record is one seed row as stored in YAML or a spreadsheet.
type Record struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Street   string   `yaml:"street"`
	City     string   `yaml:"city"`
	State    string   `yaml:"state"`
	Zip      string   `yaml:"zip"`
	Lat      *float64 `yaml:"lat"`
	Lng      *float64 `yaml:"lng"`
	Type     string   `yaml:"type"`
	Products string   `yaml:"products"`
}

// Loader reads the seed set from a file, or from the bundled dataset when
// no path is configured.
type Loader struct {
	path string
}

// NewLoader creates a Loader. An empty path selects the bundled dataset.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Source names where the loader reads from.
func (l *Loader) Source() string {
	if l.path == "" {
		return "bundled"
	}
	return l.path
}

// Load returns the seed customers, tagged as seed and never refreshed.
// Records sharing an identity key are dropped after the first.
func (l *Loader) Load(ctx context.Context) ([]model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "seed: load")
	}

	var (
		records []Record
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(l.path)); {
	case l.path == "":
		records, err = decodeYAML(bundled)
	case ext == ".yaml" || ext == ".yml":
		records, err = readYAMLFile(l.path)
	case ext == ".xlsx":
		records, err = readXLSX(l.path)
	default:
		return nil, eris.Errorf("seed: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	out := ToCustomers(records)
	zap.L().Info("seed: loaded",
		zap.String("source", l.Source()),
		zap.Int("rows", len(records)),
		zap.Int("customers", len(out)),
	)
	return out, nil
}

// ToCustomers converts rows to seed customers, dropping duplicate keys.
func ToCustomers(records []Record) []model.Customer {
	out := make([]model.Customer, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, r := range records {
		c := r.toCustomer(i)
		key := customer.IdentityKey(c)
		if first, dup := seen[key]; dup {
			zap.L().Warn("seed: duplicate identity key dropped",
				zap.String("key", key),
				zap.String("name", c.Name),
				zap.Int("row", i+1),
				zap.Int("first_row", first+1),
			)
			continue
		}
		seen[key] = i
		out = append(out, c)
	}
	return out
}

func (r Record) toCustomer(i int) model.Customer {
	name := strings.TrimSpace(r.Name)
	c := model.Customer{
		ID:      IDPrefix + strconv.Itoa(i+1),
		Name:    name,
		Street:  strings.TrimSpace(r.Street),
		City:    strings.TrimSpace(r.City),
		State:   strings.ToUpper(strings.TrimSpace(r.State)),
		Zip:     strings.TrimSpace(r.Zip),
		Website: strings.TrimSpace(r.URL),
		Source:  model.ProvenanceSeed,
	}
	c.Address = normalize.CompositeAddress(c.Street, c.City, c.State, c.Zip)
	if name == "" {
		c.Name = model.DefaultName
		c.Defaulted.Name = true
	}

	if cat, ok := model.ParseCategory(r.Type); ok {
		c.Category = cat
	} else {
		c.Category = model.DefaultCategory
		c.Defaulted.Category = true
	}

	caps, known := normalize.ParseCapabilities(r.Products)
	c.Capabilities = caps
	c.Defaulted.Capabilities = !known

	if r.Lat != nil && r.Lng != nil {
		c.Coordinates = &model.Coordinates{Latitude: *r.Lat, Longitude: *r.Lng}
	}
	return c
}
