package seed

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type document struct {
	Customers []Record `yaml:"customers"`
}

func readYAMLFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied seed path
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return decodeYAML(data)
}

func decodeYAML(data []byte) ([]Record, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}
	return doc.Customers, nil
}
