package customer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/customer-map/internal/model"
)

func TestSummarize(t *testing.T) {
	coords := &model.Coordinates{Latitude: 1, Longitude: 1}
	records := []model.Customer{
		{Source: model.ProvenanceSeed, Coordinates: coords},
		{Source: model.ProvenanceSeed, Coordinates: coords},
		{Source: model.ProvenanceLive},
		{Source: model.ProvenanceLiveMerged, Coordinates: coords},
	}

	s := Summarize(records)
	assert.Equal(t, Summary{Total: 4, Seed: 2, Live: 1, Merged: 1, Geocoded: 3, Ungeocoded: 1}, s)
	assert.InDelta(t, 0.75, s.Coverage(), 1e-9)
	assert.Zero(t, Summarize(nil).Coverage())
}
