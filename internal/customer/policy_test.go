package customer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/customer-map/internal/model"
)

func TestPreferString(t *testing.T) {
	assert.Equal(t, "live", PreferString("live", "seed"))
	assert.Equal(t, "seed", PreferString("", "seed"))
	assert.Equal(t, "", PreferString("", ""))
}

func TestPreferName(t *testing.T) {
	live := model.Customer{Name: "LA Unified"}
	seed := model.Customer{Name: "Los Angeles USD"}
	defaulted := model.Customer{Name: model.DefaultName, Defaulted: model.Defaulted{Name: true}}

	assert.Equal(t, "LA Unified", PreferName(live, seed))
	assert.Equal(t, "Los Angeles USD", PreferName(defaulted, seed))
	assert.Equal(t, "Los Angeles USD", PreferName(model.Customer{}, seed))
	assert.Equal(t, model.DefaultName, PreferName(defaulted, model.Customer{}))
}

func TestPreferCoordinates(t *testing.T) {
	seed := &model.Coordinates{Latitude: 34.05, Longitude: -118.24}
	live := &model.Coordinates{Latitude: 1, Longitude: 2}

	got := PreferCoordinates(live, seed)
	require.NotNil(t, got)
	assert.Equal(t, *seed, *got)
	assert.NotSame(t, seed, got)

	got = PreferCoordinates(live, nil)
	require.NotNil(t, got)
	assert.Equal(t, *live, *got)

	assert.Nil(t, PreferCoordinates(nil, nil))
}

func TestPreferCategory(t *testing.T) {
	guess := model.Customer{Category: model.DefaultCategory, Defaulted: model.Defaulted{Category: true}}
	charter := model.Customer{Category: model.CategoryCharter}
	private := model.Customer{Category: model.CategoryPrivate}

	c, def := PreferCategory(charter, private)
	assert.Equal(t, model.CategoryCharter, c)
	assert.False(t, def)

	c, def = PreferCategory(guess, private)
	assert.Equal(t, model.CategoryPrivate, c)
	assert.False(t, def)

	c, def = PreferCategory(guess, guess)
	assert.Equal(t, model.DefaultCategory, c)
	assert.True(t, def)
}

func TestPreferCapabilities(t *testing.T) {
	guess := model.Customer{Capabilities: model.DefaultCapabilities(), Defaulted: model.Defaulted{Capabilities: true}}
	mobile := model.Customer{Capabilities: model.Capabilities{Mobile: true}}
	seed := model.Customer{Capabilities: model.Capabilities{CMS: true, Payments: true}}

	caps, def := PreferCapabilities(mobile, seed)
	assert.Equal(t, model.Capabilities{Mobile: true}, caps)
	assert.False(t, def)

	caps, def = PreferCapabilities(guess, seed)
	assert.Equal(t, model.Capabilities{CMS: true, Payments: true}, caps)
	assert.False(t, def)

	caps, def = PreferCapabilities(guess, guess)
	assert.Equal(t, model.DefaultCapabilities(), caps)
	assert.True(t, def)
}
