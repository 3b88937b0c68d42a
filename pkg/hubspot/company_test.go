package hubspot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties_UnmarshalJSON(t *testing.T) {
	raw := `{
		"name": "Carson City School District",
		"address": "1402 W King St",
		"state": "NV",
		"zip": 89703,
		"phone": null,
		"contract_value": 12500.5,
		"hs_object_id": "42",
		"is_public": true,
		"edlio_products": {"cms": true, "mobile_app": true}
	}`

	var p Properties
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, "Carson City School District", p.Name)
	assert.Equal(t, "1402 W King St", p.Address)
	assert.Equal(t, "89703", p.Zip)
	assert.Equal(t, "", p.Phone)
	assert.Equal(t, "12500.5", p.ContractValue)
	assert.JSONEq(t, `{"cms": true, "mobile_app": true}`, p.Products)
	assert.Equal(t, "42", p.Extra["hs_object_id"])
	assert.Equal(t, "true", p.Get("is_public"))
	assert.Equal(t, "NV", p.Get(PropState))
	assert.True(t, p.Has(PropName))
	assert.False(t, p.Has(PropPhone))
	assert.False(t, p.Has("missing"))
}

func TestProperties_UnmarshalJSON_Invalid(t *testing.T) {
	var p Properties
	assert.Error(t, json.Unmarshal([]byte(`["name"]`), &p))
}

func TestProperties_MarshalJSON_OmitsEmpty(t *testing.T) {
	p := Properties{Name: "Reno USD", City: "Reno", Extra: map[string]string{"owner": "jd"}}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Reno USD","city":"Reno","owner":"jd"}`, string(b))
}

func TestCompany_Decode(t *testing.T) {
	var c Company
	require.NoError(t, json.Unmarshal([]byte(`{"id":"7","properties":{"name":"Elko"},"archived":false}`), &c))
	assert.Equal(t, "7", c.ID)
	assert.Equal(t, "Elko", c.Properties.Name)
	assert.Nil(t, c.Properties.Extra)
}
