// Package store provides the durable key-value persistence used for the
// geocode cache and the runtime CRM credential override.
package store

import (
	"context"
)

// Well-known keys. All keys are namespaced to this application.
const (
	KeyGeocodeCache  = "customer_map:geocode_cache"
	KeyHubSpotAPIKey = "customer_map:hubspot_api_key"
)

// KV is a durable key-value store.
type KV interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
