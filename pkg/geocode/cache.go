package geocode

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/store"
)

// Cache maps a normalized address to a resolved Result, or to nil when the
// lookup failed. Entries never expire. Every insertion rewrites the
// persisted entry in full.
type Cache struct {
	kv  store.KV
	key string

	mu      sync.RWMutex
	entries map[string]*Result

	// persistMu orders full rewrites so an older snapshot never lands last.
	persistMu sync.Mutex
}

// CacheStats summarizes cache contents.
type CacheStats struct {
	Entries  int `json:"entries"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// LoadCache reads the persisted cache from kv. Unreadable or corrupt state
// yields an empty cache; it is never an error. A nil kv gives a cache that
// lives only in memory.
func LoadCache(ctx context.Context, kv store.KV) *Cache {
	c := &Cache{
		kv:      kv,
		key:     store.KeyGeocodeCache,
		entries: make(map[string]*Result),
	}
	if kv == nil {
		return c
	}

	raw, ok, err := kv.Get(ctx, c.key)
	if err != nil {
		zap.L().Warn("geocode: cache unreadable, starting empty", zap.Error(err))
		return c
	}
	if !ok {
		return c
	}

	entries, err := decodeEntries(raw)
	if err != nil {
		zap.L().Warn("geocode: cache corrupt, starting empty", zap.Error(err))
		return c
	}
	c.entries = entries
	zap.L().Info("geocode: loaded cache", zap.Int("entries", len(entries)))
	return c
}

// Lookup returns the cached result for addr. ok is true for cached failures
// too, in which case the result is nil.
func (c *Cache) Lookup(addr string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[addr]
	if !ok {
		return nil, false
	}
	if r == nil {
		return nil, true
	}
	cp := *r
	return &cp, true
}

// Store records result (nil for a failed lookup) and persists the cache.
// The in-memory entry is kept even when persisting fails.
func (c *Cache) Store(ctx context.Context, addr string, result *Result) error {
	var stored *Result
	if result != nil {
		cp := *result
		stored = &cp
	}

	c.mu.Lock()
	c.entries[addr] = stored
	c.mu.Unlock()

	if c.kv == nil {
		return nil
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	raw, err := c.encode()
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, c.key, raw); err != nil {
		return eris.Wrap(err, "geocode: persist cache")
	}
	return nil
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats counts resolved and failed entries.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CacheStats{Entries: len(c.entries)}
	for _, r := range c.entries {
		if r == nil {
			s.Failed++
		} else {
			s.Resolved++
		}
	}
	return s
}

// encode serializes the cache as an array of [address, result-or-null]
// pairs, sorted by address.
func (c *Cache) encode() ([]byte, error) {
	c.mu.RLock()
	pairs := make([][2]any, 0, len(c.entries))
	for addr, r := range c.entries {
		if r == nil {
			pairs = append(pairs, [2]any{addr, nil})
			continue
		}
		pairs = append(pairs, [2]any{addr, *r})
	}
	c.mu.RUnlock()

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i][0].(string) < pairs[j][0].(string)
	})

	raw, err := json.Marshal(pairs)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: marshal cache")
	}
	return raw, nil
}

func decodeEntries(raw []byte) (map[string]*Result, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, eris.Wrap(err, "geocode: decode cache")
	}

	entries := make(map[string]*Result, len(pairs))
	for i, p := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(p, &pair); err != nil || len(pair) != 2 {
			return nil, eris.Errorf("geocode: cache entry %d is not an [address, result] pair", i)
		}

		var addr string
		if err := json.Unmarshal(pair[0], &addr); err != nil {
			return nil, eris.Wrapf(err, "geocode: cache entry %d address", i)
		}

		var r *Result
		if err := json.Unmarshal(pair[1], &r); err != nil {
			return nil, eris.Wrapf(err, "geocode: cache entry %d result", i)
		}
		entries[addr] = r
	}
	return entries, nil
}
