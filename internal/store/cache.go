package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// StorageCache fronts the per-(relay,pubkey) cumulative storage figure with
// an embedded pebble KV store, so the validator's storage check doesn't run
// a SUM() aggregate on every single EVENT frame. Repurposed from the
// 13x-tech-relayer pack member's per-pubkey pebble cache (there used to
// cache feed metadata); here it caches one int64 per key.
type StorageCache struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenStorageCache opens (or creates) a pebble database at path.
func OpenStorageCache(path string) (*StorageCache, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open storage cache: %w", err)
	}
	return &StorageCache{db: db}, nil
}

func (c *StorageCache) Close() error {
	return c.db.Close()
}

func cacheKey(relayID, pubkey string) []byte {
	return []byte(relayID + ":" + pubkey)
}

// Get returns the cached storage-used figure for (relayID, pubkey) and
// whether it was present.
func (c *StorageCache) Get(relayID, pubkey string) (int64, bool) {
	val, closer, err := c.db.Get(cacheKey(relayID, pubkey))
	if err != nil {
		return 0, false
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(val)), true
}

// Set stores bytesUsed for (relayID, pubkey).
func (c *StorageCache) Set(relayID, pubkey string, bytesUsed int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(bytesUsed))
	return c.db.Set(cacheKey(relayID, pubkey), buf, pebble.Sync)
}

// Add atomically adds delta to the cached figure for (relayID, pubkey),
// seeding it from zero if absent. Used on a successful write so the next
// validation doesn't need to re-hit the Store.
func (c *StorageCache) Add(relayID, pubkey string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, _ := c.Get(relayID, pubkey)
	updated := current + delta
	if err := c.Set(relayID, pubkey, updated); err != nil {
		return 0, err
	}
	return updated, nil
}

// Invalidate drops the cached figure for (relayID, pubkey), forcing the
// next lookup back to the Store to recompute it (used after a prune sweep).
func (c *StorageCache) Invalidate(relayID, pubkey string) error {
	return c.db.Delete(cacheKey(relayID, pubkey), pebble.Sync)
}
