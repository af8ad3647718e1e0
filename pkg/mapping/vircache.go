package mapping

import (
	"hash/fnv"
	"sync"

	"github.com/idforge/idforge/pkg/identity"
)

const virCacheShards = 32

// VirAttrCache caches virtual attribute values per (entity kind, entity
// key, schema name). Entries touched by a propagation are expired
// synchronously before the value is read, so a propagation cycle never
// serves a stale cached value. Locking is striped by cache key.
type VirAttrCache struct {
	shards [virCacheShards]virCacheShard
}

type virCacheShard struct {
	mu      sync.Mutex
	entries map[virCacheKey][]string
}

type virCacheKey struct {
	kind   identity.Kind
	key    string
	schema string
}

// NewVirAttrCache creates an empty cache.
func NewVirAttrCache() *VirAttrCache {
	c := &VirAttrCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[virCacheKey][]string)
	}
	return c
}

func (c *VirAttrCache) shard(k virCacheKey) *virCacheShard {
	h := fnv.New32a()
	h.Write([]byte(k.kind))
	h.Write([]byte{0})
	h.Write([]byte(k.key))
	h.Write([]byte{0})
	h.Write([]byte(k.schema))
	return &c.shards[h.Sum32()%virCacheShards]
}

// Get returns the cached values for an entry.
func (c *VirAttrCache) Get(kind identity.Kind, key, schema string) ([]string, bool) {
	k := virCacheKey{kind: kind, key: key, schema: schema}
	s := c.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	return append([]string(nil), values...), true
}

// Put stores values for an entry.
func (c *VirAttrCache) Put(kind identity.Kind, key, schema string, values []string) {
	k := virCacheKey{kind: kind, key: key, schema: schema}
	s := c.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = append([]string(nil), values...)
}

// Expire drops an entry.
func (c *VirAttrCache) Expire(kind identity.Kind, key, schema string) {
	k := virCacheKey{kind: kind, key: key, schema: schema}
	s := c.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}
