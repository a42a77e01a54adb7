package circuit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/aristath/qpubinder/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultCacheSize is used when the configured size is not positive
const DefaultCacheSize = 256

// Cache memoizes parsed circuits by the SHA-256 of their source.
// Cached descriptors are shared between callers and must be treated as read-only.
type Cache struct {
	parser domain.CircuitParser
	lru    *lru.Cache[string, *domain.Circuit]
	hits   atomic.Uint64
	misses atomic.Uint64
	log    zerolog.Logger
}

// NewCache wraps parser with an LRU of the given size
func NewCache(parser domain.CircuitParser, size int, log zerolog.Logger) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[string, *domain.Circuit](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create circuit cache: %w", err)
	}
	return &Cache{
		parser: parser,
		lru:    l,
		log:    log.With().Str("component", "circuit_cache").Logger(),
	}, nil
}

// Parse returns the cached descriptor for src, parsing it on a miss.
// Parse failures are not cached.
func (c *Cache) Parse(src string) (*domain.Circuit, error) {
	sum := sha256.Sum256([]byte(src))
	key := hex.EncodeToString(sum[:])

	if circuit, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return circuit, nil
	}
	c.misses.Add(1)

	circuit, err := c.parser.Parse(src)
	if err != nil {
		return nil, err
	}
	if evicted := c.lru.Add(key, circuit); evicted {
		c.log.Debug().Int("size", c.lru.Len()).Msg("Evicted least recently used circuit")
	}
	return circuit, nil
}

// Stats returns hit and miss counts since creation
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached circuits
func (c *Cache) Len() int {
	return c.lru.Len()
}
