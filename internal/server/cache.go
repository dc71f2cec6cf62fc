package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/kitchenframe/recipesearch/internal/tokenizer"
	"github.com/kitchenframe/recipesearch/pkg/config"
	"github.com/kitchenframe/recipesearch/pkg/logger"
	pkgredis "github.com/kitchenframe/recipesearch/pkg/redis"
	"github.com/kitchenframe/recipesearch/pkg/resilience"
)

const keyPrefix = "retrieve:"

// QueryCache caches serialized retrieval responses in Redis, collapsing
// concurrent misses for the same key through singleflight. A circuit
// breaker shields retrieval from a misbehaving Redis: while the circuit is
// open every lookup is treated as a miss and queries are answered from the
// index directly.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewQueryCache creates a cache over the given Redis client.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{}),
		logger:  logger.WithComponent("query-cache"),
	}
}

// Get returns a cached response for the query, if present.
func (c *QueryCache) Get(ctx context.Context, query string, topK int) (*RetrieveResponse, bool) {
	key := c.buildKey(query, topK)
	var data string
	found := false
	err := c.breaker.Execute(func() error {
		v, err := c.client.Get(ctx, key)
		if err != nil {
			if pkgredis.IsNilError(err) {
				// Absent key is a miss, not a backend failure.
				return nil
			}
			return err
		}
		data = v
		found = true
		return nil
	})
	if err != nil || !found {
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var resp RetrieveResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &resp, true
}

// Set stores a response with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, query string, topK int, resp *RetrieveResponse) {
	key := c.buildKey(query, topK)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or computes and caches it, with
// concurrent misses for the same key collapsed into one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	topK int,
	computeFn func() (*RetrieveResponse, error),
) (*RetrieveResponse, bool, error) {
	if resp, ok := c.Get(ctx, query, topK); ok {
		return resp, true, nil
	}
	key := c.buildKey(query, topK)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(ctx, query, topK); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, topK, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*RetrieveResponse), false, nil
}

// Invalidate removes every cached retrieval response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey derives a stable cache key from the normalised query tokens, so
// queries differing only in casing, punctuation, or term order share an
// entry.
func (c *QueryCache) buildKey(query string, topK int) string {
	terms := tokenizer.Tokenize(query)
	sort.Strings(terms)
	raw := fmt.Sprintf("%s:k=%d", strings.Join(terms, ","), topK)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
