package lockcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowedCharsPattern mirrors the original normalizer's character
// allowlist: letters, digits, whitespace, and a handful of
// semantically meaningful punctuation marks.
var allowedCharsPattern = regexp.MustCompile(`[^\w\s?.,'"-]`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeQuery collapses case and whitespace differences so
// semantically identical questions ("What is SARFAESI?" vs "what is
// sarfaesi?") land on the same cache key.
func NormalizeQuery(query string) string {
	if query == "" {
		return ""
	}
	normalized := strings.ToLower(query)
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	normalized = allowedCharsPattern.ReplaceAllString(normalized, "")
	return normalized
}

// QueryHash returns the stable cache key for a query: the SHA256 of
// its normalized form, scoped to a matter so two matters never share
// a cached answer.
func QueryHash(matterID, query string) string {
	h := sha256.New()
	h.Write([]byte(matterID))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(h.Sum(nil))
}

// QueryCache stores JSON-serialized query results keyed by
// matter-scoped query hash.
type QueryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewQueryCache(rdb *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{rdb: rdb, ttl: ttl}
}

func cacheKey(hash string) string { return "query_cache:" + hash }

func (c *QueryCache) Get(ctx context.Context, matterID, query string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(QueryHash(matterID, query))).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func matterIndexKey(matterID string) string { return "query_cache_keys:" + matterID }

func (c *QueryCache) Set(ctx context.Context, matterID, query string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := cacheKey(QueryHash(matterID, query))
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.SAdd(ctx, matterIndexKey(matterID), key)
	pipe.Expire(ctx, matterIndexKey(matterID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateMatter drops every cached query for a matter — called when
// a document finishes processing and could change the answer to a
// previously cached question. Keys are tracked in a per-matter set at
// write time so invalidation never needs a full keyspace scan.
func (c *QueryCache) InvalidateMatter(ctx context.Context, matterID string) error {
	indexKey := matterIndexKey(matterID)
	keys, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return c.rdb.Del(ctx, indexKey).Err()
}
