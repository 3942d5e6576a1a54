// Package lockcache is the Lock & Cache Layer (C5): a Redis-backed
// distributed mutex scoped to one (document, chunk) pair, and a
// normalized-query result cache. Both are grounded in the original
// distributed_lock.py / query_normalizer.py services, reworked onto
// go-redis's SET NX EX rather than redis-py's Lock helper.
package lockcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lockcache: lock not held by this handle")

// ChunkLock guards a single (document_id, chunk_index) pair so only one
// worker processes it at a time. The lock value is a random token so a
// handle can never release a lock it didn't acquire (e.g. after its own
// TTL expired and another worker took over).
type ChunkLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func chunkLockKey(documentID string, chunkIndex int) string {
	return fmt.Sprintf("chunk_lock:%s:%d", documentID, chunkIndex)
}

// NewChunkLock builds a lock handle; call TryAcquire to attempt it.
func NewChunkLock(rdb *redis.Client, documentID string, chunkIndex int, ttl time.Duration) *ChunkLock {
	return &ChunkLock{
		rdb:   rdb,
		key:   chunkLockKey(documentID, chunkIndex),
		token: uuid.NewString(),
		ttl:   ttl,
	}
}

// TryAcquire attempts a non-blocking SET NX EX; the pipeline never
// waits for a contended chunk, it simply treats the chunk as already
// claimed. The store's ClaimOCRChunk transition is the authoritative
// owner of chunk state — this lock is a short-lived guard against two
// asynq deliveries of the exact same task racing each other.
func (l *ChunkLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release deletes the lock only if it still holds this handle's token,
// so a stale handle can't release a lock another worker has since
// legitimately acquired after this one's TTL lapsed.
func (l *ChunkLock) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// Extend refreshes the TTL, used while a long OCR call is still
// in-flight so the lock doesn't expire out from under it.
func (l *ChunkLock) Extend(ctx context.Context) error {
	ok, err := l.rdb.Expire(ctx, l.key, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
