package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultActiveRunTTL outlives the longest valid run so a crashed client
// cannot hold a player's slot forever.
const DefaultActiveRunTTL = 10 * time.Minute

// ActiveRunTracker stores one key per player holding the in-progress run ID.
// SET NX makes Claim atomic across server instances.
type ActiveRunTracker struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewActiveRunTracker(rdb *goredis.Client, ttl time.Duration) *ActiveRunTracker {
	if ttl <= 0 {
		ttl = DefaultActiveRunTTL
	}
	return &ActiveRunTracker{rdb: rdb, ttl: ttl}
}

func activeRunKey(playerID string) string {
	return keyPrefix + "active_run:" + playerID
}

func (t *ActiveRunTracker) Claim(ctx context.Context, playerID string, runID uuid.UUID) (bool, error) {
	ok, err := t.rdb.SetNX(ctx, activeRunKey(playerID), runID.String(), t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim active run: %w", err)
	}
	return ok, nil
}

func (t *ActiveRunTracker) Release(ctx context.Context, playerID string) error {
	if err := t.rdb.Del(ctx, activeRunKey(playerID)).Err(); err != nil {
		return fmt.Errorf("release active run: %w", err)
	}
	return nil
}

func (t *ActiveRunTracker) Current(ctx context.Context, playerID string) (uuid.UUID, bool, error) {
	val, err := t.rdb.Get(ctx, activeRunKey(playerID)).Result()
	if errors.Is(err, goredis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get active run: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse active run id %q: %w", val, err)
	}
	return id, true, nil
}
