package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

var priceKey = keyPrefix + "price_history"

// PriceHistory stores price points in a sorted set scored by Unix
// milliseconds. Points older than the retention window are trimmed on
// every append.
type PriceHistory struct {
	rdb       *goredis.Client
	retention time.Duration
}

func NewPriceHistory(rdb *goredis.Client, retention time.Duration) *PriceHistory {
	return &PriceHistory{rdb: rdb, retention: retention}
}

func (h *PriceHistory) Append(ctx context.Context, point domain.PricePoint) error {
	member, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("marshal price point: %w", err)
	}
	cutoff := point.Timestamp.Add(-h.retention).UnixMilli()

	_, err = h.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, priceKey, goredis.Z{Score: float64(point.Timestamp.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, priceKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append price point: %w", err)
	}
	return nil
}

func (h *PriceHistory) Latest(ctx context.Context) (domain.PricePoint, bool, error) {
	members, err := h.rdb.ZRevRange(ctx, priceKey, 0, 0).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return domain.PricePoint{}, false, fmt.Errorf("get latest price: %w", err)
	}
	if len(members) == 0 {
		return domain.PricePoint{}, false, nil
	}
	point, err := decodePoint(members[0])
	if err != nil {
		return domain.PricePoint{}, false, err
	}
	return point, true, nil
}

// Since returns the newest limit points at or after t, oldest first. A
// limit of zero or less returns all of them.
func (h *PriceHistory) Since(ctx context.Context, t time.Time, limit int) ([]domain.PricePoint, error) {
	by := &goredis.ZRangeBy{Min: strconv.FormatInt(t.UnixMilli(), 10), Max: "+inf"}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := h.rdb.ZRevRangeByScore(ctx, priceKey, by).Result()
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(members))
	for _, m := range members {
		point, err := decodePoint(m)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	slices.Reverse(points)
	return points, nil
}

func decodePoint(member string) (domain.PricePoint, error) {
	var point domain.PricePoint
	if err := json.Unmarshal([]byte(member), &point); err != nil {
		return domain.PricePoint{}, fmt.Errorf("decode price point: %w", err)
	}
	return point, nil
}
