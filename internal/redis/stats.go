package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

var statsKey = keyPrefix + "stats"

// recordRunScript adds one run to the global totals and returns
// [runs, cp, dbp, duration] after the update.
// ARGV: [1]=cp, [2]=dbp, [3]=duration
var recordRunScript = goredis.NewScript(`
local runs = redis.call('HINCRBY', KEYS[1], 'runs', 1)
local cp = redis.call('HINCRBY', KEYS[1], 'cp', ARGV[1])
local dbp = redis.call('HINCRBY', KEYS[1], 'dbp', ARGV[2])
local duration = redis.call('HINCRBY', KEYS[1], 'duration', ARGV[3])
return {runs, cp, dbp, duration}
`)

// StatsStore keeps the global run aggregates in a single hash so every
// server instance reports the same totals.
type StatsStore struct {
	rdb *goredis.Client
}

func NewStatsStore(rdb *goredis.Client) *StatsStore {
	return &StatsStore{rdb: rdb}
}

func (s *StatsStore) RecordRun(ctx context.Context, run *domain.Run) (domain.GlobalStats, error) {
	res, err := recordRunScript.Run(ctx, s.rdb, []string{statsKey},
		run.CPEarned, run.DBPMinted, run.Duration,
	).Int64Slice()
	if err != nil {
		return domain.GlobalStats{}, fmt.Errorf("record run stats: %w", err)
	}
	if len(res) != 4 {
		return domain.GlobalStats{}, fmt.Errorf("record run stats: unexpected reply length %d", len(res))
	}
	return newGlobalStats(res[0], res[1], res[2], res[3]), nil
}

func (s *StatsStore) Global(ctx context.Context) (domain.GlobalStats, error) {
	fields, err := s.rdb.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return domain.GlobalStats{}, fmt.Errorf("get global stats: %w", err)
	}

	var values [4]int64
	for i, name := range []string{"runs", "cp", "dbp", "duration"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if values[i], err = strconv.ParseInt(raw, 10, 64); err != nil {
			return domain.GlobalStats{}, fmt.Errorf("parse stats field %s: %w", name, err)
		}
	}
	return newGlobalStats(values[0], values[1], values[2], values[3]), nil
}

func newGlobalStats(runs, cp, dbp, duration int64) domain.GlobalStats {
	stats := domain.GlobalStats{TotalRuns: runs, TotalCP: cp, TotalDBP: dbp, TotalDuration: duration}
	if runs > 0 {
		stats.AverageDuration = float64(duration) / float64(runs)
	}
	return stats
}
