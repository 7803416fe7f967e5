package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/google/uuid"
)

type ActiveRunTracker struct {
	mu     sync.Mutex
	active map[string]uuid.UUID
}

func NewActiveRunTracker() *ActiveRunTracker {
	return &ActiveRunTracker{active: make(map[string]uuid.UUID)}
}

func (t *ActiveRunTracker) Claim(_ context.Context, playerID string, runID uuid.UUID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.active[playerID]; exists {
		return false, nil
	}
	t.active[playerID] = runID
	return true, nil
}

func (t *ActiveRunTracker) Release(_ context.Context, playerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, playerID)
	return nil
}

func (t *ActiveRunTracker) Current(_ context.Context, playerID string) (uuid.UUID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.active[playerID]
	return id, ok, nil
}

type StatsStore struct {
	mu    sync.Mutex
	stats domain.GlobalStats
}

func NewStatsStore() *StatsStore {
	return &StatsStore{}
}

func (s *StatsStore) RecordRun(_ context.Context, run *domain.Run) (domain.GlobalStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalRuns++
	s.stats.TotalCP += int64(run.CPEarned)
	s.stats.TotalDBP += int64(run.DBPMinted)
	s.stats.TotalDuration += int64(run.Duration)
	s.stats.AverageDuration = float64(s.stats.TotalDuration) / float64(s.stats.TotalRuns)
	return s.stats, nil
}

func (s *StatsStore) Global(context.Context) (domain.GlobalStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

// PriceHistory keeps points for the retention window, trimming on append.
type PriceHistory struct {
	mu        sync.RWMutex
	points    []domain.PricePoint
	retention time.Duration
}

func NewPriceHistory(retention time.Duration) *PriceHistory {
	return &PriceHistory{retention: retention}
}

func (h *PriceHistory) Append(_ context.Context, point domain.PricePoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = append(h.points, point)

	cutoff := point.Timestamp.Add(-h.retention)
	drop := sort.Search(len(h.points), func(i int) bool { return !h.points[i].Timestamp.Before(cutoff) })
	if drop > 0 {
		h.points = append([]domain.PricePoint(nil), h.points[drop:]...)
	}
	return nil
}

func (h *PriceHistory) Latest(context.Context) (domain.PricePoint, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.points) == 0 {
		return domain.PricePoint{}, false, nil
	}
	return h.points[len(h.points)-1], true, nil
}

// Since returns the newest limit points at or after t, oldest first.
func (h *PriceHistory) Since(_ context.Context, t time.Time, limit int) ([]domain.PricePoint, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := sort.Search(len(h.points), func(i int) bool { return !h.points[i].Timestamp.Before(t) })
	window := h.points[start:]
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	return append([]domain.PricePoint(nil), window...), nil
}
