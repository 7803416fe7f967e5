package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/google/uuid"
)

type RunStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]domain.Run
	frames []domain.ReplayFrame
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]domain.Run)}
}

func (s *RunStore) SaveRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *run
	stored.BoostsUsed = slices.Clone(run.BoostsUsed)
	s.runs[run.ID] = stored
	return nil
}

func (s *RunStore) LatestRun(_ context.Context, playerID string, status domain.RunStatus) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Run
	for _, run := range s.runs {
		if run.PlayerID != playerID || run.Status != status {
			continue
		}
		if latest == nil || run.StartTime.After(latest.StartTime) {
			r := run
			latest = &r
		}
	}
	if latest == nil {
		return nil, domain.ErrRunNotFound
	}
	return latest, nil
}

func (s *RunStore) ListRuns(_ context.Context, playerID string, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	out := make([]domain.Run, 0)
	for _, run := range s.runs {
		if run.PlayerID == playerID {
			out = append(out, run)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Run) int { return b.StartTime.Compare(a.StartTime) })
	return truncate(out, limit), nil
}

func (s *RunStore) Leaderboard(_ context.Context, kind domain.LeaderboardKind, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	out := make([]domain.Run, 0)
	for _, run := range s.runs {
		if run.Status == domain.RunCompleted {
			out = append(out, run)
		}
	}
	s.mu.RUnlock()

	key := func(r domain.Run) int {
		switch kind {
		case domain.LeaderboardDBP:
			return r.DBPMinted
		case domain.LeaderboardDuration:
			return r.Duration
		default:
			return r.CPEarned
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Run) int {
		if c := cmp.Compare(key(b), key(a)); c != 0 {
			return c
		}
		return a.StartTime.Compare(b.StartTime)
	})
	return truncate(out, limit), nil
}

func (s *RunStore) AppendReplayFrame(_ context.Context, frame domain.ReplayFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

// ReplayFrames returns the newest frames for a player, oldest first.
func (s *RunStore) ReplayFrames(_ context.Context, playerID string, limit int) ([]domain.ReplayFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ReplayFrame
	for i := len(s.frames) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.frames[i].PlayerID == playerID {
			out = append(out, s.frames[i])
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *RunStore) RunReplay(_ context.Context, runID uuid.UUID) ([]domain.ReplayFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ReplayFrame
	for _, frame := range s.frames {
		if frame.RunID != nil && *frame.RunID == runID {
			out = append(out, frame)
		}
	}
	return out, nil
}

func (s *RunStore) RecentReplays(_ context.Context, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	withFrames := make(map[uuid.UUID]bool)
	for _, frame := range s.frames {
		if frame.RunID != nil {
			withFrames[*frame.RunID] = true
		}
	}
	out := make([]domain.Run, 0)
	for _, run := range s.runs {
		if run.Status == domain.RunCompleted && withFrames[run.ID] {
			out = append(out, run)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Run) int { return endTime(b).Compare(endTime(a)) })
	return truncate(out, limit), nil
}

func (s *RunStore) Ping(context.Context) error { return nil }

func endTime(run domain.Run) time.Time {
	if run.EndTime == nil {
		return run.StartTime
	}
	return *run.EndTime
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
