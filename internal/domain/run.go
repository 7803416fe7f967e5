package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

const DefaultFailReason = "Game over"

type Run struct {
	ID             uuid.UUID  `json:"id"`
	PlayerID       string     `json:"playerAddress"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Status         RunStatus  `json:"status"`
	CPEarned       int        `json:"cpEarned"`
	DBPMinted      int        `json:"dbpMinted"`
	BonusThrowUsed bool       `json:"bonusThrowUsed"`
	BoostsUsed     []int      `json:"boostsUsed"`
	Seed           string     `json:"seed,omitempty"`
	Duration       int        `json:"duration"`
	Reason         string     `json:"reason,omitempty"`
	XPEarned       int        `json:"xpEarned,omitempty"`
}

// ReplayFrame is one recorded game-state event for a player's run. RunID is
// nil for live frames sent while the player had no active run.
type ReplayFrame struct {
	PlayerID   string     `json:"playerAddress"`
	RunID      *uuid.UUID `json:"runId,omitempty"`
	Event      any        `json:"event"`
	RecordedAt time.Time  `json:"recordedAt"`
}

type LeaderboardKind string

const (
	LeaderboardCP       LeaderboardKind = "cp_earned"
	LeaderboardDBP      LeaderboardKind = "dbp_minted"
	LeaderboardDuration LeaderboardKind = "duration"
)

func (k LeaderboardKind) Valid() bool {
	switch k {
	case LeaderboardCP, LeaderboardDBP, LeaderboardDuration:
		return true
	}
	return false
}

type RunRepository interface {
	// SaveRun inserts or replaces the run identified by run.ID.
	SaveRun(ctx context.Context, run *Run) error
	// LatestRun returns the most recent run for a player in the given status.
	LatestRun(ctx context.Context, playerID string, status RunStatus) (*Run, error)
	ListRuns(ctx context.Context, playerID string, limit int) ([]Run, error)
	Leaderboard(ctx context.Context, kind LeaderboardKind, limit int) ([]Run, error)

	AppendReplayFrame(ctx context.Context, frame ReplayFrame) error
	// ReplayFrames returns a player's newest frames, oldest first.
	ReplayFrames(ctx context.Context, playerID string, limit int) ([]ReplayFrame, error)
	// RunReplay returns every frame recorded for one run, oldest first.
	RunReplay(ctx context.Context, runID uuid.UUID) ([]ReplayFrame, error)
	// RecentReplays returns completed runs that have recorded frames, most
	// recently finished first.
	RecentReplays(ctx context.Context, limit int) ([]Run, error)

	Ping(ctx context.Context) error
}

// ActiveRunTracker guards the one-run-per-player rule. Claim must be atomic
// across concurrent callers.
type ActiveRunTracker interface {
	Claim(ctx context.Context, playerID string, runID uuid.UUID) (bool, error)
	Release(ctx context.Context, playerID string) error
	Current(ctx context.Context, playerID string) (uuid.UUID, bool, error)
}
