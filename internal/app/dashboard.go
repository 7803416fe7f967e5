package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// dashboardWindow bounds the runs a player summary is computed from.
	dashboardWindow     = 100
	dashboardRecentRuns = 10
	dashboardFrames     = 10
	rankingDepth        = 1000
)

// PlayerStats summarises the player's runs inside the dashboard window.
// Rank is nil when the player has no run in the top CP ranking.
type PlayerStats struct {
	TotalRuns     int     `json:"totalRuns"`
	CompletedRuns int     `json:"completedRuns"`
	FailedRuns    int     `json:"failedRuns"`
	WinRate       float64 `json:"winRate"`
	TotalEarnings int     `json:"totalEarnings"`
	Rank          *int    `json:"rank"`
}

type PlayerDashboard struct {
	PlayerID     string               `json:"playerAddress"`
	Stats        PlayerStats          `json:"stats"`
	CurrentRun   *domain.Run          `json:"currentRun"`
	RecentRuns   []domain.Run         `json:"recentRuns"`
	RecentFrames []domain.ReplayFrame `json:"recentFrames"`
	GlobalStats  domain.GlobalStats   `json:"globalStats"`
}

// ReplaySummary is a completed run that has a stored replay.
type ReplaySummary struct {
	domain.Run
	DurationFormatted string  `json:"durationFormatted"`
	CPPerSecond       float64 `json:"cpPerSecond"`
}

type RunReplay struct {
	RunID  uuid.UUID            `json:"runId"`
	Frames []domain.ReplayFrame `json:"frames"`
}

// Dashboard gathers a player's summary. The reads run concurrently and the
// first failure aborts the rest.
func (c *RunCoordinator) Dashboard(ctx context.Context, playerID string) (*PlayerDashboard, error) {
	if err := validateAddress(playerID); err != nil {
		return nil, err
	}

	dash := &PlayerDashboard{PlayerID: playerID}
	var runs []domain.Run
	var ranking []domain.Run

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if runs, err = c.runs.ListRuns(gctx, playerID, dashboardWindow); err != nil {
			return fmt.Errorf("%w: list runs: %w", domain.ErrPersistence, err)
		}
		return nil
	})
	g.Go(func() error {
		run, err := c.CurrentRun(gctx, playerID)
		switch {
		case err == nil:
			dash.CurrentRun = run
		case !errors.Is(err, domain.ErrRunNotFound):
			return err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if dash.RecentFrames, err = c.runs.ReplayFrames(gctx, playerID, dashboardFrames); err != nil {
			return fmt.Errorf("%w: replay frames: %w", domain.ErrPersistence, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ranking, err = c.Leaderboard(gctx, domain.LeaderboardCP, rankingDepth)
		return err
	})
	g.Go(func() error {
		var err error
		dash.GlobalStats, err = c.Stats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dash.Stats = summarizePlayer(runs, ranking, playerID)
	dash.RecentRuns = runs[:min(len(runs), dashboardRecentRuns)]
	if dash.RecentFrames == nil {
		dash.RecentFrames = []domain.ReplayFrame{}
	}
	return dash, nil
}

func summarizePlayer(runs, ranking []domain.Run, playerID string) PlayerStats {
	var stats PlayerStats
	for _, run := range runs {
		stats.TotalRuns++
		switch run.Status {
		case domain.RunCompleted:
			stats.CompletedRuns++
			stats.TotalEarnings += run.DBPMinted
		case domain.RunFailed:
			stats.FailedRuns++
		}
	}
	if stats.TotalRuns > 0 {
		stats.WinRate = math.Round(float64(stats.CompletedRuns)/float64(stats.TotalRuns)*1000) / 10
	}
	for i, run := range ranking {
		if strings.EqualFold(run.PlayerID, playerID) {
			rank := i + 1
			stats.Rank = &rank
			break
		}
	}
	return stats
}

// RecentReplays lists the most recently finished runs that carry a replay.
func (c *RunCoordinator) RecentReplays(ctx context.Context, limit int) ([]ReplaySummary, error) {
	runs, err := c.runs.RecentReplays(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent replays: %w", domain.ErrPersistence, err)
	}
	out := make([]ReplaySummary, len(runs))
	for i, run := range runs {
		out[i] = ReplaySummary{Run: run, DurationFormatted: formatDuration(run.Duration)}
		if run.Duration > 0 {
			out[i].CPPerSecond = math.Round(float64(run.CPEarned)/float64(run.Duration)*100) / 100
		}
	}
	return out, nil
}

// Replay returns the stored frames of one run.
func (c *RunCoordinator) Replay(ctx context.Context, rawRunID string) (*RunReplay, error) {
	runID, err := uuid.Parse(rawRunID)
	if err != nil {
		return nil, apperrors.ValidationError("Invalid run id").WithContext("runId", rawRunID)
	}
	frames, err := c.runs.RunReplay(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: run replay: %w", domain.ErrPersistence, err)
	}
	if len(frames) == 0 {
		return nil, domain.ErrReplayNotFound
	}
	return &RunReplay{RunID: runID, Frames: frames}, nil
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
