package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const storeTimeout = 5 * time.Second

type StartRunRequest struct {
	PlayerID string `json:"playerAddress"`
	Seed     string `json:"seed"`
}

type CompleteRunRequest struct {
	PlayerID       string `json:"playerAddress"`
	CPEarned       int    `json:"cpEarned"`
	Duration       int    `json:"duration"`
	BonusThrowUsed bool   `json:"bonusThrowUsed"`
	BoostsUsed     []int  `json:"boostsUsed"`
	ReplayData     any    `json:"replayData,omitempty"`
	Seed           string `json:"seed,omitempty"`
}

type FailRunRequest struct {
	PlayerID string `json:"playerAddress"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
}

// RunOutcome is the result of a completed run. Stats is nil when the global
// aggregates could not be updated.
type RunOutcome struct {
	Run      *domain.Run         `json:"run"`
	XPEarned int                 `json:"xpEarned"`
	Stats    *domain.GlobalStats `json:"stats,omitempty"`
}

// RunCoordinator is the only producer of runs and xp events. Every operation
// persists first and publishes only after the write succeeded.
type RunCoordinator struct {
	runs      domain.RunRepository
	tracker   domain.ActiveRunTracker
	stats     domain.StatsStore
	publisher domain.Publisher
	clock     clockwork.Clock

	leaderboardGroup singleflight.Group
}

func NewRunCoordinator(runs domain.RunRepository, tracker domain.ActiveRunTracker, stats domain.StatsStore, publisher domain.Publisher, clock clockwork.Clock) *RunCoordinator {
	return &RunCoordinator{
		runs:      runs,
		tracker:   tracker,
		stats:     stats,
		publisher: publisher,
		clock:     clock,
	}
}

// StartRun claims the player's single active-run slot, stores the run as in
// progress and announces it.
func (c *RunCoordinator) StartRun(ctx context.Context, req StartRunRequest) (*domain.Run, error) {
	if err := req.Validate(); err != nil {
		metrics.RunsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	run := &domain.Run{
		ID:         uuid.New(),
		PlayerID:   req.PlayerID,
		StartTime:  c.clock.Now(),
		Status:     domain.RunInProgress,
		BoostsUsed: []int{},
		Seed:       req.Seed,
	}

	claimed, err := c.tracker.Claim(ctx, run.PlayerID, run.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: claim active run: %w", domain.ErrPersistence, err)
	}
	if !claimed {
		metrics.RunsRejectedTotal.WithLabelValues("duplicate").Inc()
		slog.InfoContext(ctx, "Run start rejected, player already has an active run", "player", run.PlayerID)
		return nil, domain.ErrDuplicateRun
	}

	if err := c.save(ctx, run); err != nil {
		c.release(ctx, run.PlayerID)
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues(string(domain.RunInProgress)).Inc()
	slog.InfoContext(ctx, "Run started", "player", run.PlayerID, "run_id", run.ID.String())

	c.publish(ctx, domain.ChannelRuns, domain.EventRunStarted, map[string]any{
		"playerId":  run.PlayerID,
		"runId":     run.ID.String(),
		"startTime": run.StartTime,
		"seed":      run.Seed,
	})
	return run, nil
}

// CompleteRun scores and stores the player's run, then publishes the run,
// xp and stats updates in that order.
func (c *RunCoordinator) CompleteRun(ctx context.Context, req CompleteRunRequest) (*RunOutcome, error) {
	if err := req.Validate(); err != nil {
		metrics.RunsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	outcome := Score(req.CPEarned, req.Duration, req.BonusThrowUsed, req.BoostsUsed)
	now := c.clock.Now()

	run, err := c.activeOrNew(ctx, req.PlayerID, now.Add(-time.Duration(req.Duration)*time.Second))
	if err != nil {
		return nil, err
	}
	run.EndTime = &now
	run.Status = domain.RunCompleted
	run.CPEarned = outcome.FinalCP
	run.DBPMinted = outcome.DBPMinted
	run.XPEarned = outcome.XPEarned
	run.BonusThrowUsed = req.BonusThrowUsed
	run.BoostsUsed = append([]int{}, req.BoostsUsed...)
	run.Duration = req.Duration
	if req.Seed != "" {
		run.Seed = req.Seed
	}
	if run.Seed == "" {
		run.Seed = zeroSeed
	}

	// A run is marked completed only after its replay is stored.
	if req.ReplayData != nil {
		frame := domain.ReplayFrame{PlayerID: run.PlayerID, RunID: &run.ID, Event: req.ReplayData, RecordedAt: now}
		if err := c.appendFrame(ctx, frame); err != nil {
			return nil, err
		}
	}
	if err := c.save(ctx, run); err != nil {
		return nil, err
	}
	c.release(ctx, run.PlayerID)

	metrics.RunsTotal.WithLabelValues(string(domain.RunCompleted)).Inc()
	metrics.RunCPEarned.Observe(float64(outcome.FinalCP))
	slog.InfoContext(ctx, "Run completed",
		"player", run.PlayerID,
		"run_id", run.ID.String(),
		"cp", outcome.FinalCP,
		"dbp", outcome.DBPMinted,
		"xp", outcome.XPEarned,
	)

	result := &RunOutcome{Run: run, XPEarned: outcome.XPEarned}

	stats, statsErr := c.recordStats(ctx, run)
	if statsErr == nil {
		result.Stats = &stats
	} else {
		slog.WarnContext(ctx, "Failed to update global stats", "player", run.PlayerID, "error", statsErr)
	}

	c.publish(ctx, domain.ChannelRuns, domain.EventRunCompleted, map[string]any{
		"playerId":       run.PlayerID,
		"runId":          run.ID.String(),
		"cpEarned":       run.CPEarned,
		"dbpMinted":      run.DBPMinted,
		"duration":       run.Duration,
		"bonusThrowUsed": run.BonusThrowUsed,
		"boostsUsed":     run.BoostsUsed,
	})
	c.publish(ctx, domain.ChannelXP, domain.EventXPUpdate, map[string]any{
		"playerId":       run.PlayerID,
		"xpEarned":       outcome.XPEarned,
		"cpEarned":       run.CPEarned,
		"dbpMinted":      run.DBPMinted,
		"bonusThrowUsed": run.BonusThrowUsed,
		"boostsUsed":     run.BoostsUsed,
	})
	if result.Stats != nil {
		c.publish(ctx, domain.ChannelStats, domain.EventStatsUpdate, stats)
	}
	return result, nil
}

// FailRun closes the player's run with zero earnings.
func (c *RunCoordinator) FailRun(ctx context.Context, req FailRunRequest) (*domain.Run, error) {
	if err := req.Validate(); err != nil {
		metrics.RunsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.DefaultFailReason
	}

	now := c.clock.Now()
	run, err := c.activeOrNew(ctx, req.PlayerID, now.Add(-time.Duration(req.Duration)*time.Second))
	if err != nil {
		return nil, err
	}
	run.EndTime = &now
	run.Status = domain.RunFailed
	run.CPEarned = 0
	run.DBPMinted = 0
	run.Duration = req.Duration
	run.Reason = reason
	if run.Seed == "" {
		run.Seed = zeroSeed
	}

	if err := c.save(ctx, run); err != nil {
		return nil, err
	}
	c.release(ctx, run.PlayerID)

	metrics.RunsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
	slog.InfoContext(ctx, "Run failed", "player", run.PlayerID, "run_id", run.ID.String(), "reason", reason)

	c.publish(ctx, domain.ChannelRuns, domain.EventRunFailed, map[string]any{
		"playerId": run.PlayerID,
		"runId":    run.ID.String(),
		"duration": run.Duration,
		"reason":   reason,
		"failedAt": now,
	})
	return run, nil
}

// RecordReplayFrame appends a live game-state frame and forwards it to
// replay subscribers.
func (c *RunCoordinator) RecordReplayFrame(ctx context.Context, playerID string, event any) error {
	if err := validateAddress(playerID); err != nil {
		return err
	}
	if event == nil {
		return apperrors.ValidationError("Replay event is required")
	}

	frame := domain.ReplayFrame{PlayerID: playerID, Event: event, RecordedAt: c.clock.Now()}
	if runID, active, err := c.tracker.Current(ctx, playerID); err != nil {
		slog.WarnContext(ctx, "Failed to look up active run for replay frame", "player", playerID, "error", err)
	} else if active {
		frame.RunID = &runID
	}
	if err := c.appendFrame(ctx, frame); err != nil {
		return err
	}
	metrics.ReplayFramesTotal.Inc()

	payload := map[string]any{
		"playerId": playerID,
		"event":    event,
		"isLive":   true,
	}
	if frame.RunID != nil {
		payload["runId"] = frame.RunID.String()
	}
	c.publish(ctx, domain.ChannelReplay, domain.EventReplayUpdate, payload)
	return nil
}

// History returns a player's runs, newest first.
func (c *RunCoordinator) History(ctx context.Context, playerID string, limit int) ([]domain.Run, error) {
	if err := validateAddress(playerID); err != nil {
		return nil, err
	}
	runs, err := c.runs.ListRuns(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", domain.ErrPersistence, err)
	}
	return runs, nil
}

// CurrentRun returns the player's in-progress run.
func (c *RunCoordinator) CurrentRun(ctx context.Context, playerID string) (*domain.Run, error) {
	if err := validateAddress(playerID); err != nil {
		return nil, err
	}
	if _, active, err := c.tracker.Current(ctx, playerID); err != nil {
		return nil, fmt.Errorf("%w: current run: %w", domain.ErrPersistence, err)
	} else if !active {
		return nil, domain.ErrRunNotFound
	}
	run, err := c.runs.LatestRun(ctx, playerID, domain.RunInProgress)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: latest run: %w", domain.ErrPersistence, err)
	}
	return run, nil
}

// Leaderboard collapses concurrent identical queries into one store read.
func (c *RunCoordinator) Leaderboard(ctx context.Context, kind domain.LeaderboardKind, limit int) ([]domain.Run, error) {
	if !kind.Valid() {
		return nil, apperrors.ValidationError("Invalid leaderboard type").
			WithContext("validTypes", []domain.LeaderboardKind{domain.LeaderboardCP, domain.LeaderboardDBP, domain.LeaderboardDuration})
	}
	key := string(kind) + ":" + strconv.Itoa(limit)
	ch := c.leaderboardGroup.DoChan(key, func() (any, error) {
		// The read is shared, so one caller going away must not fail the rest.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
		return c.runs.Leaderboard(readCtx, kind, limit)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		return nil, fmt.Errorf("%w: leaderboard: %w", domain.ErrPersistence, err)
	}
	return v.([]domain.Run), nil
}

func (c *RunCoordinator) Stats(ctx context.Context) (domain.GlobalStats, error) {
	stats, err := c.stats.Global(ctx)
	if err != nil {
		return domain.GlobalStats{}, fmt.Errorf("%w: global stats: %w", domain.ErrPersistence, err)
	}
	return stats, nil
}

// activeOrNew returns the player's in-progress run if one exists, otherwise a
// fresh run that started at start.
func (c *RunCoordinator) activeOrNew(ctx context.Context, playerID string, start time.Time) (*domain.Run, error) {
	run, err := c.runs.LatestRun(ctx, playerID, domain.RunInProgress)
	switch {
	case err == nil:
		return run, nil
	case errors.Is(err, domain.ErrRunNotFound):
		return &domain.Run{ID: uuid.New(), PlayerID: playerID, StartTime: start, BoostsUsed: []int{}}, nil
	default:
		return nil, fmt.Errorf("%w: load active run: %w", domain.ErrPersistence, err)
	}
}

func (c *RunCoordinator) save(ctx context.Context, run *domain.Run) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.runs.SaveRun(ctx, run); err != nil {
		slog.ErrorContext(ctx, "Failed to persist run", "player", run.PlayerID, "status", string(run.Status), "error", err)
		return fmt.Errorf("%w: save run: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (c *RunCoordinator) appendFrame(ctx context.Context, frame domain.ReplayFrame) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := c.runs.AppendReplayFrame(ctx, frame); err != nil {
		slog.ErrorContext(ctx, "Failed to persist replay frame", "player", frame.PlayerID, "error", err)
		return fmt.Errorf("%w: append replay frame: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (c *RunCoordinator) recordStats(ctx context.Context, run *domain.Run) (domain.GlobalStats, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return c.stats.RecordRun(ctx, run)
}

// release frees the active-run slot. A failure only delays the player's next
// start until the tracker entry expires, so it is logged and not returned.
func (c *RunCoordinator) release(ctx context.Context, playerID string) {
	if err := c.tracker.Release(ctx, playerID); err != nil {
		slog.WarnContext(ctx, "Failed to release active run", "player", playerID, "error", err)
	}
}

func (c *RunCoordinator) publish(ctx context.Context, channel domain.Channel, eventType string, payload any) {
	if err := c.publisher.Publish(channel, eventType, payload); err != nil {
		slog.WarnContext(ctx, "Failed to publish event", "channel", string(channel), "type", eventType, "error", err)
	}
}
