package database

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runColumns = `id, player_address, start_time, end_time, status, cp_earned, dbp_minted,
	bonus_throw_used, boosts_used, seed, duration, reason, xp_earned`

const frameColumns = `player_address, run_id, recorded_at, payload`

// leaderboardColumns maps each ranking to its sort column. Only these
// identifiers are ever interpolated into SQL.
var leaderboardColumns = map[domain.LeaderboardKind]string{
	domain.LeaderboardCP:       "cp_earned",
	domain.LeaderboardDBP:      "dbp_minted",
	domain.LeaderboardDuration: "duration",
}

// RunRepo persists run logs and compressed replay frames in PostgreSQL.
type RunRepo struct {
	pool *pgxpool.Pool
}

var _ domain.RunRepository = (*RunRepo)(nil)

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

func (r *RunRepo) SaveRun(ctx context.Context, run *domain.Run) error {
	boosts := run.BoostsUsed
	if boosts == nil {
		boosts = []int{}
	}
	_, err := r.pool.Exec(ctx, `-- name: SaveRun
		INSERT INTO run_logs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			status = EXCLUDED.status,
			cp_earned = EXCLUDED.cp_earned,
			dbp_minted = EXCLUDED.dbp_minted,
			bonus_throw_used = EXCLUDED.bonus_throw_used,
			boosts_used = EXCLUDED.boosts_used,
			seed = EXCLUDED.seed,
			duration = EXCLUDED.duration,
			reason = EXCLUDED.reason,
			xp_earned = EXCLUDED.xp_earned`,
		run.ID, run.PlayerID, run.StartTime, run.EndTime, string(run.Status), run.CPEarned, run.DBPMinted,
		run.BonusThrowUsed, boosts, run.Seed, run.Duration, run.Reason, run.XPEarned,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (r *RunRepo) LatestRun(ctx context.Context, playerID string, status domain.RunStatus) (*domain.Run, error) {
	rows, err := r.pool.Query(ctx, `-- name: LatestRun
		SELECT `+runColumns+` FROM run_logs
		WHERE player_address = $1 AND status = $2
		ORDER BY start_time DESC
		LIMIT 1`, playerID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	run, err := pgx.CollectOneRow(rows, scanRun)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return &run, nil
}

func (r *RunRepo) ListRuns(ctx context.Context, playerID string, limit int) ([]domain.Run, error) {
	rows, err := r.pool.Query(ctx, `-- name: ListRuns
		SELECT `+runColumns+` FROM run_logs
		WHERE player_address = $1
		ORDER BY start_time DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (r *RunRepo) Leaderboard(ctx context.Context, kind domain.LeaderboardKind, limit int) ([]domain.Run, error) {
	column, ok := leaderboardColumns[kind]
	if !ok {
		return nil, fmt.Errorf("unknown leaderboard %q", kind)
	}
	rows, err := r.pool.Query(ctx, `-- name: Leaderboard
		SELECT `+runColumns+` FROM run_logs
		WHERE status = 'completed'
		ORDER BY `+column+` DESC, start_time ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	return runs, nil
}

func (r *RunRepo) AppendReplayFrame(ctx context.Context, frame domain.ReplayFrame) error {
	payload, err := encodeReplay(frame.Event)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `-- name: AppendReplayFrame
		INSERT INTO replay_frames (player_address, run_id, recorded_at, payload)
		VALUES ($1, $2, $3, $4)`, frame.PlayerID, runIDParam(frame.RunID), frame.RecordedAt, payload)
	if err != nil {
		return fmt.Errorf("failed to append replay frame: %w", err)
	}
	return nil
}

// ReplayFrames returns the newest limit frames for a player, oldest first.
func (r *RunRepo) ReplayFrames(ctx context.Context, playerID string, limit int) ([]domain.ReplayFrame, error) {
	rows, err := r.pool.Query(ctx, `-- name: ReplayFrames
		SELECT `+frameColumns+` FROM replay_frames
		WHERE player_address = $1
		ORDER BY id DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list replay frames: %w", err)
	}
	frames, err := pgx.CollectRows(rows, scanFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to list replay frames: %w", err)
	}
	slices.Reverse(frames)
	return frames, nil
}

func (r *RunRepo) RunReplay(ctx context.Context, runID uuid.UUID) ([]domain.ReplayFrame, error) {
	rows, err := r.pool.Query(ctx, `-- name: RunReplay
		SELECT `+frameColumns+` FROM replay_frames
		WHERE run_id = $1
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run replay: %w", err)
	}
	frames, err := pgx.CollectRows(rows, scanFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to load run replay: %w", err)
	}
	return frames, nil
}

func (r *RunRepo) RecentReplays(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := r.pool.Query(ctx, `-- name: RecentReplays
		SELECT `+runColumns+` FROM run_logs r
		WHERE r.status = 'completed'
		  AND EXISTS (SELECT 1 FROM replay_frames f WHERE f.run_id = r.id)
		ORDER BY r.end_time DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent replays: %w", err)
	}
	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent replays: %w", err)
	}
	return runs, nil
}

func (r *RunRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanFrame(row pgx.CollectableRow) (domain.ReplayFrame, error) {
	var frame domain.ReplayFrame
	var runID pgtype.UUID
	var payload []byte
	if err := row.Scan(&frame.PlayerID, &runID, &frame.RecordedAt, &payload); err != nil {
		return frame, err
	}
	if runID.Valid {
		id := uuid.UUID(runID.Bytes)
		frame.RunID = &id
	}
	event, err := decodeReplay(payload)
	if err != nil {
		return frame, err
	}
	frame.Event = event
	return frame, nil
}

func runIDParam(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func scanRun(row pgx.CollectableRow) (domain.Run, error) {
	var run domain.Run
	var status string
	err := row.Scan(
		&run.ID, &run.PlayerID, &run.StartTime, &run.EndTime, &status, &run.CPEarned, &run.DBPMinted,
		&run.BonusThrowUsed, &run.BoostsUsed, &run.Seed, &run.Duration, &run.Reason, &run.XPEarned,
	)
	run.Status = domain.RunStatus(status)
	return run, err
}
