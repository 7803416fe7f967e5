package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/store/memory"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPlayer = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	testSeed   = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
)

var errStoreDown = errors.New("store down")

type published struct {
	Channel domain.Channel
	Type    string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(channel domain.Channel, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{channel, eventType, payload})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// failingRuns wraps a RunStore and fails the selected operations.
type failingRuns struct {
	*memory.RunStore
	failSave   bool
	failReplay bool
}

func (f *failingRuns) SaveRun(ctx context.Context, run *domain.Run) error {
	if f.failSave {
		return errStoreDown
	}
	return f.RunStore.SaveRun(ctx, run)
}

func (f *failingRuns) AppendReplayFrame(ctx context.Context, frame domain.ReplayFrame) error {
	if f.failReplay {
		return errStoreDown
	}
	return f.RunStore.AppendReplayFrame(ctx, frame)
}

type failingStats struct{}

func (failingStats) RecordRun(context.Context, *domain.Run) (domain.GlobalStats, error) {
	return domain.GlobalStats{}, errStoreDown
}

func (failingStats) Global(context.Context) (domain.GlobalStats, error) {
	return domain.GlobalStats{}, errStoreDown
}

type fixture struct {
	coordinator *RunCoordinator
	runs        *failingRuns
	tracker     *memory.ActiveRunTracker
	publisher   *recordingPublisher
	clock       *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runs:      &failingRuns{RunStore: memory.NewRunStore()},
		tracker:   memory.NewActiveRunTracker(),
		publisher: &recordingPublisher{},
		clock:     clockwork.NewFakeClockAt(time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)),
	}
	f.coordinator = NewRunCoordinator(f.runs, f.tracker, memory.NewStatsStore(), f.publisher, f.clock)
	return f
}

func validationType(t *testing.T, err error) {
	t.Helper()
	var structured *apperrors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, apperrors.TypeValidation, structured.Type)
}

func TestStartRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)

	assert.Equal(t, domain.RunInProgress, run.Status)
	assert.Equal(t, f.clock.Now(), run.StartTime)

	id, active, err := f.tracker.Current(ctx, testPlayer)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, run.ID, id)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, domain.ChannelRuns, ev.Channel)
	assert.Equal(t, domain.EventRunStarted, ev.Type)
	payload := ev.Payload.(map[string]any)
	assert.Equal(t, testPlayer, payload["playerId"])
	assert.Equal(t, run.ID.String(), payload["runId"])
	assert.Equal(t, testSeed, payload["seed"])
}

func TestStartRun_RejectsSecondActiveRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)

	_, err = f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.ErrorIs(t, err, domain.ErrDuplicateRun)
	assert.Len(t, f.publisher.events, 1)
}

func TestStartRun_ConcurrentStartsClaimOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed}); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, []string{domain.EventRunStarted}, f.publisher.types())
}

func TestStartRun_ValidationPublishesNothing(t *testing.T) {
	tests := []struct {
		name string
		req  StartRunRequest
	}{
		{"short address", StartRunRequest{PlayerID: "0x1234", Seed: testSeed}},
		{"missing prefix", StartRunRequest{PlayerID: testPlayer[2:] + "00", Seed: testSeed}},
		{"bad seed", StartRunRequest{PlayerID: testPlayer, Seed: "0xzz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.coordinator.StartRun(context.Background(), tt.req)
			validationType(t, err)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestStartRun_PersistenceFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runs.failSave = true

	_, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, f.publisher.events)

	_, active, err := f.tracker.Current(ctx, testPlayer)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCompleteRun_PublishesRunXPAndStatsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	outcome, err := f.coordinator.CompleteRun(ctx, CompleteRunRequest{
		PlayerID:       testPlayer,
		CPEarned:       150,
		Duration:       60,
		BonusThrowUsed: true,
		BoostsUsed:     []int{1, 2},
		ReplayData:     map[string]any{"frames": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, started.ID, outcome.Run.ID)
	assert.Equal(t, domain.RunCompleted, outcome.Run.Status)
	assert.Equal(t, 300, outcome.Run.CPEarned)
	assert.Equal(t, 30, outcome.Run.DBPMinted)
	assert.Equal(t, 50, outcome.XPEarned)
	assert.Equal(t, testSeed, outcome.Run.Seed)
	require.NotNil(t, outcome.Stats)
	assert.Equal(t, int64(1), outcome.Stats.TotalRuns)
	assert.Equal(t, int64(300), outcome.Stats.TotalCP)

	assert.Equal(t, []string{
		domain.EventRunStarted,
		domain.EventRunCompleted,
		domain.EventXPUpdate,
		domain.EventStatsUpdate,
	}, f.publisher.types())

	xp := f.publisher.events[2]
	assert.Equal(t, domain.ChannelXP, xp.Channel)
	assert.Equal(t, 50, xp.Payload.(map[string]any)["xpEarned"])

	_, active, err := f.tracker.Current(ctx, testPlayer)
	require.NoError(t, err)
	assert.False(t, active)

	frames, err := f.runs.ReplayFrames(ctx, testPlayer, 10)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestCompleteRun_WithoutStartCreatesRun(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.coordinator.CompleteRun(context.Background(), CompleteRunRequest{
		PlayerID: testPlayer,
		CPEarned: 40,
		Duration: 30,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, outcome.Run.ID)
	assert.Equal(t, f.clock.Now().Add(-30*time.Second), outcome.Run.StartTime)
	assert.Equal(t, zeroSeed, outcome.Run.Seed)
	assert.Equal(t, []int{}, outcome.Run.BoostsUsed)
}

func TestCompleteRun_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CompleteRunRequest
	}{
		{"cp too high", CompleteRunRequest{PlayerID: testPlayer, CPEarned: 10001, Duration: 60}},
		{"cp negative", CompleteRunRequest{PlayerID: testPlayer, CPEarned: -1, Duration: 60}},
		{"duration too short", CompleteRunRequest{PlayerID: testPlayer, Duration: 29}},
		{"duration too long", CompleteRunRequest{PlayerID: testPlayer, Duration: 301}},
		{"boost out of range", CompleteRunRequest{PlayerID: testPlayer, Duration: 60, BoostsUsed: []int{6}}},
		{"bad address", CompleteRunRequest{PlayerID: "alice", Duration: 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.coordinator.CompleteRun(context.Background(), tt.req)
			validationType(t, err)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestCompleteRun_PersistenceFailurePublishesNothing(t *testing.T) {
	t.Run("run", func(t *testing.T) {
		f := newFixture(t)
		f.runs.failSave = true
		_, err := f.coordinator.CompleteRun(context.Background(), CompleteRunRequest{PlayerID: testPlayer, Duration: 60})
		require.ErrorIs(t, err, domain.ErrPersistence)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("replay", func(t *testing.T) {
		f := newFixture(t)
		f.runs.failReplay = true
		_, err := f.coordinator.CompleteRun(context.Background(), CompleteRunRequest{
			PlayerID:   testPlayer,
			Duration:   60,
			ReplayData: []int{1, 2, 3},
		})
		require.ErrorIs(t, err, domain.ErrPersistence)
		assert.Empty(t, f.publisher.events)

		history, err := f.coordinator.History(context.Background(), testPlayer, 10)
		require.NoError(t, err)
		assert.Empty(t, history, "no run is stored without its replay")

		_, err = f.coordinator.StartRun(context.Background(), StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
		require.NoError(t, err, "the active slot is not held")
	})
}

func TestCompleteRun_ReplayFailureLeavesRunInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)

	req := CompleteRunRequest{PlayerID: testPlayer, CPEarned: 150, Duration: 60, ReplayData: []int{1, 2, 3}}
	f.runs.failReplay = true
	_, err = f.coordinator.CompleteRun(ctx, req)
	require.ErrorIs(t, err, domain.ErrPersistence)

	current, err := f.coordinator.CurrentRun(ctx, testPlayer)
	require.NoError(t, err)
	assert.Equal(t, started.ID, current.ID)
	assert.Equal(t, domain.RunInProgress, current.Status)

	f.runs.failReplay = false
	outcome, err := f.coordinator.CompleteRun(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, started.ID, outcome.Run.ID, "the retry completes the same run")

	history, err := f.coordinator.History(ctx, testPlayer, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RunCompleted, history[0].Status)

	replay, err := f.coordinator.Replay(ctx, started.ID.String())
	require.NoError(t, err)
	require.Len(t, replay.Frames, 1)

	_, err = f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)
}

func TestCompleteRun_StatsFailureSkipsOnlyStatsEvent(t *testing.T) {
	f := newFixture(t)
	f.coordinator = NewRunCoordinator(f.runs, f.tracker, failingStats{}, f.publisher, f.clock)

	outcome, err := f.coordinator.CompleteRun(context.Background(), CompleteRunRequest{PlayerID: testPlayer, CPEarned: 10, Duration: 60})
	require.NoError(t, err)
	assert.Nil(t, outcome.Stats)
	assert.Equal(t, []string{domain.EventRunCompleted, domain.EventXPUpdate}, f.publisher.types())
}

func TestCompleteRun_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("bus full")

	_, err := f.coordinator.CompleteRun(context.Background(), CompleteRunRequest{PlayerID: testPlayer, Duration: 60})
	require.NoError(t, err)
	assert.Len(t, f.publisher.events, 3)
}

func TestFailRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)

	run, err := f.coordinator.FailRun(ctx, FailRunRequest{PlayerID: testPlayer, Duration: 42})
	require.NoError(t, err)

	assert.Equal(t, started.ID, run.ID)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.DefaultFailReason, run.Reason)
	assert.Zero(t, run.CPEarned)
	assert.Zero(t, run.DBPMinted)

	assert.Equal(t, []string{domain.EventRunStarted, domain.EventRunFailed}, f.publisher.types())
	payload := f.publisher.events[1].Payload.(map[string]any)
	assert.Equal(t, "Game over", payload["reason"])
	assert.Equal(t, 42, payload["duration"])

	_, err = f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err, "failing a run frees the active slot")
}

func TestFailRun_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.FailRun(ctx, FailRunRequest{PlayerID: testPlayer})
	validationType(t, err)

	_, err = f.coordinator.FailRun(ctx, FailRunRequest{Duration: 10})
	validationType(t, err)

	_, err = f.coordinator.FailRun(ctx, FailRunRequest{PlayerID: "0xnothex", Duration: 10})
	validationType(t, err)
	assert.Empty(t, f.publisher.events)
}

func TestRecordReplayFrame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coordinator.RecordReplayFrame(ctx, testPlayer, map[string]any{"x": 1}))

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, domain.ChannelReplay, ev.Channel)
	assert.Equal(t, true, ev.Payload.(map[string]any)["isLive"])

	assert.NotContains(t, ev.Payload.(map[string]any), "runId", "no active run")

	validationType(t, f.coordinator.RecordReplayFrame(ctx, testPlayer, nil))

	f.runs.failReplay = true
	require.ErrorIs(t, f.coordinator.RecordReplayFrame(ctx, testPlayer, "frame"), domain.ErrPersistence)
	assert.Len(t, f.publisher.events, 1)
}

func TestCurrentRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.CurrentRun(ctx, testPlayer)
	require.ErrorIs(t, err, domain.ErrRunNotFound)

	started, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)

	got, err := f.coordinator.CurrentRun(ctx, testPlayer)
	require.NoError(t, err)
	assert.Equal(t, started.ID, got.ID)
}

func TestHistoryAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, cp := range []int{100, 300, 200} {
		_, err := f.coordinator.CompleteRun(ctx, CompleteRunRequest{PlayerID: testPlayer, CPEarned: cp, Duration: 60})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	history, err := f.coordinator.History(ctx, testPlayer, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 200, history[0].CPEarned)

	board, err := f.coordinator.Leaderboard(ctx, domain.LeaderboardCP, 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, 300, board[0].CPEarned)

	_, err = f.coordinator.Leaderboard(ctx, "xp", 10)
	validationType(t, err)

	stats, err := f.coordinator.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRuns)
	assert.InDelta(t, 60.0, stats.AverageDuration, 0.001)
}

func TestRecordReplayFrame_AttachesActiveRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)
	require.NoError(t, f.coordinator.RecordReplayFrame(ctx, testPlayer, map[string]any{"x": 1}))

	payload := f.publisher.events[1].Payload.(map[string]any)
	assert.Equal(t, started.ID.String(), payload["runId"])

	replay, err := f.coordinator.Replay(ctx, started.ID.String())
	require.NoError(t, err)
	assert.Equal(t, started.ID, replay.RunID)
	require.Len(t, replay.Frames, 1)
	assert.Equal(t, map[string]any{"x": 1}, replay.Frames[0].Event)
}

// blockingRuns holds Leaderboard reads until released and fails them if
// their context is done by then.
type blockingRuns struct {
	*memory.RunStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRuns) Leaderboard(ctx context.Context, kind domain.LeaderboardKind, limit int) ([]domain.Run, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.RunStore.Leaderboard(ctx, kind, limit)
}

func TestLeaderboard_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	runs := &blockingRuns{RunStore: memory.NewRunStore(), started: make(chan struct{}), release: make(chan struct{})}
	coordinator := NewRunCoordinator(runs, memory.NewActiveRunTracker(), memory.NewStatsStore(), &recordingPublisher{}, clockwork.NewFakeClock())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := coordinator.Leaderboard(firstCtx, domain.LeaderboardCP, 10)
		firstErr <- err
	}()
	<-runs.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := coordinator.Leaderboard(context.Background(), domain.LeaderboardCP, 10)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(runs.release)

	select {
	case err := <-secondErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("leaderboard read never finished")
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := "0x9999999999999999999999999999999999999999"

	_, err := f.coordinator.CompleteRun(ctx, CompleteRunRequest{PlayerID: other, CPEarned: 500, Duration: 60})
	require.NoError(t, err)
	for _, cp := range []int{100, 200} {
		_, err := f.coordinator.CompleteRun(ctx, CompleteRunRequest{PlayerID: testPlayer, CPEarned: cp, Duration: 60})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	_, err = f.coordinator.FailRun(ctx, FailRunRequest{PlayerID: testPlayer, Duration: 30})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	started, err := f.coordinator.StartRun(ctx, StartRunRequest{PlayerID: testPlayer, Seed: testSeed})
	require.NoError(t, err)
	require.NoError(t, f.coordinator.RecordReplayFrame(ctx, testPlayer, "frame"))

	dash, err := f.coordinator.Dashboard(ctx, testPlayer)
	require.NoError(t, err)

	assert.Equal(t, testPlayer, dash.PlayerID)
	assert.Equal(t, 4, dash.Stats.TotalRuns)
	assert.Equal(t, 2, dash.Stats.CompletedRuns)
	assert.Equal(t, 1, dash.Stats.FailedRuns)
	assert.InDelta(t, 50.0, dash.Stats.WinRate, 0.001)
	assert.Equal(t, 30, dash.Stats.TotalEarnings)
	require.NotNil(t, dash.Stats.Rank)
	assert.Equal(t, 2, *dash.Stats.Rank, "behind the other player's 500 CP run")

	require.NotNil(t, dash.CurrentRun)
	assert.Equal(t, started.ID, dash.CurrentRun.ID)
	assert.Len(t, dash.RecentRuns, 4)
	require.Len(t, dash.RecentFrames, 1)
	assert.Equal(t, int64(3), dash.GlobalStats.TotalRuns)

	_, err = f.coordinator.Dashboard(ctx, "nobody")
	validationType(t, err)
}

func TestDashboard_UnrankedPlayer(t *testing.T) {
	f := newFixture(t)

	dash, err := f.coordinator.Dashboard(context.Background(), testPlayer)
	require.NoError(t, err)
	assert.Zero(t, dash.Stats.TotalRuns)
	assert.Nil(t, dash.Stats.Rank)
	assert.Nil(t, dash.CurrentRun)
	assert.Empty(t, dash.RecentFrames)
}

func TestRecentReplaysAndReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withReplay, err := f.coordinator.CompleteRun(ctx, CompleteRunRequest{PlayerID: testPlayer, CPEarned: 150, Duration: 75, ReplayData: []int{1}})
	require.NoError(t, err)
	_, err = f.coordinator.CompleteRun(ctx, CompleteRunRequest{PlayerID: testPlayer, CPEarned: 90, Duration: 60})
	require.NoError(t, err)

	replays, err := f.coordinator.RecentReplays(ctx, 20)
	require.NoError(t, err)
	require.Len(t, replays, 1)
	assert.Equal(t, withReplay.Run.ID, replays[0].ID)
	assert.Equal(t, "1:15", replays[0].DurationFormatted)
	assert.InDelta(t, 2.0, replays[0].CPPerSecond, 0.001)

	replay, err := f.coordinator.Replay(ctx, withReplay.Run.ID.String())
	require.NoError(t, err)
	require.Len(t, replay.Frames, 1)
	assert.Equal(t, []int{1}, replay.Frames[0].Event)

	_, err = f.coordinator.Replay(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrReplayNotFound)

	_, err = f.coordinator.Replay(ctx, "not-a-uuid")
	validationType(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:05", formatDuration(5))
	assert.Equal(t, "1:00", formatDuration(60))
	assert.Equal(t, "5:00", formatDuration(300))
}
