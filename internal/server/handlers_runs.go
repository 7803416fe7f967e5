package server

import (
	"strconv"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/app"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/labstack/echo/v4"
)

const (
	defaultHistoryLimit     = 50
	maxHistoryLimit         = 100
	defaultLeaderboardLimit = 100
	maxLeaderboardLimit     = 1000
)

type replayRequest struct {
	PlayerID string `json:"playerAddress"`
	Event    any    `json:"event"`
}

func (s *Server) registerRunRoutes(api *echo.Group) {
	runs := api.Group("/run")
	runs.POST("/start", s.handleStartRun)
	runs.POST("/complete", s.handleCompleteRun)
	runs.POST("/fail", s.handleFailRun)
	runs.POST("/replay", s.handleReplayFrame)
	runs.GET("/history/:address", s.handleRunHistory)
	runs.GET("/current/:address", s.handleCurrentRun)
	runs.GET("/leaderboard", s.handleLeaderboard)

	api.GET("/stats/global", s.handleGlobalStats)
}

func (s *Server) handleStartRun(c echo.Context) error {
	var req app.StartRunRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	run, err := s.runs.StartRun(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, "Run started successfully", run)
}

func (s *Server) handleCompleteRun(c echo.Context) error {
	var req app.CompleteRunRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	outcome, err := s.runs.CompleteRun(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, "Run completed successfully", outcome)
}

func (s *Server) handleFailRun(c echo.Context) error {
	var req app.FailRunRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	run, err := s.runs.FailRun(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, "Run failure recorded", run)
}

func (s *Server) handleReplayFrame(c echo.Context) error {
	var req replayRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if err := s.runs.RecordReplayFrame(c.Request().Context(), req.PlayerID, req.Event); err != nil {
		return err
	}
	return respond(c, "Replay frame recorded", nil)
}

func (s *Server) handleRunHistory(c echo.Context) error {
	address := c.Param("address")
	limit, err := queryLimit(c, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		return err
	}

	runs, err := s.runs.History(c.Request().Context(), address, limit)
	if err != nil {
		return err
	}
	return respond(c, "", map[string]any{
		"playerAddress": address,
		"runs":          runs,
		"total":         len(runs),
	})
}

func (s *Server) handleCurrentRun(c echo.Context) error {
	address := c.Param("address")

	run, err := s.runs.CurrentRun(c.Request().Context(), address)
	if err != nil {
		return err
	}
	return respond(c, "", map[string]any{
		"playerAddress": address,
		"currentRun":    run,
	})
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	kind := domain.LeaderboardKind(c.QueryParam("type"))
	if kind == "" {
		kind = domain.LeaderboardCP
	}
	limit, err := queryLimit(c, defaultLeaderboardLimit, maxLeaderboardLimit)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	leaderboard, err := s.runs.Leaderboard(ctx, kind, limit)
	if err != nil {
		return err
	}
	stats, err := s.runs.Stats(ctx)
	if err != nil {
		return err
	}
	return respond(c, "", map[string]any{
		"leaderboard": leaderboard,
		"globalStats": stats,
		"type":        kind,
		"limit":       limit,
	})
}

func (s *Server) handleGlobalStats(c echo.Context) error {
	stats, err := s.runs.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, "", stats)
}

// bindJSON decodes the request body, reporting malformed input as a
// validation error rather than echo's plain 400.
func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

// queryLimit reads ?limit=, falling back to def when absent and clamping to
// ceiling. Zero, negative or non-numeric values are rejected.
func queryLimit(c echo.Context, def, ceiling int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.ValidationError("Invalid limit").WithContext("limit", raw)
	}
	return min(limit, ceiling), nil
}
