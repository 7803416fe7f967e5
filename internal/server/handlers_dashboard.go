package server

import (
	"github.com/labstack/echo/v4"
)

const (
	defaultReplayLimit = 20
	maxReplayLimit     = 100
)

func (s *Server) registerDashboardRoutes(api *echo.Group) {
	dashboard := api.Group("/dashboard")
	dashboard.GET("/replays/recent", s.handleRecentReplays)
	dashboard.GET("/replay/:runId", s.handleReplay)
	dashboard.GET("/:address", s.handleDashboard)
}

func (s *Server) handleDashboard(c echo.Context) error {
	dash, err := s.runs.Dashboard(c.Request().Context(), c.Param("address"))
	if err != nil {
		return err
	}
	return respond(c, "", map[string]any{
		"playerAddress": dash.PlayerID,
		"stats":         dash.Stats,
		"currentRun":    dash.CurrentRun,
		"recentRuns":    dash.RecentRuns,
		"recentFrames":  dash.RecentFrames,
		"globalStats":   dash.GlobalStats,
		"lastUpdated":   s.clock.Now(),
	})
}

func (s *Server) handleRecentReplays(c echo.Context) error {
	limit, err := queryLimit(c, defaultReplayLimit, maxReplayLimit)
	if err != nil {
		return err
	}

	replays, err := s.runs.RecentReplays(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return respond(c, "", map[string]any{
		"replays":     replays,
		"total":       len(replays),
		"lastUpdated": s.clock.Now(),
	})
}

func (s *Server) handleReplay(c echo.Context) error {
	replay, err := s.runs.Replay(c.Request().Context(), c.Param("runId"))
	if err != nil {
		return err
	}
	return respond(c, "", map[string]any{
		"replay":      replay,
		"lastUpdated": s.clock.Now(),
	})
}
