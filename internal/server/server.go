package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/app"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/broadcast"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

type runService interface {
	StartRun(ctx context.Context, req app.StartRunRequest) (*domain.Run, error)
	CompleteRun(ctx context.Context, req app.CompleteRunRequest) (*app.RunOutcome, error)
	FailRun(ctx context.Context, req app.FailRunRequest) (*domain.Run, error)
	RecordReplayFrame(ctx context.Context, playerID string, event any) error
	History(ctx context.Context, playerID string, limit int) ([]domain.Run, error)
	CurrentRun(ctx context.Context, playerID string) (*domain.Run, error)
	Leaderboard(ctx context.Context, kind domain.LeaderboardKind, limit int) ([]domain.Run, error)
	Stats(ctx context.Context) (domain.GlobalStats, error)
	Dashboard(ctx context.Context, playerID string) (*app.PlayerDashboard, error)
	RecentReplays(ctx context.Context, limit int) ([]app.ReplaySummary, error)
	Replay(ctx context.Context, runID string) (*app.RunReplay, error)
}

type priceService interface {
	Current(ctx context.Context) (app.PriceQuote, error)
	History(ctx context.Context, timeframe string, limit int) (app.PriceHistoryView, error)
	MarketStats(ctx context.Context) (app.MarketStats, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	runs      runService
	prices    priceService
	publisher domain.Publisher
	registry  *broadcast.Registry
	socket    *SocketHandler

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, clock clockwork.Clock, runs runService, prices priceService, publisher domain.Publisher, registry *broadcast.Registry, socket *SocketHandler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		runs:         runs,
		prices:       prices,
		publisher:    publisher,
		registry:     registry,
		socket:       socket,
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "addr", s.config.Addr())
	if err := s.echo.Start(s.config.Addr()); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, message string, data any) error {
	if err := c.JSON(http.StatusOK, apiResponse{Success: true, Message: message, Data: data}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
