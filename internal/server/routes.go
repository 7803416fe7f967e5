package server

import (
	"log/slog"
	"net/http"

	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/correlation"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// maxBodySize matches the largest replay payload a client is expected to post.
const maxBodySize = "10M"

func (s *Server) registerRoutes() {
	s.echo.Use(correlation.Middleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, correlation.Header},
	}))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.echo.GET("/socket", s.socket.Handle)

	api := s.echo.Group("/api",
		middleware.BodyLimit(maxBodySize),
		newRateLimiter(s.config.APIRateLimit, max(int(s.config.APIRateLimit*2), 1)),
	)
	s.registerRunRoutes(api)
	s.registerPriceRoutes(api)
	s.registerDashboardRoutes(api)
	api.POST("/broadcast", s.handleBroadcast)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
