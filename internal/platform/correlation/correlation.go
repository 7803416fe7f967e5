package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
)

// Header carries a caller-supplied correlation ID on HTTP requests.
const Header = "X-Correlation-ID"

type contextKey struct{}

// NewID generates an 8-character hex correlation ID.
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Ensure returns ctx unchanged if it already carries an ID, otherwise a
// child context with a fresh one.
func Ensure(ctx context.Context) context.Context {
	if _, ok := ID(ctx); ok {
		return ctx
	}
	return WithID(ctx, NewID())
}

func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Middleware tags every request context with a correlation ID and echoes it
// back in the response header.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(Header)
			if id == "" || len(id) > 64 {
				id = NewID()
			}
			c.SetRequest(req.WithContext(WithID(req.Context(), id)))
			c.Response().Header().Set(Header, id)
			return next(c)
		}
	}
}

// Handler injects "correlation_id" into log records whose context carries one.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
