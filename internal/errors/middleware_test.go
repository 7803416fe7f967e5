package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handlerErr error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/run/start", nil), rec)

	err := Middleware()(func(echo.Context) error { return handlerErr })(c)
	require.NoError(t, err)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, resp := serve(t, ValidationError("invalid playerAddress").WithContext("field", "playerAddress"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid playerAddress", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "playerAddress", resp.Context["field"])
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestMiddlewareMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
	}{
		{"duplicate run", fmt.Errorf("start: %w", domain.ErrDuplicateRun), http.StatusConflict, TypeConflict},
		{"persistence", fmt.Errorf("%w: insert run: timeout", domain.ErrPersistence), http.StatusInternalServerError, TypeInternal},
		{"run not found", domain.ErrRunNotFound, http.StatusNotFound, TypeNotFound},
		{"replay not found", domain.ErrReplayNotFound, http.StatusNotFound, TypeNotFound},
		{"invalid channel", fmt.Errorf("%w: \"all\"", domain.ErrInvalidChannel), http.StatusBadRequest, TypeValidation},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			HTTPErrorsTotal.Reset()

			rec, resp := serve(t, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues(string(tt.wantType))))
		})
	}
}

func TestMiddlewareInternalErrorHidesCause(t *testing.T) {
	_, resp := serve(t, fmt.Errorf("%w: dial tcp 10.0.0.5:5432", domain.ErrPersistence))
	assert.NotContains(t, resp.Error, "10.0.0.5")
}

func TestMiddlewareWithNoError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := Middleware()(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewarePassesEchoErrorsThrough(t *testing.T) {
	HTTPErrorsTotal.Reset()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Middleware()(func(echo.Context) error { return echo.ErrTooManyRequests })(c)

	require.ErrorIs(t, err, echo.ErrTooManyRequests)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("rate_limited")))
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		code     int
		message  any
		wantType ErrorType
		wantMsg  string
	}{
		{http.StatusBadRequest, "bad json", TypeValidation, "bad json"},
		{http.StatusNotFound, nil, TypeNotFound, "Not Found"},
		{http.StatusTooManyRequests, 42, TypeRateLimited, "Too Many Requests"},
		{http.StatusServiceUnavailable, "redis down", TypeExternal, "redis down"},
		{http.StatusTeapot, "", TypeInternal, "I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			got := WrapHTTPError(&echo.HTTPError{Code: tt.code, Message: tt.message})
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMsg, got.Message)
		})
	}
}

func TestHandleErrorWithNil(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.NoError(t, HandleError(c, nil))
}

func TestError_UnwrapAndStatus(t *testing.T) {
	cause := fmt.Errorf("%w: write failed", domain.ErrPersistence)
	err := AsStructuredError(cause)

	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "write failed")
	assert.Nil(t, AsStructuredError(nil))
}
