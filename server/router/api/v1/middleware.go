package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/cinesense/internal/metrics"
	apperrors "github.com/hrygo/cinesense/server/internal/errors"
	"github.com/hrygo/cinesense/server/internal/observability"
)

const userIDContextKey = "cinesense.user_id"

// requestContextMiddleware attaches a RequestContext to every request, then
// logs and counts the outcome.
func (s *APIV1Service) requestContextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		reqCtx := observability.NewRequestContextWithID(slog.Default(), req.Header.Get(echo.HeaderXRequestID), c.Path(), "")
		c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)
		c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))

		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = http.StatusInternalServerError
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(req.Method, c.Path(), strconv.Itoa(status)).Inc()
		reqCtx.Info("request handled",
			slog.String("method", req.Method),
			slog.Int("status", status),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		)
		return err
	}
}

func (s *APIV1Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		userID, err := s.authenticator.Authenticate(req.Header.Get(echo.HeaderAuthorization), req.Header.Get(DevUserHeader))
		if err != nil {
			observability.LoggerFrom(req.Context()).Debug("authentication failed", "error", err)
			return s.errorResponse(c, apperrors.Unauthorized("authentication required"))
		}
		c.Set(userIDContextKey, userID)
		if reqCtx, ok := observability.FromContext(req.Context()); ok {
			reqCtx.UserID = userID
		}
		return next(c)
	}
}

func userIDFrom(c echo.Context) string {
	userID, _ := c.Get(userIDContextKey).(string)
	return userID
}

type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// errorResponse writes err as a JSON error. Codes without an AppError become INTERNAL
// and their details stay in the log.
func (s *APIV1Service) errorResponse(c echo.Context, err error) error {
	code := apperrors.GetCodeFromError(err, apperrors.ErrCodeInternal)
	status := apperrors.HTTPStatus(code)

	message := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		observability.LoggerFrom(c.Request().Context()).Error("request failed",
			slog.String("error", err.Error()),
			slog.String(observability.LogFieldErrorCode, string(code)),
		)
	}
	return c.JSON(status, errorBody{Code: code, Message: message})
}
