package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/postd/internal/store"
)

// Codes reported in error bodies.
const (
	codeBusy       = "BUSY"
	codeOverloaded = "OVERLOADED"
	codeClosed     = "CLOSED"
	codeTimeout    = "TIMEOUT"
	codeInternal   = "INTERNAL"
)

// errorResponse is the body for every non-validation failure.
// 500 bodies carry no store detail.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// failure describes how a write error is presented to the client.
type failure struct {
	status    int
	body      errorResponse
	retryable bool
}

// classifyError maps a write error onto its HTTP presentation.
func classifyError(err error) failure {
	switch {
	case store.IsBusy(err):
		return failure{
			status:    http.StatusServiceUnavailable,
			body:      errorResponse{Error: "database is busy, retry later", Code: codeBusy},
			retryable: true,
		}
	case store.IsOverloaded(err):
		return failure{
			status:    http.StatusServiceUnavailable,
			body:      errorResponse{Error: "too many pending writes, retry later", Code: codeOverloaded},
			retryable: true,
		}
	case store.IsClosed(err):
		return failure{
			status: http.StatusServiceUnavailable,
			body:   errorResponse{Error: "server is shutting down", Code: codeClosed},
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return failure{
			status: http.StatusServiceUnavailable,
			body:   errorResponse{Error: "timed out waiting for write", Code: codeTimeout},
		}
	default:
		return failure{
			status: http.StatusInternalServerError,
			body:   errorResponse{Error: "internal error", Code: codeInternal},
		}
	}
}

// writeError sends the response for a failed write.
func writeError(c echo.Context, err error) error {
	f := classifyError(err)

	if f.status == http.StatusInternalServerError {
		slog.Error("write failed",
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"code", store.CodeOf(err),
			"error", err,
		)
	}

	if f.retryable {
		c.Response().Header().Set("Retry-After", "1")
	}

	return c.JSON(f.status, f.body)
}
