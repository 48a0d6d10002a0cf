package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/postd/internal/store"
	"github.com/roach88/postd/internal/validate"
	"github.com/roach88/postd/internal/writer"
)

// postResponse is the 201 body.
type postResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

func newPostResponse(p store.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// validationResponse is the 400 body.
type validationResponse struct {
	Errors []validate.FieldError `json:"errors"`
}

type healthResponse struct {
	Status string       `json:"status"`
	Writer writer.Stats `json:"writer"`
}

// createPost handles POST /posts.
func (s *Server) createPost(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	np, fieldErrs := s.validator.Decode(body)
	if len(fieldErrs) > 0 {
		return c.JSON(http.StatusBadRequest, validationResponse{Errors: fieldErrs})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.requestTimeout)
	defer cancel()

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	post, err := s.writer.Submit(requestID, np).Wait(ctx)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, newPostResponse(post))
}

// health handles GET /healthz.
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Writer: s.writer.Stats(),
	})
}
