package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/hously/internal/i18n"
	"github.com/mohammad-safakhou/hously/internal/turn"
)

// TurnService is the engine surface the handlers need. The tests drive the
// handlers through a fake implementation.
type TurnService interface {
	Submit(ctx context.Context, threadID, userID, query, locale string) (*turn.Stream, error)
	Resume(ctx context.Context, threadID, answer, locale string) (*turn.Stream, error)
	Clear(ctx context.Context, threadID string) (string, error)
}

type TurnsHandler struct {
	Engine TurnService
}

func (h *TurnsHandler) Register(g *echo.Group, secret []byte, authRequired bool) {
	if authRequired {
		g.Use(authMiddleware(secret))
	}
	g.POST("/:id/turns", h.submit)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/clear", h.clear)
}

func (h *TurnsHandler) submit(c echo.Context) error {
	threadID := strings.TrimSpace(c.Param("id"))
	if threadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread id required")
	}
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}

	userID, _ := c.Get("user_id").(string)
	stream, err := h.Engine.Submit(c.Request().Context(), threadID, userID, req.Message, req.Lang)
	if err != nil {
		return turnError(err)
	}
	return writeSSE(c, stream)
}

func (h *TurnsHandler) resume(c echo.Context) error {
	threadID := strings.TrimSpace(c.Param("id"))
	if threadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread id required")
	}
	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Answer) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "answer required")
	}

	stream, err := h.Engine.Resume(c.Request().Context(), threadID, req.Answer, req.Lang)
	if err != nil {
		return turnError(err)
	}
	return writeSSE(c, stream)
}

func (h *TurnsHandler) clear(c echo.Context) error {
	threadID := strings.TrimSpace(c.Param("id"))
	if threadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread id required")
	}
	next, err := h.Engine.Clear(c.Request().Context(), threadID)
	if err != nil {
		return turnError(err)
	}
	return c.JSON(http.StatusOK, ClearResponse{ThreadID: next})
}

// Welcome returns the localized greeting; it sits outside the auth group so
// clients can render it before login.
func Welcome(c echo.Context) error {
	lang := c.QueryParam("lang")
	return c.JSON(http.StatusOK, WelcomeResponse{
		Message: i18n.Welcome(lang),
		Locales: i18n.Locales(),
	})
}

func turnError(err error) error {
	switch {
	case errors.Is(err, turn.ErrThreadBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, turn.ErrClarificationPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, turn.ErrNotSuspended):
		return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// writeSSE forwards stream events as server-sent events until the terminal
// frame, flushing after each one.
func writeSSE(c echo.Context, stream *turn.Stream) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, _ := resp.Writer.(http.Flusher)
	for event := range stream.Events() {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
			// Client went away; drain so the producer can finish.
			for range stream.Events() {
			}
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
