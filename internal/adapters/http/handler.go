package httpadapter

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/PabloGalante/tg-assistant/internal/adapters/telegram"
	"github.com/PabloGalante/tg-assistant/internal/app/conversation"
	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Sessions is implemented by conversation.Service.
type Sessions interface {
	StartSession(ctx context.Context, user domain.UserID) (*conversation.StartSessionOutput, error)
	ResetSession(ctx context.Context, user domain.UserID) (*conversation.StartSessionOutput, error)
	Ask(ctx context.Context, in conversation.AskInput) (*conversation.AskOutput, error)
}

// UpdateSink receives webhook updates. Implemented by telegram.Dispatcher.
type UpdateSink interface {
	Dispatch(u telegram.Update) error
}

type Options struct {
	// Updates enables POST /telegram/webhook when set.
	Updates       UpdateSink
	WebhookSecret string

	// APIToken enables the /v1 routes, which then require
	// "Authorization: Bearer <APIToken>".
	APIToken string
}

type Server struct {
	svc  Sessions
	opts Options
}

func NewServer(svc Sessions, opts Options) *echo.Echo {
	s := &Server{svc: svc, opts: opts}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(
		middleware.RecoverWithConfig(middleware.RecoverConfig{LogErrorFunc: logPanic}),
		withRequestID(),
		withLogging(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}),
	)

	e.GET("/healthz", s.handleHealthz)
	if opts.Updates != nil {
		e.POST("/telegram/webhook", s.handleWebhook)
	}

	if opts.APIToken == "" {
		return e
	}
	v1 := e.Group("/v1/users/:user_id", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(opts.APIToken)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return writeError(c, http.StatusUnauthorized, "invalid api token")
		},
	}))
	v1.POST("/thread", s.handleStartThread)
	v1.POST("/thread/reset", s.handleResetThread)
	v1.POST("/ask", s.handleAsk)

	return e
}

type threadResponse struct {
	UserID   int64  `json:"user_id"`
	ThreadID string `json:"thread_id"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	UserID   int64  `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Answer   string `json:"answer"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(c echo.Context) error {
	if s.opts.WebhookSecret != "" {
		got := c.Request().Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
			return writeError(c, http.StatusUnauthorized, "invalid secret token")
		}
	}

	var u telegram.Update
	if err := c.Bind(&u); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body")
	}

	// Telegram retries anything but 200, so a full queue is logged and acknowledged.
	if err := s.opts.Updates.Dispatch(u); err != nil {
		observability.LoggerFromContext(c.Request().Context()).Warn("webhook update dropped",
			"update_id", u.UpdateID, "error", err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleStartThread(c echo.Context) error {
	user, err := userParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	out, err := s.svc.StartSession(c.Request().Context(), user)
	if err != nil {
		return gatewayError(c, err)
	}
	return c.JSON(http.StatusCreated, threadResponse{UserID: int64(user), ThreadID: string(out.ThreadID)})
}

func (s *Server) handleResetThread(c echo.Context) error {
	user, err := userParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	out, err := s.svc.ResetSession(c.Request().Context(), user)
	if err != nil {
		return gatewayError(c, err)
	}
	return c.JSON(http.StatusOK, threadResponse{UserID: int64(user), ThreadID: string(out.ThreadID)})
}

func (s *Server) handleAsk(c echo.Context) error {
	user, err := userParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}

	var req askRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return writeError(c, http.StatusBadRequest, "question is required")
	}

	out, err := s.svc.Ask(c.Request().Context(), conversation.AskInput{UserID: user, Question: req.Question})
	switch {
	case errors.Is(err, conversation.ErrNoThread):
		return writeError(c, http.StatusConflict, "no thread for this user, create one first")
	case errors.Is(err, conversation.ErrEmptyQuestion):
		return writeError(c, http.StatusBadRequest, "question is required")
	case err != nil:
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, askResponse{
		UserID:   int64(user),
		ThreadID: string(out.ThreadID),
		Answer:   out.Answer,
	})
}

func userParam(c echo.Context) (domain.UserID, error) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("user_id must be a non-zero integer")
	}
	return domain.UserID(id), nil
}

func writeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func gatewayError(c echo.Context, err error) error {
	if errors.Is(err, conversation.ErrThreadUnavailable) {
		return writeError(c, http.StatusBadGateway, "assistant service unavailable")
	}
	return internalError(c, err)
}

func internalError(c echo.Context, err error) error {
	observability.LoggerFromContext(c.Request().Context()).Error("request failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "internal server error")
}
