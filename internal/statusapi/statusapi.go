// Package statusapi exposes the local control-plane RPC surface: status
// polling, connect/disconnect, and MFA challenge submission for the single
// tunnel this process manages. It is adapted from the teacher's
// policy/peer CRUD API down to the handful of verbs a one-tunnel client
// needs.
package statusapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

// requestIDHeader carries the per-request correlation id stamped by
// requestID, echoed back to the caller and threaded through error logs so a
// failure reported by a CLI invocation can be matched to its server-side
// log line.
const requestIDHeader = "X-Request-Id"

// Controller is the capability this API surfaces over HTTP; a supervisor
// implements it by driving a TunnelConnector and its tunnel driver.
type Controller interface {
	Status() model.ConnectionStatus
	Connect(ctx echo.Context) error
	Disconnect(ctx echo.Context) error
	SubmitChallenge(ctx echo.Context, code string) error
}

// Server wires a Controller to an echo router.
type Server struct {
	controller Controller
}

// New builds a Server for the given controller.
func New(controller Controller) *Server {
	return &Server{controller: controller}
}

// RegisterRoutes registers the status API's routes on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(requestID)

	api := e.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/connect", s.handleConnect)
	api.POST("/disconnect", s.handleDisconnect)
	api.POST("/challenge", s.handleChallenge)
}

// requestID stamps every request with a fresh correlation id, echoed back
// on the response and attached to the context so handlers can fold it into
// their error logs.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Response().Header().Set(requestIDHeader, id)
		return next(c)
	}
}

func requestIDFrom(c echo.Context) string {
	id, _ := c.Get("request_id").(string)
	return id
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleConnect(c echo.Context) error {
	if err := s.controller.Connect(c); err != nil {
		log.Error().Err(err).Str("request_id", requestIDFrom(c)).Msg("connect failed")
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleDisconnect(c echo.Context) error {
	if err := s.controller.Disconnect(c); err != nil {
		log.Error().Err(err).Str("request_id", requestIDFrom(c)).Msg("disconnect failed")
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

type challengeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleChallenge(c echo.Context) error {
	var req challengeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := s.controller.SubmitChallenge(c, req.Code); err != nil {
		log.Error().Err(err).Str("request_id", requestIDFrom(c)).Msg("challenge submission failed")
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func statusFor(err error) int {
	switch {
	case apperror.Is(err, apperror.Auth), apperror.Is(err, apperror.ChallengeCanceled):
		return http.StatusUnauthorized
	case apperror.Is(err, apperror.Config):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
