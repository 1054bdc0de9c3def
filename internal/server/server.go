// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/fyrsmithlabs/docchat/internal/index"
	"github.com/fyrsmithlabs/docchat/internal/logging"
	"github.com/fyrsmithlabs/docchat/internal/rag"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server hosts the HTTP API.
type Server struct {
	echo     *echo.Echo
	pipeline *rag.Pipeline
	logger   *logging.Logger
	cfg      config.ServerConfig
}

// New creates the server and registers routes.
func New(cfg config.ServerConfig, pipeline *rag.Pipeline, logger *logging.Logger) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, pipeline: pipeline, logger: logger.Named("server"), cfg: cfg}

	e.Use(s.requestID)
	e.POST("/v1/ask", s.handleAsk)
	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s, nil
}

// requestID tags each request with a correlation id, honoring an
// incoming X-Request-ID header.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		ctx := logging.ContextWithRequestID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

type askMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type askSpace struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

type askRequest struct {
	Query   string       `json:"query"`
	History []askMessage `json:"history,omitempty"`
	Spaces  []askSpace   `json:"spaces,omitempty"`
	Persona string       `json:"persona,omitempty"`
}

type askSourceNode struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type askResponse struct {
	Response       string          `json:"response"`
	SourceNodes    []askSourceNode `json:"source_nodes,omitempty"`
	FailedSpaces   []string        `json:"failed_spaces,omitempty"`
	FailedBranches []string        `json:"failed_branches,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	ragReq := rag.Request{
		Query:   req.Query,
		Persona: req.Persona,
	}
	for _, m := range req.History {
		ragReq.History = append(ragReq.History, schema.ChatMessage{
			Role:    schema.Role(m.Role),
			Content: m.Content,
		})
	}
	for _, sp := range req.Spaces {
		ragReq.Spaces = append(ragReq.Spaces, index.Space{ID: sp.ID, Type: sp.Type})
	}

	ctx := c.Request().Context()
	start := time.Now()
	result, err := s.pipeline.Answer(ctx, ragReq)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrEmptyQuery):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return c.JSON(http.StatusRequestTimeout, errorResponse{Error: "request cancelled"})
		default:
			s.logger.Error(ctx, "ask failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
	}

	s.logger.Info(ctx, "ask completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("source_nodes", len(result.SourceNodes)),
		zap.Int("failed_spaces", len(result.FailedSpaces)),
		zap.Int("failed_branches", len(result.FailedBranches)))

	resp := askResponse{
		Response:       result.Response,
		FailedSpaces:   result.FailedSpaces,
		FailedBranches: result.FailedBranches,
	}
	for _, n := range result.SourceNodes {
		resp.SourceNodes = append(resp.SourceNodes, askSourceNode{
			ID:       n.Node.ID,
			Text:     n.Node.Text,
			Score:    n.Score,
			Metadata: n.Node.Metadata,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info(context.Background(), "http server starting", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
