package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dc-codes426/newsapi-ai/internal/agent"
)

// QueryRequest is the inbound query shape.
type QueryRequest struct {
	Query          string `json:"query"`
	SessionID      string `json:"session_id,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	MaxResults     int    `json:"max_results,omitempty"`
	NewsAPIKey     string `json:"news_api_key,omitempty"`
	LLMAPIKey      string `json:"llm_api_key,omitempty"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.MaxResults == 0 {
		req.MaxResults = 10
	}
	if req.MaxResults < 1 || req.MaxResults > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_results must be between 1 and 100")
	}
	format, err := agent.ParseFormat(req.ResponseFormat)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Credentials resolve request key first, then configuration (which
	// already folds in the environment). Missing either is rejected
	// before any remote call.
	if req.LLMAPIKey == "" && s.cfg.LLM.APIKey == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, (&agent.ConfigError{Field: "llm api key"}).Error())
	}
	if req.NewsAPIKey == "" && s.cfg.NewsAPI.APIKey == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, (&agent.ConfigError{Field: "news api key"}).Error())
	}

	// Queries against the same session run one at a time. Minted ids are
	// unique so empty session ids never contend.
	if req.SessionID != "" {
		release := s.locks.Acquire(req.SessionID)
		defer release()
	}

	ctx := c.Request().Context()
	if s.cfg.Agent.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Agent.RequestTimeout)
		defer cancel()
	}

	out, err := s.orch.Run(ctx, agent.Query{
		SessionID:  req.SessionID,
		Text:       req.Query,
		Format:     format,
		MaxResults: req.MaxResults,
		NewsAPIKey: req.NewsAPIKey,
		LLMAPIKey:  req.LLMAPIKey,
	})
	if err != nil {
		var merr *agent.UpstreamModelError
		var verr *agent.ValidationError
		switch {
		case errors.As(err, &merr):
			return echo.NewHTTPError(http.StatusBadGateway, merr.Error())
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusOK, agent.FormatOutcome(out, format))
}
