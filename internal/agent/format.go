package agent

import (
	"github.com/dc-codes426/newsapi-ai/internal/news"
)

// Response is the outward shape of an answered query. Which fields are
// populated depends on the requested format; total_results is always set.
type Response struct {
	SessionID             string         `json:"session_id"`
	Format                string         `json:"format"`
	Response              string         `json:"response,omitempty"`
	Articles              []news.Article `json:"articles,omitempty"`
	TotalResults          *int           `json:"total_results"`
	Incomplete            bool           `json:"incomplete,omitempty"`
	IntermediateResponses []string       `json:"intermediate_responses,omitempty"`
}

// FormatOutcome renders an orchestrator outcome in the requested mode.
// natural carries prose only; structured carries articles only; both
// carries both. The trace rides along unchanged, purely diagnostic.
func FormatOutcome(out Outcome, format Format) Response {
	total := out.Aggregate.TotalResults
	resp := Response{
		SessionID:             out.SessionID,
		Format:                string(format),
		TotalResults:          &total,
		Incomplete:            out.Aggregate.Incomplete,
		IntermediateResponses: out.Trace,
	}
	switch format {
	case FormatNatural:
		resp.Response = out.Answer
	case FormatStructured:
		resp.Articles = out.Aggregate.Articles
	default:
		resp.Response = out.Answer
		resp.Articles = out.Aggregate.Articles
	}
	return resp
}
