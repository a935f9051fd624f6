package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dc-codes426/newsapi-ai/internal/llm"
	"github.com/dc-codes426/newsapi-ai/internal/news"
)

const (
	toolSearchEverything = "search_everything"
	toolTopHeadlines     = "top_headlines"
	toolListSources      = "list_sources"
)

// toolSchemas declares the closed tool set offered to the model.
func toolSchemas() []llm.Tool {
	return []llm.Tool{
		{
			Name:        toolSearchEverything,
			Description: "Search news articles by keyword across all indexed outlets. Supports date ranges, source filters, language and sort order.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": "keywords or phrase to search for"},
					"date_from":   map[string]any{"type": "string", "description": "oldest article date, YYYY-MM-DD"},
					"date_to":     map[string]any{"type": "string", "description": "newest article date, YYYY-MM-DD"},
					"sources":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "restrict to these source ids"},
					"language":    map[string]any{"type": "string", "description": "two-letter language code"},
					"sort_by":     map[string]any{"type": "string", "enum": []string{"relevancy", "popularity", "publishedAt"}},
					"max_results": map[string]any{"type": "integer", "description": "maximum unique articles to collect"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        toolTopHeadlines,
			Description: "Fetch current top headlines, optionally filtered by country, category or sources. Sources cannot be combined with country or category.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string"},
					"country":     map[string]any{"type": "string", "description": "two-letter country code"},
					"category":    map[string]any{"type": "string", "enum": []string{"business", "entertainment", "general", "health", "science", "sports", "technology"}},
					"sources":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"max_results": map[string]any{"type": "integer"},
				},
			},
		},
		{
			Name:        toolListSources,
			Description: "List the news outlets available to search, optionally filtered by category, language or country.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{"type": "string"},
					"language": map[string]any{"type": "string"},
					"country":  map[string]any{"type": "string"},
				},
			},
		},
	}
}

// toolOutcome is what one executed tool call contributes: the JSON payload
// for the tool turn and any articles gathered for aggregation.
type toolOutcome struct {
	payload  string
	articles []news.Article
}

func decodeArgs(raw json.RawMessage, into any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("malformed tool arguments: %v", err)}
	}
	return nil
}

// dispatchTool runs one tool call. Unknown names and bad arguments come
// back as ValidationError; news API exhaustion comes back as
// UpstreamSearchError. Both are recorded as tool-error turns by the
// caller, never dropped.
func (o *Orchestrator) dispatchTool(ctx context.Context, client *news.Client, call llm.ToolCall) (toolOutcome, error) {
	switch call.Name {
	case toolSearchEverything:
		var p news.EverythingParams
		if err := decodeArgs(call.Arguments, &p); err != nil {
			return toolOutcome{}, err
		}
		if err := p.Validate(); err != nil {
			return toolOutcome{}, &ValidationError{Reason: err.Error()}
		}
		res, err := client.SearchEverything(ctx, p)
		if err != nil {
			return toolOutcome{}, wrapSearchErr(toolSearchEverything, err)
		}
		return articleOutcome(res)

	case toolTopHeadlines:
		var p news.HeadlinesParams
		if err := decodeArgs(call.Arguments, &p); err != nil {
			return toolOutcome{}, err
		}
		if err := p.Validate(); err != nil {
			return toolOutcome{}, &ValidationError{Reason: err.Error()}
		}
		res, err := client.TopHeadlines(ctx, p)
		if err != nil {
			return toolOutcome{}, wrapSearchErr(toolTopHeadlines, err)
		}
		return articleOutcome(res)

	case toolListSources:
		var p news.SourceParams
		if err := decodeArgs(call.Arguments, &p); err != nil {
			return toolOutcome{}, err
		}
		if err := p.Validate(); err != nil {
			return toolOutcome{}, &ValidationError{Reason: err.Error()}
		}
		infos, err := client.Sources(ctx, p)
		if err != nil {
			return toolOutcome{}, wrapSearchErr(toolListSources, err)
		}
		payload, err := json.Marshal(map[string]any{"sources": infos})
		if err != nil {
			return toolOutcome{}, err
		}
		return toolOutcome{payload: string(payload)}, nil

	default:
		return toolOutcome{}, &ValidationError{Reason: fmt.Sprintf("unknown tool %q", call.Name)}
	}
}

func wrapSearchErr(tool string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &UpstreamSearchError{Tool: tool, Err: err}
}

func articleOutcome(res *news.Result) (toolOutcome, error) {
	payload, err := json.Marshal(map[string]any{
		"total_results": res.TotalResults,
		"articles":      res.Articles,
	})
	if err != nil {
		return toolOutcome{}, err
	}
	return toolOutcome{
		payload:  string(payload),
		articles: res.Articles,
	}, nil
}
