package news

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies a news outlet.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SourceInfo is a full outlet record from the sources endpoint.
type SourceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Category    string `json:"category,omitempty"`
	Language    string `json:"language,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Article is one news article as returned by the search API. Relevance and
// Sentiment are provider-supplied when present; the service never computes
// its own.
type Article struct {
	Source      Source    `json:"source"`
	Author      string    `json:"author,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Content     string    `json:"content,omitempty"`
	Relevance   *float64  `json:"relevance,omitempty"`
	Sentiment   string    `json:"sentiment,omitempty"`
}

// Result is the outcome of one search operation: ordered unique articles,
// the total available upstream, and how many pages were fetched.
type Result struct {
	Articles     []Article
	TotalResults int
	PagesFetched int
}

// EverythingParams are the arguments for the everything endpoint.
type EverythingParams struct {
	Query      string   `json:"query"`
	DateFrom   string   `json:"date_from,omitempty"`
	DateTo     string   `json:"date_to,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Language   string   `json:"language,omitempty"`
	SortBy     string   `json:"sort_by,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

// Validate checks the parameters before any remote call is made.
func (p EverythingParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.DateFrom != "" {
		if _, err := time.Parse("2006-01-02", p.DateFrom); err != nil {
			if _, err := time.Parse(time.RFC3339, p.DateFrom); err != nil {
				return fmt.Errorf("date_from must be YYYY-MM-DD or RFC3339: %q", p.DateFrom)
			}
		}
	}
	if p.DateTo != "" {
		if _, err := time.Parse("2006-01-02", p.DateTo); err != nil {
			if _, err := time.Parse(time.RFC3339, p.DateTo); err != nil {
				return fmt.Errorf("date_to must be YYYY-MM-DD or RFC3339: %q", p.DateTo)
			}
		}
	}
	switch p.SortBy {
	case "", "relevancy", "popularity", "publishedAt":
	default:
		return fmt.Errorf("sort_by must be relevancy, popularity or publishedAt, got %q", p.SortBy)
	}
	if p.MaxResults < 0 {
		return fmt.Errorf("max_results cannot be negative")
	}
	return nil
}

// HeadlinesParams are the arguments for the top-headlines endpoint.
type HeadlinesParams struct {
	Query      string   `json:"query,omitempty"`
	Country    string   `json:"country,omitempty"`
	Category   string   `json:"category,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

var headlineCategories = map[string]struct{}{
	"business": {}, "entertainment": {}, "general": {},
	"health": {}, "science": {}, "sports": {}, "technology": {},
}

// Validate checks the parameters before any remote call is made. The
// upstream API rejects sources combined with country or category.
func (p HeadlinesParams) Validate() error {
	if p.Category != "" {
		if _, ok := headlineCategories[p.Category]; !ok {
			return fmt.Errorf("unknown category %q", p.Category)
		}
	}
	if len(p.Sources) > 0 && (p.Country != "" || p.Category != "") {
		return fmt.Errorf("sources cannot be combined with country or category")
	}
	if p.Query == "" && p.Country == "" && p.Category == "" && len(p.Sources) == 0 {
		return fmt.Errorf("at least one of query, country, category or sources is required")
	}
	if p.MaxResults < 0 {
		return fmt.Errorf("max_results cannot be negative")
	}
	return nil
}

// SourceParams are the arguments for the sources endpoint.
type SourceParams struct {
	Category string `json:"category,omitempty"`
	Language string `json:"language,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Validate checks the parameters before any remote call is made.
func (p SourceParams) Validate() error {
	if p.Category != "" {
		if _, ok := headlineCategories[p.Category]; !ok {
			return fmt.Errorf("unknown category %q", p.Category)
		}
	}
	return nil
}
