package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dc-codes426/newsapi-ai/config"
	"github.com/dc-codes426/newsapi-ai/internal/helpers"
)

// APIError is a failure reported by the remote search API. It is surfaced
// to the orchestrator rather than swallowed so the model can adjust its
// query or abandon the tool path.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("news api error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("news api error (%d): %s", e.StatusCode, e.Message)
}

// Client is a typed facade over the news-search API.
type Client struct {
	cfg    config.NewsAPIConfig
	apiKey string
	client *http.Client
}

// NewClient creates a client from configuration.
func NewClient(cfg config.NewsAPIConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, apiKey: cfg.APIKey, client: &http.Client{Timeout: timeout}}
}

// WithKey returns a shallow copy bound to a per-request API key.
func (c *Client) WithKey(apiKey string) *Client {
	if apiKey == "" {
		return c
	}
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

type pageResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []Article    `json:"articles"`
	Sources      []SourceInfo `json:"sources"`
}

// SearchEverything searches historical articles, paginating until enough
// unique articles are collected, the API runs out, or the page cap is hit.
func (c *Client) SearchEverything(ctx context.Context, p EverythingParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", p.Query)
	if p.DateFrom != "" {
		params.Set("from", p.DateFrom)
	}
	if p.DateTo != "" {
		params.Set("to", p.DateTo)
	}
	if len(p.Sources) > 0 {
		params.Set("sources", strings.Join(p.Sources, ","))
	}
	if p.Language != "" {
		params.Set("language", p.Language)
	}
	if p.SortBy != "" {
		params.Set("sortBy", p.SortBy)
	}
	return c.paginate(ctx, "/everything", params, p.MaxResults)
}

// TopHeadlines fetches current headlines with the same pagination contract
// as SearchEverything.
func (c *Client) TopHeadlines(ctx context.Context, p HeadlinesParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	if p.Query != "" {
		params.Set("q", p.Query)
	}
	if p.Country != "" {
		params.Set("country", p.Country)
	}
	if p.Category != "" {
		params.Set("category", p.Category)
	}
	if len(p.Sources) > 0 {
		params.Set("sources", strings.Join(p.Sources, ","))
	}
	return c.paginate(ctx, "/top-headlines", params, p.MaxResults)
}

// Sources lists available outlets. The endpoint is not paginated.
func (c *Client) Sources(ctx context.Context, p SourceParams) ([]SourceInfo, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	if p.Category != "" {
		params.Set("category", p.Category)
	}
	if p.Language != "" {
		params.Set("language", p.Language)
	}
	if p.Country != "" {
		params.Set("country", p.Country)
	}
	var out pageResponse
	if err := c.get(ctx, "/top-headlines/sources", params, &out); err != nil {
		return nil, err
	}
	return out.Sources, nil
}

// paginate issues sequential page requests until one of the stop
// conditions holds: enough unique articles, a short or exhausted page, or
// the safety cap on page count.
func (c *Client) paginate(ctx context.Context, endpoint string, params url.Values, target int) (*Result, error) {
	pageSize := c.cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	maxPages := c.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 5
	}
	if target <= 0 {
		target = pageSize
	}
	params.Set("pageSize", strconv.Itoa(pageSize))

	seen := make(map[string]struct{})
	result := &Result{}
	fetched := 0

	for page := 1; page <= maxPages; page++ {
		params.Set("page", strconv.Itoa(page))
		var resp pageResponse
		if err := c.get(ctx, endpoint, params, &resp); err != nil {
			if page == 1 {
				return nil, err
			}
			// A later page failing degrades to what we already have.
			break
		}
		result.PagesFetched = page
		result.TotalResults = resp.TotalResults
		fetched += len(resp.Articles)

		for _, a := range resp.Articles {
			key, err := helpers.NormalizeURL(a.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Articles = append(result.Articles, a)
		}

		if len(result.Articles) >= target {
			break
		}
		if len(resp.Articles) < pageSize || fetched >= resp.TotalResults {
			break
		}
	}

	if result.TotalResults < len(result.Articles) {
		result.TotalResults = len(result.Articles)
	}
	return result, nil
}

// get performs one API request, retrying rate-limit and transient server
// failures with bounded backoff.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out *pageResponse) error {
	if c.apiKey == "" {
		return fmt.Errorf("news api key not configured")
	}
	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	backoff := c.cfg.RetryBackoff
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	tries := c.cfg.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}
	reqURL := baseURL + endpoint + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("User-Agent", "newsapi-ai/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			retryable, err := decodePage(resp, out)
			if err == nil {
				return nil
			}
			lastErr = err
			if !retryable {
				return err
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func decodePage(resp *http.Response, out *pageResponse) (retryable bool, err error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return true, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e pageResponse
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Message
		}
		// 429 and 5xx are worth retrying; the rest are client mistakes.
		retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retryable, apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Status != "ok" {
		return false, &APIError{StatusCode: resp.StatusCode, Code: out.Code, Message: out.Message}
	}
	return false, nil
}
