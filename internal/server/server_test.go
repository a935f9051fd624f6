package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dc-codes426/newsapi-ai/config"
	"github.com/dc-codes426/newsapi-ai/internal/agent"
	"github.com/dc-codes426/newsapi-ai/internal/llm"
	"github.com/dc-codes426/newsapi-ai/internal/news"
	"github.com/dc-codes426/newsapi-ai/internal/session"
	"github.com/dc-codes426/newsapi-ai/internal/telemetry"
)

type stubLLM struct {
	reply llm.Reply
	err   error
}

func (s *stubLLM) Chat(context.Context, []llm.Message, []llm.Tool) (llm.Reply, error) {
	return s.reply, s.err
}

func (s *stubLLM) WithKey(string) llm.Provider { return s }

func testServer(t *testing.T, provider llm.Provider, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
		cfg.LLM.APIKey = "llm-key"
		cfg.NewsAPI.APIKey = "news-key"
		cfg.Agent.RequestTimeout = 5 * time.Second
	}
	sessions := session.NewMemoryStore(time.Minute)
	client := news.NewClient(cfg.NewsAPI)
	logger := log.New(io.Discard, "", 0)
	orch := agent.NewOrchestrator(cfg.Agent, logger, (*telemetry.Telemetry)(nil), provider, client, sessions)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  sessions,
		locks:  session.NewLocks(),
		orch:   orch,
	}
	s.echo = s.buildEcho()
	return s
}

func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestQueryReturnsBothByDefault(t *testing.T) {
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "all quiet on the news front"}}, nil)

	rec := postQuery(t, s, `{"query":"what happened today?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Format != "both" {
		t.Fatalf("expected default format both, got %s", resp.Format)
	}
	if resp.Response == "" {
		t.Fatal("expected prose in the response")
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if resp.TotalResults == nil {
		t.Fatal("total_results must always be present")
	}
}

func TestQueryStructuredHasNoProse(t *testing.T) {
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "ignored prose"}}, nil)

	rec := postQuery(t, s, `{"query":"news?","response_format":"structured"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["response"]; ok {
		t.Fatal("structured format must omit the response prose field")
	}
	if _, ok := raw["total_results"]; !ok {
		t.Fatal("total_results missing")
	}
}

func TestQueryValidation(t *testing.T) {
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "x"}}, nil)

	cases := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"  "}`},
		{"bad format", `{"query":"x","response_format":"xml"}`},
		{"max_results too big", `{"query":"x","max_results":500}`},
		{"max_results negative", `{"query":"x","max_results":-2}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postQuery(t, s, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "error") {
				t.Fatalf("expected error envelope, got %s", rec.Body.String())
			}
		})
	}
}

func TestQueryMissingCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.Agent.RequestTimeout = time.Second
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "x"}}, cfg)

	rec := postQuery(t, s, `{"query":"news?"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing credentials, got %d", rec.Code)
	}
}

func TestQueryRequestKeysSatisfyCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.Agent.RequestTimeout = time.Second
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "keyed answer"}}, cfg)

	rec := postQuery(t, s, `{"query":"news?","llm_api_key":"k1","news_api_key":"k2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with request-supplied keys, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryModelFailureIsBadGateway(t *testing.T) {
	s := testServer(t, &stubLLM{err: &llm.ModelError{Status: 500, Attempts: 3}}, nil)

	rec := postQuery(t, s, `{"query":"news?"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "x"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz reply: %d %s", rec.Code, rec.Body.String())
	}
}

func TestQuerySessionReuse(t *testing.T) {
	s := testServer(t, &stubLLM{reply: llm.Reply{Content: "answer"}}, nil)

	rec := postQuery(t, s, `{"query":"first"}`)
	var first agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = postQuery(t, s, `{"query":"second","session_id":"`+first.SessionID+`"}`)
	var second agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session id should be stable across requests: %s vs %s", first.SessionID, second.SessionID)
	}

	sess, err := s.store.GetOrCreate(context.Background(), first.SessionID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	// two user turns and two assistant turns
	if len(sess.Turns) != 4 {
		t.Fatalf("expected 4 turns in the session, got %d", len(sess.Turns))
	}
}
