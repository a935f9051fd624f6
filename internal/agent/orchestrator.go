// Package agent runs the bounded LLM tool-use loop that answers news
// questions: model replies are either tool-call batches executed against
// the news API or a final natural-language answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dc-codes426/newsapi-ai/config"
	"github.com/dc-codes426/newsapi-ai/internal/llm"
	"github.com/dc-codes426/newsapi-ai/internal/news"
	"github.com/dc-codes426/newsapi-ai/internal/session"
	"github.com/dc-codes426/newsapi-ai/internal/telemetry"
)

const systemPrompt = `You are a news research assistant. Answer the user's question about current events using the provided search tools. Call tools to gather articles before answering; cite the outlets you drew from. When you have enough material, reply with a concise synthesis instead of more tool calls. Today's date is %s.`

const synthesizeNowPrompt = `Stop searching. Synthesize the best possible answer from the articles and information already gathered in this conversation.`

// Orchestrator drives the model/tool loop for one query at a time per
// session. Tool calls within an iteration run concurrently, bounded by the
// semaphore.
type Orchestrator struct {
	cfg       config.AgentConfig
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	provider  llm.Provider
	client    *news.Client
	store     session.Store
	semaphore chan struct{}
}

// NewOrchestrator wires the orchestrator from already-constructed
// collaborators.
func NewOrchestrator(cfg config.AgentConfig, logger *log.Logger, tele *telemetry.Telemetry, provider llm.Provider, client *news.Client, store session.Store) *Orchestrator {
	concurrency := cfg.ToolConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		telemetry: tele,
		provider:  provider,
		client:    client,
		store:     store,
		semaphore: make(chan struct{}, concurrency),
	}
}

// Run answers one query. The returned Outcome always carries the
// aggregate built so far; err is non-nil only for the failure modes that
// produce an error response (model exhaustion, storage faults).
func (o *Orchestrator) Run(ctx context.Context, q Query) (Outcome, error) {
	started := time.Now()

	provider := o.provider
	if q.LLMAPIKey != "" {
		provider = provider.WithKey(q.LLMAPIKey)
	}
	client := o.client
	if q.NewsAPIKey != "" {
		client = client.WithKey(q.NewsAPIKey)
	}

	sess, err := o.store.GetOrCreate(ctx, q.SessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("session load: %w", err)
	}

	messages := make([]llm.Message, 0, len(sess.Turns)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPrompt, time.Now().Format("2006-01-02")),
	})
	messages = append(messages, sess.Messages()...)

	userMsg := llm.Message{Role: llm.RoleUser, Content: q.Text}
	messages = append(messages, userMsg)
	newTurns := []session.Turn{session.FromMessage(userMsg)}

	agg := newAggregator()
	out := Outcome{SessionID: sess.ID, State: StateAwaitingModel}
	tools := toolSchemas()

	for out.Iterations = 0; out.Iterations < o.maxIterations(); out.Iterations++ {
		reply, err := o.chat(ctx, provider, messages, tools)
		if err != nil {
			return o.finish(ctx, sess.ID, newTurns, out, agg, q, started, err)
		}

		if !reply.IsToolUse() {
			out.State = StateFinal
			out.Answer = reply.Content
			out.Trace = append(out.Trace, reply.Content)
			newTurns = appendReply(newTurns, &messages, reply)
			break
		}

		out.State = StateExecutingTools
		newTurns = appendReply(newTurns, &messages, reply)
		if reply.Content != "" {
			out.Trace = append(out.Trace, reply.Content)
		}

		toolTurns := o.executeTools(ctx, client, reply.ToolCalls, agg, &out)
		for _, turn := range toolTurns {
			newTurns = append(newTurns, turn)
			messages = append(messages, turn.Message())
		}

		if ctx.Err() != nil {
			return o.finish(ctx, sess.ID, newTurns, out, agg, q, started, ctx.Err())
		}
		out.State = StateAwaitingModel
	}

	// Cap reached without a final answer: one last call with no tools so
	// the model has to synthesize from what it gathered.
	if out.State != StateFinal {
		out.State = StateForcedSynthesis
		out.Trace = append(out.Trace, "iteration cap reached, forcing synthesis")
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: synthesizeNowPrompt})

		reply, err := o.chat(ctx, provider, messages, nil)
		if err != nil {
			return o.finish(ctx, sess.ID, newTurns, out, agg, q, started, err)
		}
		out.Answer = reply.Content
		out.Trace = append(out.Trace, reply.Content)
		newTurns = appendReply(newTurns, &messages, reply)
		out.State = StateFinal
	}

	return o.finish(ctx, sess.ID, newTurns, out, agg, q, started, nil)
}

func (o *Orchestrator) maxIterations() int {
	if o.cfg.MaxIterations > 0 {
		return o.cfg.MaxIterations
	}
	return 8
}

func (o *Orchestrator) chat(ctx context.Context, provider llm.Provider, messages []llm.Message, tools []llm.Tool) (llm.Reply, error) {
	started := time.Now()
	reply, err := provider.Chat(ctx, messages, tools)
	o.telemetry.RecordLLMCall(reply.InputTokens, reply.OutputTokens, time.Since(started), err)
	return reply, err
}

// executeTools runs one batch of tool calls concurrently under the
// semaphore and returns the tool turns in call order.
func (o *Orchestrator) executeTools(ctx context.Context, client *news.Client, calls []llm.ToolCall, agg *aggregator, out *Outcome) []session.Turn {
	type execResult struct {
		outcome toolOutcome
		err     error
	}
	results := make([]execResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			o.semaphore <- struct{}{}
			defer func() { <-o.semaphore }()

			started := time.Now()
			outcome, err := o.dispatchTool(ctx, client, call)
			o.telemetry.RecordToolCall(call.Name, time.Since(started), err)
			results[i] = execResult{outcome: outcome, err: err}
		}(i, call)
	}
	wg.Wait()

	turns := make([]session.Turn, 0, len(calls))
	for i, call := range calls {
		res := results[i]
		content := res.outcome.payload
		if res.err != nil {
			content = fmt.Sprintf(`{"error": %q}`, res.err.Error())
			o.logger.Printf("tool %s failed: %v", call.Name, res.err)
			out.Trace = append(out.Trace, fmt.Sprintf("tool %s failed: %v", call.Name, res.err))
		} else {
			agg.add(res.outcome.articles)
			out.Trace = append(out.Trace, fmt.Sprintf("tool %s returned %d articles", call.Name, len(res.outcome.articles)))
		}
		turns = append(turns, session.FromMessage(llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		}))
	}
	return turns
}

// finish persists the turns gathered so far and shapes the outcome for
// the three exit paths: success, deadline expiry (partial, not an error)
// and model exhaustion (partial plus UpstreamModelError).
func (o *Orchestrator) finish(ctx context.Context, sessID string, turns []session.Turn, out Outcome, agg *aggregator, q Query, started time.Time, cause error) (Outcome, error) {
	out.Aggregate = agg.result(q.MaxResults)

	// Persist with a detached context so a blown request deadline does
	// not lose the turns that were already produced.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.store.AppendTurns(persistCtx, sessID, turns...); err != nil {
		o.logger.Printf("session %s: persisting %d turns failed: %v", sessID, len(turns), err)
	}

	switch {
	case cause == nil:
		o.telemetry.RecordQuery("ok", time.Since(started))
		o.telemetry.RecordArticles(len(out.Aggregate.Articles))
		return out, nil
	case errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled):
		out.Aggregate.Incomplete = true
		out.Trace = append(out.Trace, (&TimeoutError{Stage: string(out.State)}).Error())
		out.State = StateFinal
		o.telemetry.RecordQuery("timeout", time.Since(started))
		return out, nil
	default:
		out.Aggregate.Incomplete = true
		out.State = StateFailed
		o.telemetry.RecordQuery("model_error", time.Since(started))
		return out, &UpstreamModelError{Err: cause}
	}
}

func appendReply(turns []session.Turn, messages *[]llm.Message, reply llm.Reply) []session.Turn {
	msg := llm.Message{
		Role:      llm.RoleAssistant,
		Content:   reply.Content,
		ToolCalls: reply.ToolCalls,
	}
	*messages = append(*messages, msg)
	return append(turns, session.FromMessage(msg))
}
