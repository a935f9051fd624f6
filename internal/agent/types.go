package agent

import (
	"github.com/dc-codes426/newsapi-ai/internal/news"
)

// State names the orchestrator's position in its loop.
type State string

const (
	StateAwaitingModel   State = "awaiting_model"
	StateExecutingTools  State = "executing_tools"
	StateForcedSynthesis State = "forced_synthesis"
	StateFinal           State = "final"
	StateFailed          State = "failed"
)

// Format selects the response shape.
type Format string

const (
	FormatNatural    Format = "natural"
	FormatStructured Format = "structured"
	FormatBoth       Format = "both"
)

// ParseFormat validates a requested format, defaulting empty to both.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatBoth, nil
	case FormatNatural, FormatStructured, FormatBoth:
		return Format(s), nil
	default:
		return "", &ValidationError{Reason: "response_format must be natural, structured or both"}
	}
}

// Query is one user request handed to the orchestrator. Credentials, when
// set, override configured keys for this request only.
type Query struct {
	SessionID  string
	Text       string
	Format     Format
	MaxResults int
	NewsAPIKey string
	LLMAPIKey  string
}

// AggregatedResult is the deduplicated, ordered article set for one query.
type AggregatedResult struct {
	Articles     []news.Article
	TotalResults int
	Incomplete   bool
}

// Outcome is what the orchestrator hands back: the final prose (empty on
// structured-only requests or failure), the aggregate, the terminal state
// and the ordered diagnostic trace.
type Outcome struct {
	SessionID  string
	Answer     string
	Aggregate  AggregatedResult
	State      State
	Trace      []string
	Iterations int
}
