package agent

import "fmt"

// ConfigError means a required credential or setting is missing. Requests
// failing this way are rejected before any remote call.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Field)
}

// ValidationError means the query or tool arguments are malformed. No
// remote calls are made for the offending input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// UpstreamSearchError wraps a news API failure after retries. The
// orchestrator abandons that tool path and continues with what it has.
type UpstreamSearchError struct {
	Tool string
	Err  error
}

func (e *UpstreamSearchError) Error() string {
	return fmt.Sprintf("news search failed (%s): %v", e.Tool, e.Err)
}

func (e *UpstreamSearchError) Unwrap() error { return e.Err }

// UpstreamModelError wraps an LLM failure after retries. Exhaustion fails
// the whole request since no final answer can be synthesized.
type UpstreamModelError struct {
	Err error
}

func (e *UpstreamModelError) Error() string {
	return fmt.Sprintf("language model failed: %v", e.Err)
}

func (e *UpstreamModelError) Unwrap() error { return e.Err }

// TimeoutError marks a request deadline expiring mid-loop. It is not a
// failure: whatever was aggregated so far is returned flagged incomplete.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("deadline expired during %s", e.Stage)
}
