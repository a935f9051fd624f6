package llm

import "encoding/json"

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request from the model to invoke a named tool.
// The kernel-side shape is flat; MarshalJSON emits the nested
// {type:"function",function:{name,arguments}} wire form the chat API
// expects, and UnmarshalJSON accepts both shapes.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}{
		ID:   tc.ID,
		Type: "function",
		Function: struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}{Name: tc.Name, Arguments: string(tc.Arguments)},
	})
}

func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var nested struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	if nested.Function.Name != "" {
		tc.ID = nested.ID
		tc.Name = nested.Function.Name
		tc.Arguments = json.RawMessage(nested.Function.Arguments)
		return nil
	}
	type plain ToolCall
	return json.Unmarshal(data, (*plain)(tc))
}

// Message is a single turn in a conversation. Assistant messages may carry
// ToolCalls; tool result messages carry the ToolCallID they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Tool declares a function the model may call. Parameters is a JSON Schema
// object describing the argument shape.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Reply is the model's answer to one chat turn: either a batch of tool
// calls, or final text content.
type Reply struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int64
	OutputTokens int64
}

// IsToolUse reports whether the model asked for tools rather than answering.
func (r Reply) IsToolUse() bool { return len(r.ToolCalls) > 0 }
