// Package chat implements the chat orchestrator (§4.H): a multi-turn loop
// over a pluggable AI provider with tool dispatch, history persistence via
// internal/database/chat.go, and Server-Sent-Event emission. Grounded on
// internal/golden/provider.go's provider-agnostic split (interface here,
// concrete implementation in internal/providers/gemini) and on
// internal/http/client.go's backoff-retry shape for the provider call.
package chat

import "context"

// Role distinguishes a Turn's speaker in the working history handed to the
// provider, matching Gemini's three roles: user, model, and function
// (tool-result) turns.
type Role string

const (
	RoleUser     Role = "user"
	RoleModel    Role = "model"
	RoleFunction Role = "function"
)

// FunctionCall is one tool invocation the model requested.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// FunctionResponse is the result handed back to the model for a FunctionCall,
// keyed by the same tool name so the provider can line the two up.
type FunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// Part is one piece of a Turn: plain text, a requested tool call, or a tool
// result. A Turn can carry multiple Parts (the model may emit text alongside
// tool calls, or request several tools in one turn).
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// Turn is one entry in the history passed to the provider on every call —
// the provider is stateless between calls, so the orchestrator resends the
// whole history each round per §4.H step 2.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// ToolDeclaration is a tool's schema as the provider needs it to decide
// whether and how to call it (§6's "full schemas").
type ToolDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Provider is the streaming-generation contract §4.H calls for: one call per
// model turn, given the system prompt, the working history, and the domain
// tool declarations. It returns the model's next Turn (text and/or function
// calls) — true token-level streaming is the provider's concern internally;
// the orchestrator treats one Provider call as one atomic "chunk" boundary,
// which is what triggers the state machine's EmittingText/RequestingTools
// transition.
type Provider interface {
	GenerateTurn(ctx context.Context, systemPrompt string, history []Turn, tools []ToolDeclaration) (Turn, error)
	ModelVersion() string
}

// RetryableError is implemented by provider errors that carry an HTTP status,
// letting the orchestrator tell a 429/5xx (retry with backoff, §4.H
// "Cancellation & timeouts") from anything else (terminate with `error`).
type RetryableError interface {
	error
	Retryable() bool
}

// EventType enumerates the SSE part types §4.H's streaming contract allows.
type EventType string

const (
	EventText     EventType = "text"
	EventToolCall EventType = "tool_call"
	EventToolOut  EventType = "tool_output"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// Event is one SSE part: `data: {"type": ..., "content": ...}\n\n`.
type Event struct {
	Type    EventType   `json:"type"`
	Content interface{} `json:"content"`
}

// MaxToolCalls is the hard per-request tool-call budget (§4.H: "a hard cap
// to prevent runaway loops").
const MaxToolCalls = 8

// MaxHistoryMessages bounds how much prior transcript is loaded per request
// (§4.H: "last N ChatMessages for the session").
const MaxHistoryMessages = 40
