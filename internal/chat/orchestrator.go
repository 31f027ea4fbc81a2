package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/http/ratelimit"
)

// turnState is §4.H's state machine: WaitingModel -> (EmittingText |
// RequestingTools) -> ExecutingTools -> WaitingModel | Done | Failed.
type turnState string

const (
	stateWaitingModel   turnState = "WaitingModel"
	stateExecutingTools turnState = "ExecutingTools"
	stateDone           turnState = "Done"
	stateFailed         turnState = "Failed"
)

// Emitter receives one SSE Event at a time; internal/handlers/chat.go
// implements this over gin's ResponseWriter, tests can implement it over a
// slice.
type Emitter interface {
	Emit(Event)
}

// retryConfig follows §4.H's "min(2^attempt, 60s)": an initial backoff of
// 1s doubling each attempt, capped at 60s — ratelimit.CalculateBackoff's
// formula (initial * 2^attempt, capped), to which it adds 0-25% jitter.
// The number of retries is bounded by the tool-call budget.
var retryConfig = ratelimit.Config{
	InitialBackoffMs: 1000,
	MaxBackoffMs:     60000,
	MaxRetries:       MaxToolCalls,
}

// systemPrompt is the fixed Croatian-language instruction §4.H calls for,
// optionally including the caller's display name.
func systemPrompt(displayName string) string {
	base := `Ti si asistent za pretraživanje i usporedbu cijena u hrvatskim trgovinama. ` +
		`Koristi dostupne alate za pretragu proizvoda, cijena i trgovina. ` +
		`Odgovaraj sažeto i na hrvatskom jeziku.`
	if displayName != "" {
		base = fmt.Sprintf("Korisnik se zove %s. %s", displayName, base)
	}
	return base
}

// Run executes one chat request end to end per §4.H's numbered loop,
// emitting SSE parts through emit as it goes. sessionID is generated if
// empty. userID is nil for anonymous callers (tools that need it, like
// get_user_locations, simply return nothing useful for them).
func Run(ctx context.Context, provider Provider, emit Emitter, userID *int64, sessionID, displayName, userMessage string) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Step 1: persist the user message.
	if _, err := database.AppendChatMessage(ctx, &database.ChatMessage{
		SessionID: sessionID, UserID: userID, Role: database.ChatRoleUser, Content: userMessage,
	}); err != nil {
		emit.Emit(Event{Type: EventError, Content: fmt.Sprintf("persist user message: %v", err)})
		return
	}

	history, err := loadHistory(ctx, sessionID)
	if err != nil {
		emit.Emit(Event{Type: EventError, Content: fmt.Sprintf("load history: %v", err)})
		return
	}

	prompt := systemPrompt(displayName)
	handlers := toolHandlers()

	state := stateWaitingModel
	toolCallsUsed := 0
	var pendingCalls []FunctionCall

	for {
		switch state {
		case stateWaitingModel:
			turn, err := generateWithRetry(ctx, provider, prompt, history)
			if err != nil {
				emit.Emit(Event{Type: EventError, Content: err.Error()})
				state = stateFailed
				continue
			}

			history = append(history, turn)

			var calls []FunctionCall
			var text string
			for _, part := range turn.Parts {
				if part.FunctionCall != nil {
					calls = append(calls, *part.FunctionCall)
				}
				if part.Text != "" {
					text += part.Text
				}
			}

			if len(calls) == 0 {
				if _, err := database.AppendChatMessage(ctx, &database.ChatMessage{
					SessionID: sessionID, UserID: userID, Role: database.ChatRoleAssistant, Content: text,
				}); err != nil {
					emit.Emit(Event{Type: EventError, Content: fmt.Sprintf("persist assistant message: %v", err)})
					state = stateFailed
					continue
				}
				if text != "" {
					emit.Emit(Event{Type: EventText, Content: text})
				}
				state = stateDone
				continue
			}

			if toolCallsUsed+len(calls) > MaxToolCalls {
				emit.Emit(Event{Type: EventError, Content: "tool call budget exceeded"})
				state = stateFailed
				continue
			}

			pendingCalls = calls
			state = stateExecutingTools

		case stateExecutingTools:
			var responses []Part
			for _, call := range pendingCalls {
				toolCallsUsed++

				callJSON, _ := json.Marshal(call)
				if _, err := database.AppendChatMessage(ctx, &database.ChatMessage{
					SessionID: sessionID, UserID: userID, Role: database.ChatRoleTool,
					Content: string(callJSON), ToolCalls: strPtr(string(callJSON)),
				}); err != nil {
					emit.Emit(Event{Type: EventError, Content: fmt.Sprintf("persist tool call: %v", err)})
					state = stateFailed
					break
				}
				emit.Emit(Event{Type: EventToolCall, Content: call})

				handler, ok := handlers[call.Name]
				if !ok {
					emit.Emit(Event{Type: EventError, Content: fmt.Sprintf("unknown tool %q", call.Name)})
					state = stateFailed
					break
				}

				result, err := handler(ctx, call.Args)
				var responsePayload map[string]interface{}
				if err != nil {
					responsePayload = map[string]interface{}{"error": err.Error()}
				} else {
					responsePayload = map[string]interface{}{"result": result}
				}

				outJSON, _ := json.Marshal(responsePayload)
				if _, err := database.AppendChatMessage(ctx, &database.ChatMessage{
					SessionID: sessionID, UserID: userID, Role: database.ChatRoleTool, Content: string(outJSON),
				}); err != nil {
					emit.Emit(Event{Type: EventError, Content: fmt.Sprintf("persist tool output: %v", err)})
					state = stateFailed
					break
				}
				emit.Emit(Event{Type: EventToolOut, Content: responsePayload})

				responses = append(responses, Part{FunctionResponse: &FunctionResponse{Name: call.Name, Response: responsePayload}})
			}

			if state == stateFailed {
				continue
			}

			history = append(history, Turn{Role: RoleFunction, Parts: responses})
			state = stateWaitingModel

		case stateDone:
			emit.Emit(Event{Type: EventEnd, Content: map[string]string{"session_id": sessionID}})
			return

		case stateFailed:
			return
		}
	}
}

func strPtr(s string) *string { return &s }

// loadHistory converts the session's persisted ChatMessages (already
// including the just-appended user message) into provider Turns.
func loadHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	messages, err := database.ChatHistory(ctx, sessionID, MaxHistoryMessages)
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case database.ChatRoleUser:
			turns = append(turns, Turn{Role: RoleUser, Parts: []Part{{Text: m.Content}}})
		case database.ChatRoleAssistant:
			turns = append(turns, Turn{Role: RoleModel, Parts: []Part{{Text: m.Content}}})
		case database.ChatRoleTool:
			// Tool-call/tool-output rows are kept for audit only and are not
			// replayed into history; tool exchanges reach the provider only
			// within the request that made them, where Run appends them live.
		}
	}
	return turns, nil
}

// generateWithRetry wraps one provider.GenerateTurn call with §4.H's
// "provider 429/5xx invokes exponential backoff (min(2^attempt, 60s)) up to
// the tool-call budget" retry policy.
func generateWithRetry(ctx context.Context, provider Provider, prompt string, history []Turn) (Turn, error) {
	var lastErr error
	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := ratelimit.CalculateBackoff(attempt-1, retryConfig)
			select {
			case <-ctx.Done():
				return Turn{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		turn, err := provider.GenerateTurn(ctx, prompt, history, toolDeclarations())
		if err == nil {
			return turn, nil
		}
		lastErr = err

		if retryable, ok := err.(RetryableError); !ok || !retryable.Retryable() {
			return Turn{}, err
		}
	}
	return Turn{}, fmt.Errorf("provider call failed after retries: %w", lastErr)
}
