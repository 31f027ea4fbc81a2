package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kosarica/catalog-service/internal/chat"
	"github.com/kosarica/catalog-service/internal/http/ratelimit"
)

// statusError reports a non-2xx Gemini response, letting
// internal/chat.generateWithRetry tell a retryable 429/5xx from a terminal
// failure per chat.RetryableError.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini generateContent: unexpected status %d: %s", e.status, e.body)
}

func (e *statusError) Retryable() bool {
	return ratelimit.IsRetryableStatus(e.status)
}

type chatRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []wireContent  `json:"contents"`
	Tools             []wireTool     `json:"tools,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text             string                `json:"text,omitempty"`
	FunctionCall     *wireFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResponse `json:"functionResponse,omitempty"`
}

type wireFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type wireFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type wireTool struct {
	FunctionDeclarations []wireFunctionDeclaration `json:"functionDeclarations"`
}

type wireFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type chatResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
}

// GenerateTurn implements internal/chat.Provider: one non-streaming
// generateContent call carrying the full working history and the domain
// tool declarations, returning the model's next turn. §4.H's retry-on-429/5xx
// policy lives in the chat package's orchestrator, not here — this method
// makes exactly one HTTP attempt and returns a *statusError on failure so the
// caller can decide whether to retry.
func (p *Provider) GenerateTurn(ctx context.Context, systemPrompt string, history []chat.Turn, tools []chat.ToolDeclaration) (chat.Turn, error) {
	req := chatRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          toWireContents(history),
		Tools:             toWireTools(tools),
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.textModel)

	payload, err := json.Marshal(req)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return chat.Turn{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("gemini generateContent: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return chat.Turn{}, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return chat.Turn{}, &statusError{status: resp.StatusCode, body: buf.String()}
	}

	var out chatResponse
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return chat.Turn{}, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return chat.Turn{}, fmt.Errorf("gemini generateContent: no candidates")
	}

	return fromWireContent(out.Candidates[0].Content), nil
}

func toWireContents(history []chat.Turn) []wireContent {
	out := make([]wireContent, 0, len(history))
	for _, turn := range history {
		wc := wireContent{Role: wireRole(turn.Role)}
		for _, part := range turn.Parts {
			wp := wirePart{Text: part.Text}
			if part.FunctionCall != nil {
				wp.FunctionCall = &wireFunctionCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args}
			}
			if part.FunctionResponse != nil {
				wp.FunctionResponse = &wireFunctionResponse{Name: part.FunctionResponse.Name, Response: part.FunctionResponse.Response}
			}
			wc.Parts = append(wc.Parts, wp)
		}
		out = append(out, wc)
	}
	return out
}

// wireRole maps chat.Role to Gemini's role strings. chat.RoleFunction turns
// carry functionResponse parts, which Gemini expects under role "function".
func wireRole(r chat.Role) string {
	switch r {
	case chat.RoleModel:
		return "model"
	case chat.RoleFunction:
		return "function"
	default:
		return "user"
	}
}

func fromWireContent(wc wireContent) chat.Turn {
	turn := chat.Turn{Role: chat.RoleModel}
	for _, p := range wc.Parts {
		part := chat.Part{Text: p.Text}
		if p.FunctionCall != nil {
			part.FunctionCall = &chat.FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}
		}
		turn.Parts = append(turn.Parts, part)
	}
	return turn
}

func toWireTools(tools []chat.ToolDeclaration) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]wireFunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = wireFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return []wireTool{{FunctionDeclarations: decls}}
}
