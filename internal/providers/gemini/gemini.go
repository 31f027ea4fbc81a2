// Package gemini implements golden.LLMProvider and matching.EmbeddingProvider
// against Gemini's REST API directly (generateContent/embedContent), grounded
// on the original source's golden_record/normaliser_gemini.py and
// embedding_service.py: genai.Client(api_key=GOOGLE_API_KEY), text model from
// GEMINI_TEXT_MODEL (default gemini-2.5-flash), embedding model from
// GEMINI_EMBEDDING_MODEL (default models/embedding-001) with
// output_dimensionality 768. There is no Gemini SDK in go.mod, so both calls
// are hand-rolled net/http against the v1beta REST surface instead of
// wrapping the google-genai Python client's Go equivalent.
//
// Retries are built directly from internal/http/ratelimit's exported backoff
// helpers rather than reusing internal/http/client.go's Client.Do, because
// Do's retry loop re-sends the same already-drained io.Reader body — unsafe
// for a JSON POST that must be re-marshaled per attempt.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kosarica/catalog-service/config"
	"github.com/kosarica/catalog-service/internal/http/ratelimit"
)

// EmbeddingDimension is the output_dimensionality the original source pins
// for all embeddings (embedding_service.py's EmbedContentConfig).
const EmbeddingDimension = 768

// Provider implements both golden.LLMProvider and matching.EmbeddingProvider
// against one Gemini API key/base URL.
type Provider struct {
	apiKey         string
	textModel      string
	embeddingModel string
	baseURL        string
	httpClient     *http.Client
	retryCfg       ratelimit.Config
}

// New builds a Provider from config.LLMConfig (§6 environment contract).
func New(cfg config.LLMConfig) *Provider {
	return &Provider{
		apiKey:         cfg.APIKey,
		textModel:      cfg.TextModel,
		embeddingModel: cfg.EmbeddingModel,
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		retryCfg:       ratelimit.DefaultConfig(),
	}
}

// ModelVersion identifies the text model, stored alongside normalizer output
// for audit trails (§4.F).
func (p *Provider) ModelVersion() string { return p.textModel }

// Dimension reports the fixed embedding width all matching/embedding.go
// cosine-similarity code assumes.
func (p *Provider) Dimension() int { return EmbeddingDimension }

type generateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateStructured implements golden.LLMProvider: the system prompt and
// aggregated product variations are concatenated into a single user turn,
// mirroring normaliser_gemini.py's full_prompt = system_prompt + "\n\n" +
// json.dumps(input_data) followed by generate_content(full_prompt) — the
// Python client has no separate system-role turn either.
func (p *Provider) GenerateStructured(ctx context.Context, systemPrompt, userContent string) (string, error) {
	fullPrompt := systemPrompt + "\n\n" + userContent

	reqBody := generateContentRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: fullPrompt}},
		}},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.textModel)

	var resp generateContentResponse
	if err := p.postWithRetry(ctx, url, reqBody, &resp); err != nil {
		return "", fmt.Errorf("gemini generateContent: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini generateContent: empty response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

type embedContentRequest struct {
	Content          geminiContent `json:"content"`
	OutputDimensionality int       `json:"outputDimensionality"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// GenerateEmbeddingBatch implements matching.EmbeddingProvider. Gemini's
// embedContent endpoint takes one text per call (batchEmbedContents exists
// but the original source never uses it — embedding_service.py always calls
// embed_content with a single-element contents list), so this issues one
// request per text sequentially.
func (p *Provider) GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	url := fmt.Sprintf("%s/models/%s:embedContent", p.baseURL, p.embeddingModel)

	for i, text := range texts {
		reqBody := embedContentRequest{
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			OutputDimensionality: EmbeddingDimension,
		}
		var resp embedContentResponse
		if err := p.postWithRetry(ctx, url, reqBody, &resp); err != nil {
			return nil, fmt.Errorf("gemini embedContent text %d: %w", i, err)
		}
		out[i] = resp.Embedding.Values
	}
	return out, nil
}

// postWithRetry POSTs a JSON body to the Gemini REST API, retrying retryable
// statuses (429, 5xx) with ratelimit.Calculate{,RateLimit}Backoff. The body
// is re-marshaled on every attempt instead of reusing a drained io.Reader.
func (p *Provider) postWithRetry(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= p.retryCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			var delay time.Duration
			if lastStatus == http.StatusTooManyRequests {
				delay = ratelimit.CalculateRateLimitBackoff(attempt-1, p.retryCfg, nil)
			} else {
				delay = ratelimit.CalculateBackoff(attempt-1, p.retryCfg)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		status, respBody, err := p.doPost(ctx, url, payload)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusOK {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
			return nil
		}

		lastStatus = status
		lastErr = fmt.Errorf("unexpected status %d: %s", status, string(respBody))
		if !ratelimit.IsRetryableStatus(status) {
			break
		}
	}

	return &ratelimit.FetchRetryError{
		URL:        url,
		Attempts:   p.retryCfg.MaxRetries + 1,
		LastStatus: lastStatus,
		LastError:  lastErr,
	}
}

func (p *Provider) doPost(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
