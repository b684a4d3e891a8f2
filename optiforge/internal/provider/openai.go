package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/optiforge/platform/optiforge/internal/models"
)

const systemPrompt = "Return ONLY valid JSON matching the OptimizationModelIR schema. Use integer coefficients and bounds."

// OpenAI asks an OpenAI-compatible chat completions endpoint for the IR.
// Transport failures, 429 and 5xx answers are retried with linear backoff.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	retries int
	backoff time.Duration
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires an api key")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai provider requires a model")
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = base
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: timeout,
		retries: retries,
		backoff: backoff,
	}, nil
}

func (p *OpenAI) Name() string  { return NameOpenAI }
func (p *OpenAI) Model() string { return p.model }

func (p *OpenAI) GenerateIR(ctx context.Context, spec models.ProblemSpec) (json.RawMessage, error) {
	prompt, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("openai marshal problem: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(prompt)},
		},
	}

	attempts := p.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := p.complete(ctx, req)
		if err == nil {
			return parseContent(content)
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * p.backoff):
			}
		}
	}
	return nil, fmt.Errorf("openai generate ir: %w", lastErr)
}

func (p *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.client.CreateChatCompletion(reqCtx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errEmptyContent
	}
	return content, nil
}

var (
	errNoChoices    = errors.New("response has no choices")
	errEmptyContent = errors.New("response content is empty")
)

func retryable(err error) bool {
	if errors.Is(err, errNoChoices) || errors.Is(err, errEmptyContent) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

// parseContent strips a Markdown code fence around the reply and checks that
// what remains is a JSON document.
func parseContent(content string) (json.RawMessage, error) {
	text := StripFences(content)
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("openai response is not valid JSON: %.200q", text)
	}
	return json.RawMessage(text), nil
}

// StripFences removes a leading ``` line (with optional language tag) and a
// trailing ``` from s.
func StripFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
