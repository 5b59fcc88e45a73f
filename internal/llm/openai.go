package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	truaiotel "github.com/demewebsolutions/truai/internal/otel"
)

var tracer = truaiotel.Tracer("github.com/demewebsolutions/truai/internal/llm")

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
// An empty key is a configuration error, reported here rather than on the
// first generation attempt.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty: %w", ErrConfiguration)
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey)}, nil
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider pointed at a
// custom base URL (e.g. an httptest mock server). baseURL is scheme+host
// without path; the client appends /v1 as needed.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty: %w", ErrConfiguration)
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request to OpenAI and maps API failures
// into the package's typed error taxonomy.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			truaiotel.GenAISystem.String("openai"),
			truaiotel.GenAIRequestModel.String(req.Model),
			truaiotel.GenAIRequestTemperature.Float64(req.Temperature),
			truaiotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
		))
	defer span.End()

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		err = classifyOpenAIError(err)
		span.RecordError(err)
		return nil, err
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("openai returned no choices: %w", ErrInvalidResponse)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		truaiotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		truaiotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		truaiotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
	)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}

// classifyOpenAIError maps go-openai errors onto the typed taxonomy so the
// Invoker can decide retryability without inspecting provider internals.
func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai api call: %w", ErrTimeout)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized,
			apiErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("openai auth rejected: %w", ErrConfiguration)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &RateLimitError{RetryAfter: retryAfterHint(apiErr)}
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("openai server error (%d): %w", apiErr.HTTPStatusCode, ErrTransient)
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return fmt.Errorf("openai rejected request: %w", ErrConfiguration)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai request failed (%d): %w", reqErr.HTTPStatusCode, ErrTransient)
	}

	// Network-level failures (connection refused, DNS) arrive untyped.
	return fmt.Errorf("openai api call: %v: %w", err, ErrTransient)
}

// retryAfterHint extracts a retry-after duration from a 429 error when the
// provider supplies one in the message; zero means no hint.
func retryAfterHint(apiErr *openai.APIError) time.Duration {
	const phrase = "try again in "
	idx := strings.Index(apiErr.Message, phrase)
	if idx < 0 {
		return 0
	}
	var seconds float64
	if _, err := fmt.Sscanf(apiErr.Message[idx+len(phrase):], "%fs", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}
