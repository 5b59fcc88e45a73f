package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIProviderEmptyKey(t *testing.T) {
	_, err := NewOpenAIProvider("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

// mockOpenAI runs an httptest server that answers /v1/chat/completions with
// a fixed status and body.
func mockOpenAI(t *testing.T, status int, body string) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProviderWithBaseURL("test-key", srv.URL)
	require.NoError(t, err)
	return p
}

func TestOpenAIGenerateSuccess(t *testing.T) {
	p := mockOpenAI(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "formatted output"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`)

	resp, err := p.Generate(context.Background(), &Request{Model: "gpt-4", Prompt: "Format this"})
	require.NoError(t, err)
	assert.Equal(t, "formatted output", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.Equal(t, "gpt-4", resp.Model)
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	p := mockOpenAI(t, http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4", "choices": []
	}`)

	_, err := p.Generate(context.Background(), &Request{Model: "gpt-4", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestOpenAIGenerateAuthRejected(t *testing.T) {
	p := mockOpenAI(t, http.StatusUnauthorized,
		`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)

	_, err := p.Generate(context.Background(), &Request{Model: "gpt-4", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, Retryable(err))
}

func TestOpenAIGenerateRateLimited(t *testing.T) {
	p := mockOpenAI(t, http.StatusTooManyRequests,
		`{"error": {"message": "Rate limit reached. Please try again in 1.5s", "type": "requests"}}`)

	_, err := p.Generate(context.Background(), &Request{Model: "gpt-4", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 1500*time.Millisecond, rl.RetryAfter)
}

func TestOpenAIGenerateServerError(t *testing.T) {
	p := mockOpenAI(t, http.StatusInternalServerError,
		`{"error": {"message": "The server had an error", "type": "server_error"}}`)

	_, err := p.Generate(context.Background(), &Request{Model: "gpt-4", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.True(t, Retryable(err))
}

func TestOpenAIGenerateBadRequest(t *testing.T) {
	p := mockOpenAI(t, http.StatusBadRequest,
		`{"error": {"message": "model not found", "type": "invalid_request_error"}}`)

	_, err := p.Generate(context.Background(), &Request{Model: "nope", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOpenAIGenerateNetworkError(t *testing.T) {
	// Point at a closed server to force a connection failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p, err := NewOpenAIProviderWithBaseURL("test-key", srv.URL)
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), &Request{Model: "gpt-4", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestOpenAIGenerateDeadline(t *testing.T) {
	// The handler must be unblockable or server Close hangs on the still
	// active connection: release it explicitly during cleanup.
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	p, err := NewOpenAIProviderWithBaseURL("test-key", srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Generate(ctx, &Request{Model: "gpt-4", Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRateLimitErrorMessage(t *testing.T) {
	assert.Equal(t, "provider rate limited", (&RateLimitError{}).Error())
	assert.Contains(t, (&RateLimitError{RetryAfter: 2 * time.Second}).Error(), "retry after 2s")

	assert.True(t, errors.Is(&RateLimitError{}, ErrRateLimited))
}
