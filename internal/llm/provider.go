// Package llm routes governed tasks to execution tiers and invokes the
// backing text-generation provider with bounded timeouts and retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Generation timeout bounds. The configured timeout is clamped to
// MaxGenerateTimeout; callers cannot disable the deadline.
const (
	DefaultGenerateTimeout = 30 * time.Second
	MaxGenerateTimeout     = 120 * time.Second
)

// Domain errors for the llm package. Configuration and invalid-response
// failures are never retried; timeout, transient, and rate-limit failures
// are retried with backoff by the Invoker.
var (
	ErrConfiguration   = errors.New("provider configuration invalid")
	ErrTimeout         = errors.New("generation timed out")
	ErrTransient       = errors.New("transient provider failure")
	ErrInvalidResponse = errors.New("invalid provider response")
	ErrRateLimited     = errors.New("provider rate limited")
)

// RateLimitError wraps ErrRateLimited with an optional provider-supplied
// retry-after hint. errors.Is(err, ErrRateLimited) matches it.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limited (retry after %s)", e.RetryAfter)
	}
	return "provider rate limited"
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Retryable reports whether an error belongs to a failure class worth
// retrying (timeout, transient, rate limit).
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrRateLimited)
}

// Provider is the interface all generation backends must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents a generation request.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response represents a generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Tier is the execution class that determines which backend model handles
// a task.
type Tier string

const (
	TierCheap Tier = "CHEAP"
	TierMid   Tier = "MID"
	TierHigh  Tier = "HIGH"
)

// ParseTier converts a string into a Tier, rejecting unknown values.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(s)) {
	case TierCheap:
		return TierCheap, nil
	case TierMid:
		return TierMid, nil
	case TierHigh:
		return TierHigh, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}
