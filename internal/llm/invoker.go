package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/demewebsolutions/truai/internal/redact"
)

// Invoker wraps a Provider with per-attempt timeouts and a bounded
// exponential backoff retry loop. Only failure classes marked retryable
// (timeout, transient, rate limit) are retried; a provider-supplied
// retry-after hint overrides the computed backoff delay.
type Invoker struct {
	provider    Provider
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// InvokerConfig holds tuning knobs for an Invoker. Zero values fall back
// to the package defaults.
type InvokerConfig struct {
	Timeout     time.Duration // per-attempt deadline, clamped to MaxGenerateTimeout
	MaxAttempts int           // total attempts including the first (default 3)
	BaseDelay   time.Duration // first backoff delay, doubled per attempt (default 500ms)
	MaxDelay    time.Duration // backoff cap (default 8s)
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 8 * time.Second
)

// NewInvoker creates an Invoker around the given provider.
func NewInvoker(provider Provider, cfg InvokerConfig) *Invoker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	if timeout > MaxGenerateTimeout {
		timeout = MaxGenerateTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	return &Invoker{
		provider:    provider,
		timeout:     timeout,
		maxAttempts: attempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		sleep:       sleepCtx,
	}
}

// Generate runs the provider with retries and returns the first successful
// response. Non-retryable errors return immediately; retryable errors are
// returned once attempts are exhausted.
func (i *Invoker) Generate(ctx context.Context, prompt, model string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.invoke",
		trace.WithAttributes(
			attribute.String("gen_ai.request.model", model),
			attribute.String("llm.provider", i.provider.Name()),
		))
	defer span.End()

	req := &Request{Model: model, Prompt: prompt}

	var lastErr error
	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		resp, err := i.generateOnce(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return resp, nil
		}
		lastErr = err

		if !Retryable(err) {
			span.RecordError(err)
			return nil, err
		}
		if attempt == i.maxAttempts-1 {
			break
		}

		delay := i.backoffDelay(attempt, err)
		log.Warn().
			Str("error", redact.Error(err)).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("model", model).
			Msg("generation_retry")
		if serr := i.sleep(ctx, delay); serr != nil {
			span.RecordError(serr)
			return nil, fmt.Errorf("waiting for retry: %w", serr)
		}
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("generation failed after %d attempts: %w", i.maxAttempts, lastErr)
}

// generateOnce runs a single provider attempt under the per-attempt deadline.
func (i *Invoker) generateOnce(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	resp, err := i.provider.Generate(ctx, req)
	if err != nil {
		// A deadline we imposed reads as context.DeadlineExceeded from
		// providers that pass the raw error through.
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("generation attempt: %w", ErrTimeout)
		}
		return nil, err
	}
	return resp, nil
}

// backoffDelay computes the delay before the next attempt: base doubled per
// attempt, capped, with rate-limit retry-after hints taking precedence.
func (i *Invoker) backoffDelay(attempt int, err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		if rl.RetryAfter > i.maxDelay {
			return i.maxDelay
		}
		return rl.RetryAfter
	}
	delay := i.baseDelay << uint(attempt)
	if delay > i.maxDelay {
		delay = i.maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
