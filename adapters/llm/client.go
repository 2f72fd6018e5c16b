package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/callagent/domain/repositories"
	"github.com/satriahrh/arunika/callagent/internal/metrics"
)

// Generator produces a completion for a single prompt or fails
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client implements repositories.Completer on top of a Generator. Every
// failure is logged and replaced with the configured fallback text.
type Client struct {
	generator Generator
	config    Config
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// Ensure Client implements the Completer interface
var _ repositories.Completer = (*Client)(nil)

// New creates a Client for the configured provider
func New(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	var generator Generator
	switch config.Provider {
	case ProviderGemini:
		gemini, err := NewGeminiClient(ctx, config)
		if err != nil {
			return nil, err
		}
		generator = gemini
	case ProviderMock:
		generator = NewMockGenerator()
	default:
		if config.APIKey == "" {
			logger.Warn("Completion API key is not set, every completion will use the fallback text",
				zap.String("url", config.URL))
		}
		generator = NewChatCompletionClient(config, nil)
	}

	return NewClient(generator, config, logger), nil
}

// NewClient wraps generator with deadline, retry and optional circuit breaker
func NewClient(generator Generator, config Config, logger *zap.Logger) *Client {
	config = config.withDefaults()

	c := &Client{
		generator: generator,
		config:    config,
		logger:    logger.With(zap.String("provider", generator.Name())),
	}

	if config.Breaker.Enabled {
		threshold := config.Breaker.FailureThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "completion-" + generator.Name(),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     config.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				c.logger.Warn("Completion circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return c
}

// GetCompletion implements repositories.Completer
func (c *Client) GetCompletion(ctx context.Context, prompt string) (reply string) {
	started := time.Now()
	provider := c.generator.Name()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Completion provider panicked",
				zap.String("prompt", prompt),
				zap.Any("panic", r))
			metrics.ObserveCompletion(provider, metrics.OutcomeFallback, started)
			reply = c.config.FallbackText
		}
	}()

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	text, attempts, err := c.generateWithRetry(ctx, prompt)
	if err != nil {
		outcome := metrics.OutcomeFallback
		if isBreakerRejection(err) {
			outcome = metrics.OutcomeRejected
		}
		c.logger.Error("Error getting completion",
			zap.String("prompt", prompt),
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		metrics.ObserveCompletion(provider, outcome, started)
		return c.config.FallbackText
	}

	metrics.ObserveCompletion(provider, metrics.OutcomeSuccess, started)
	c.logger.Info("Completion generated",
		zap.String("prompt_preview", preview(prompt)),
		zap.String("response_preview", preview(text)),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(started)))

	return text
}

func (c *Client) generateWithRetry(ctx context.Context, prompt string) (string, int, error) {
	var (
		reply    string
		attempts int
	)

	operation := func() error {
		attempts++
		metrics.CompletionAttemptsTotal.WithLabelValues(c.generator.Name()).Inc()

		text, err := c.attempt(ctx, prompt)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = text
		return nil
	}

	// RandomizationFactor keeps its default of 0.5, which is the jitter
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryInitialInterval
	policy.MaxInterval = c.config.RetryMaxInterval
	policy.MaxElapsedTime = 0

	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries)), ctx)
	err := backoff.RetryNotify(operation, bounded, func(err error, wait time.Duration) {
		c.logger.Warn("Completion attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})

	return reply, attempts, err
}

func (c *Client) attempt(ctx context.Context, prompt string) (string, error) {
	if c.breaker == nil {
		return c.generator.Generate(ctx, prompt)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}

	text, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected completion result type %T", result)
	}
	return text, nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrMissingAPIKey), errors.Is(err, ErrEmptyPrompt):
		return false
	case isBreakerRejection(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	return true
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// preview cuts s to its first 50 runes
func preview(s string) string {
	const limit = 50
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
