package llm

import (
	"fmt"
	"time"
)

const (
	ProviderChatCompletion = "gpt4mini"
	ProviderGemini         = "gemini"
	ProviderMock           = "mock"
)

const (
	defaultChatURL              = "https://api.gpt4mini.com/v1/chat"
	defaultGeminiModel          = "gemini-2.0-flash"
	defaultTemperature          = 0.7
	defaultMaxTokens            = 150
	defaultTimeout              = 15 * time.Second
	defaultRetryInitialInterval = 250 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
	defaultBreakerFailures      = 5
	defaultBreakerOpenTimeout   = 30 * time.Second

	// DefaultFallbackText is spoken whenever a completion cannot be produced
	DefaultFallbackText = "I apologize, but I encountered an error processing your request."
)

// Config holds configuration for the completion client.
// Required fields:
// - APIKey (a missing key is tolerated, every call then degrades to FallbackText)
// Optional fields with defaults:
// - Provider: gpt4mini, gemini or mock (default gpt4mini)
// - URL: chat endpoint for gpt4mini (default https://api.gpt4mini.com/v1/chat)
// - Model: model name, sent to the chat endpoint only when set (gemini default gemini-2.0-flash)
// - Temperature: 0.7
// - MaxTokens: 150
// - Timeout: overall deadline for one GetCompletion call, retries included (default 15s)
// - MaxRetries: extra attempts after the first one (default 0)
type Config struct {
	Provider             string
	URL                  string
	APIKey               string
	Model                string
	Temperature          float32
	MaxTokens            int
	Timeout              time.Duration
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	FallbackText         string
	Breaker              BreakerConfig
}

// BreakerConfig configures the optional circuit breaker around provider calls
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	switch config.Provider {
	case "", ProviderChatCompletion, ProviderGemini, ProviderMock:
	default:
		return fmt.Errorf("unknown completion provider %q", config.Provider)
	}

	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}

	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", config.MaxRetries)
	}

	return nil
}

// withDefaults returns a copy of config with zero values replaced by defaults.
// A zero Temperature keeps the default; there is no way to ask for exactly 0.
func (config Config) withDefaults() Config {
	if config.Provider == "" {
		config.Provider = ProviderChatCompletion
	}
	if config.URL == "" {
		config.URL = defaultChatURL
	}
	if config.Model == "" && config.Provider == ProviderGemini {
		config.Model = defaultGeminiModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RetryInitialInterval == 0 {
		config.RetryInitialInterval = defaultRetryInitialInterval
	}
	if config.RetryMaxInterval == 0 {
		config.RetryMaxInterval = defaultRetryMaxInterval
	}
	if config.FallbackText == "" {
		config.FallbackText = DefaultFallbackText
	}
	if config.Breaker.FailureThreshold == 0 {
		config.Breaker.FailureThreshold = defaultBreakerFailures
	}
	if config.Breaker.OpenTimeout == 0 {
		config.Breaker.OpenTimeout = defaultBreakerOpenTimeout
	}
	return config
}
