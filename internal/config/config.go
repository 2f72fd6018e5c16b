package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/satriahrh/arunika/callagent/adapters/llm"
	"github.com/satriahrh/arunika/callagent/usecase"
)

const (
	FormatEnvelope = "envelope"
	FormatVerbs    = "verbs"
)

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Completion CompletionConfig `mapstructure:"completion"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Gather     GatherConfig     `mapstructure:"gather"`
	Prompts    PromptsConfig    `mapstructure:"prompts"`
	Response   ResponseConfig   `mapstructure:"response"`
	Log        LogConfig        `mapstructure:"log"`
	WS         WSConfig         `mapstructure:"ws"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CompletionConfig struct {
	Provider             string        `mapstructure:"provider"`
	URL                  string        `mapstructure:"url"`
	APIKey               string        `mapstructure:"api_key"`
	Model                string        `mapstructure:"model"`
	Temperature          float32       `mapstructure:"temperature"`
	MaxTokens            int           `mapstructure:"max_tokens"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	FallbackText         string        `mapstructure:"fallback_text"`
	Breaker              BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GatherConfig struct {
	Timeout    int      `mapstructure:"timeout"`
	ActionHook string   `mapstructure:"action_hook"`
	SttTimeout int      `mapstructure:"stt_timeout"`
	Hints      []string `mapstructure:"hints"`
}

type PromptsConfig struct {
	InboundGreeting  string `mapstructure:"inbound_greeting"`
	OutboundGreeting string `mapstructure:"outbound_greeting"`
	NoInput          string `mapstructure:"no_input"`
}

type ResponseConfig struct {
	// Format is "envelope" for {"instructions":[...]} or "verbs" for the bare array
	Format string `mapstructure:"format"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WSConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if err := llm.ValidateConfig(c.LLM()); err != nil {
		return fmt.Errorf("completion: %w", err)
	}

	if c.Gather.Timeout <= 0 {
		return fmt.Errorf("gather.timeout must be positive, got %d", c.Gather.Timeout)
	}
	if c.Gather.SttTimeout <= 0 {
		return fmt.Errorf("gather.stt_timeout must be positive, got %d", c.Gather.SttTimeout)
	}
	if !strings.HasPrefix(c.Gather.ActionHook, "/") {
		return fmt.Errorf("gather.action_hook must be an absolute path, got %q", c.Gather.ActionHook)
	}
	reserved := []string{"/inbound-call", "/outbound-call", "/health", "/metrics"}
	if c.WS.Enabled {
		reserved = append(reserved, c.WS.Path)
	}
	if slices.Contains(reserved, c.Gather.ActionHook) {
		return fmt.Errorf("gather.action_hook %q collides with another route", c.Gather.ActionHook)
	}

	switch c.Response.Format {
	case FormatEnvelope, FormatVerbs:
	default:
		return fmt.Errorf("unknown response.format %q", c.Response.Format)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}

	if c.WS.Enabled && c.WS.Path == "" {
		return fmt.Errorf("ws.path is required when ws is enabled")
	}

	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

// LLM maps the completion settings onto the client config. The gemini
// provider takes its key and model from the gemini section.
func (c *Config) LLM() llm.Config {
	cc := c.Completion
	config := llm.Config{
		Provider:             cc.Provider,
		URL:                  cc.URL,
		APIKey:               cc.APIKey,
		Model:                cc.Model,
		Temperature:          cc.Temperature,
		MaxTokens:            cc.MaxTokens,
		Timeout:              cc.Timeout,
		MaxRetries:           cc.MaxRetries,
		RetryInitialInterval: cc.RetryInitialInterval,
		RetryMaxInterval:     cc.RetryMaxInterval,
		FallbackText:         cc.FallbackText,
		Breaker: llm.BreakerConfig{
			Enabled:          cc.Breaker.Enabled,
			FailureThreshold: cc.Breaker.FailureThreshold,
			OpenTimeout:      cc.Breaker.OpenTimeout,
		},
	}

	if cc.Provider == llm.ProviderGemini {
		config.APIKey = c.Gemini.APIKey
		config.Model = c.Gemini.Model
	}

	return config
}

func (c *Config) BuilderConfig() usecase.GatherConfig {
	return usecase.GatherConfig{
		Timeout:    c.Gather.Timeout,
		ActionHook: c.Gather.ActionHook,
		SttTimeout: c.Gather.SttTimeout,
		Hints:      c.Gather.Hints,
	}
}

func (c *Config) CallPrompts() usecase.Prompts {
	return usecase.Prompts{
		InboundGreeting:  c.Prompts.InboundGreeting,
		OutboundGreeting: c.Prompts.OutboundGreeting,
		NoInput:          c.Prompts.NoInput,
	}
}
