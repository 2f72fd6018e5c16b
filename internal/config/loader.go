package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/satriahrh/arunika/callagent/adapters/llm"
	"github.com/satriahrh/arunika/callagent/usecase"
)

// Load reads configuration from .env, an optional config.yaml and the process
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain names the telephony deploys already use
	bindings := map[string][]string{
		"http.port":           {"PORT", "APP_HTTP_PORT"},
		"completion.api_key":  {"GPT4_MINI_API_KEY", "APP_COMPLETION_API_KEY"},
		"completion.url":      {"COMPLETION_URL", "APP_COMPLETION_URL"},
		"completion.provider": {"COMPLETION_PROVIDER", "APP_COMPLETION_PROVIDER"},
		"gemini.api_key":      {"GEMINI_API_KEY", "APP_GEMINI_API_KEY"},
		"gemini.model":        {"GEMINI_MODEL", "APP_GEMINI_MODEL"},
		"log.level":           {"LOG_LEVEL", "APP_LOG_LEVEL"},
		"log.format":          {"LOG_FORMAT", "APP_LOG_FORMAT"},
		"ws.jwt_secret":       {"WS_JWT_SECRET", "APP_WS_JWT_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("completion.provider", llm.ProviderChatCompletion)
	v.SetDefault("completion.url", "https://api.gpt4mini.com/v1/chat")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.max_tokens", 150)
	v.SetDefault("completion.timeout", "15s")
	v.SetDefault("completion.max_retries", 0)
	v.SetDefault("completion.retry_initial_interval", "250ms")
	v.SetDefault("completion.retry_max_interval", "2s")
	v.SetDefault("completion.fallback_text", llm.DefaultFallbackText)
	v.SetDefault("completion.breaker.enabled", false)
	v.SetDefault("completion.breaker.failure_threshold", 5)
	v.SetDefault("completion.breaker.open_timeout", "30s")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")

	v.SetDefault("gather.timeout", usecase.DefaultGatherTimeout)
	v.SetDefault("gather.action_hook", usecase.DefaultActionHook)
	v.SetDefault("gather.stt_timeout", usecase.DefaultSttTimeout)
	v.SetDefault("gather.hints", usecase.DefaultSttHints)

	v.SetDefault("prompts.inbound_greeting", usecase.DefaultInboundGreeting)
	v.SetDefault("prompts.outbound_greeting", usecase.DefaultOutboundGreeting)
	v.SetDefault("prompts.no_input", usecase.DefaultNoInputPrompt)

	v.SetDefault("response.format", FormatEnvelope)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ws.enabled", false)
	v.SetDefault("ws.path", "/ws")
	v.SetDefault("ws.jwt_secret", "")
}
