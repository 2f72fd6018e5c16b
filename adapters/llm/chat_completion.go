package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/satriahrh/arunika/callagent/domain/repositories"
)

var (
	ErrMissingAPIKey = errors.New("completion API key is not configured")
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrNoChoices     = errors.New("completion response has no choices")
	ErrEmptyContent  = errors.New("completion response message is empty")
)

// maxErrorBody caps how much of a failed response body ends up in logs
const maxErrorBody = 512

// StatusError is returned when the completion endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt may succeed
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type chatRequest struct {
	Model       string                     `json:"model,omitempty"`
	Messages    []repositories.ChatMessage `json:"messages"`
	Temperature float32                    `json:"temperature"`
	MaxTokens   int                        `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message *repositories.ChatMessage `json:"message"`
	} `json:"choices"`
}

// ChatCompletionClient calls an OpenAI-style chat completion endpoint
type ChatCompletionClient struct {
	url         string
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
	httpClient  *http.Client
}

// Ensure ChatCompletionClient implements the Generator interface
var _ Generator = (*ChatCompletionClient)(nil)

// NewChatCompletionClient creates a chat completion client. A nil httpClient
// gets a client with connection-level timeouts; the request deadline comes
// from the context.
func NewChatCompletionClient(config Config, httpClient *http.Client) *ChatCompletionClient {
	config = config.withDefaults()
	if httpClient == nil {
		httpClient = newHTTPClient()
	}

	return &ChatCompletionClient{
		url:         config.URL,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient:  httpClient,
	}
}

// Name implements Generator
func (c *ChatCompletionClient) Name() string {
	return ProviderChatCompletion
}

// Generate sends prompt as a single user message and returns the first choice
func (c *ChatCompletionClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []repositories.ChatMessage{
			{Role: repositories.UserRole, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", ErrNoChoices
	}
	message := result.Choices[0].Message
	if message == nil || message.Content == "" {
		return "", ErrEmptyContent
	}

	return message.Content, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
