package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func replyWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		APIKey:               "test-api-key",
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	}
}

func TestChatCompletionClient_RequestShape(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var got struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}

		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-api-key" {
			t.Errorf("Expected bearer credential, got '%s'", auth)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got '%s'", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hello" {
			t.Errorf("Expected a single user message 'hello', got %+v", got.Messages)
		}
		if got.Temperature != 0.7 {
			t.Errorf("Expected temperature 0.7, got %v", got.Temperature)
		}
		if got.MaxTokens != 150 {
			t.Errorf("Expected max_tokens 150, got %d", got.MaxTokens)
		}

		replyWith("Hi there!")(w, r)
	})

	client := NewChatCompletionClient(testConfig(server.URL), nil)
	reply, err := client.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if reply != "Hi there!" {
		t.Errorf("Expected reply 'Hi there!', got '%s'", reply)
	}
}

func TestClient_GetCompletion_Success(t *testing.T) {
	server, calls := newTestServer(t, replyWith("Hi there!"))
	config := testConfig(server.URL)
	client := NewClient(NewChatCompletionClient(config, nil), config, zaptest.NewLogger(t))

	if reply := client.GetCompletion(context.Background(), "hello"); reply != "Hi there!" {
		t.Errorf("Expected 'Hi there!', got '%s'", reply)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("Expected 1 request, got %d", atomic.LoadInt32(calls))
	}
}

func TestClient_GetCompletion_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad key", http.StatusUnauthorized)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "missing message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[{}]}`))
			},
		},
		{
			name: "unexpected shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":{"message":"quota"}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.handler)
			config := testConfig(server.URL)
			client := NewClient(NewChatCompletionClient(config, nil), config, zap.NewNop())

			reply := client.GetCompletion(context.Background(), "hello")
			if reply != DefaultFallbackText {
				t.Errorf("Expected fallback text, got '%s'", reply)
			}
		})
	}
}

func TestClient_GetCompletion_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	config := testConfig(url)
	core, logs := observer.New(zapcore.InfoLevel)
	client := NewClient(NewChatCompletionClient(config, nil), config, zap.New(core))

	reply := client.GetCompletion(context.Background(), "what time is it")
	if reply != "I apologize, but I encountered an error processing your request." {
		t.Errorf("Expected fallback text, got '%s'", reply)
	}

	entries := logs.FilterMessage("Error getting completion").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 error log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["prompt"] != "what time is it" {
		t.Errorf("Expected prompt in log context, got %v", fields["prompt"])
	}
	if _, ok := fields["error"]; !ok {
		t.Error("Expected error in log context")
	}
}

func TestClient_GetCompletion_MissingAPIKey(t *testing.T) {
	server, calls := newTestServer(t, replyWith("unused"))
	config := testConfig(server.URL)
	config.APIKey = ""
	config.MaxRetries = 3
	client := NewClient(NewChatCompletionClient(config, nil), config, zap.NewNop())

	if reply := client.GetCompletion(context.Background(), "hello"); reply != DefaultFallbackText {
		t.Errorf("Expected fallback text, got '%s'", reply)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Errorf("Expected no request without API key, got %d", atomic.LoadInt32(calls))
	}
}

func TestClient_GetCompletion_RetriesTransientFailure(t *testing.T) {
	var attempts int32
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		replyWith("second time lucky")(w, r)
	})

	config := testConfig(server.URL)
	config.MaxRetries = 2
	client := NewClient(NewChatCompletionClient(config, nil), config, zaptest.NewLogger(t))

	if reply := client.GetCompletion(context.Background(), "hello"); reply != "second time lucky" {
		t.Errorf("Expected retried reply, got '%s'", reply)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

func TestClient_GetCompletion_DoesNotRetryClientErrors(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	config := testConfig(server.URL)
	config.MaxRetries = 3
	client := NewClient(NewChatCompletionClient(config, nil), config, zap.NewNop())

	if reply := client.GetCompletion(context.Background(), "hello"); reply != DefaultFallbackText {
		t.Errorf("Expected fallback text, got '%s'", reply)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("Expected a single attempt for 401, got %d", atomic.LoadInt32(calls))
	}
}

func TestClient_GetCompletion_NoRetryByDefault(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	config := testConfig(server.URL)
	client := NewClient(NewChatCompletionClient(config, nil), config, zap.NewNop())
	client.GetCompletion(context.Background(), "hello")

	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("Expected exactly 1 attempt with default config, got %d", atomic.LoadInt32(calls))
	}
}

func TestClient_GetCompletion_Timeout(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	config := testConfig(server.URL)
	config.Timeout = 50 * time.Millisecond
	client := NewClient(NewChatCompletionClient(config, nil), config, zap.NewNop())

	started := time.Now()
	if reply := client.GetCompletion(context.Background(), "hello"); reply != DefaultFallbackText {
		t.Errorf("Expected fallback text, got '%s'", reply)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("Expected the deadline to cut the call short, took %s", elapsed)
	}
}

func TestClient_GetCompletion_BreakerOpens(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	config := testConfig(server.URL)
	config.Breaker = BreakerConfig{Enabled: true, FailureThreshold: 1, OpenTimeout: time.Minute}
	client := NewClient(NewChatCompletionClient(config, nil), config, zaptest.NewLogger(t))

	client.GetCompletion(context.Background(), "first")
	reply := client.GetCompletion(context.Background(), "second")

	if reply != DefaultFallbackText {
		t.Errorf("Expected fallback text while breaker is open, got '%s'", reply)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("Expected the open breaker to block the second request, got %d requests", atomic.LoadInt32(calls))
	}
}

type panickingGenerator struct{}

func (panickingGenerator) Name() string { return "panicking" }

func (panickingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	panic("provider exploded")
}

type failingGenerator struct{ err error }

func (f failingGenerator) Name() string { return "failing" }

func (f failingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", f.err
}

func TestClient_GetCompletion_NeverPanics(t *testing.T) {
	client := NewClient(panickingGenerator{}, Config{}, zap.NewNop())

	if reply := client.GetCompletion(context.Background(), "hello"); reply != DefaultFallbackText {
		t.Errorf("Expected fallback text, got '%s'", reply)
	}
}

func TestClient_GetCompletion_CustomFallback(t *testing.T) {
	client := NewClient(failingGenerator{err: errors.New("down")}, Config{FallbackText: "Sorry, try again."}, zap.NewNop())

	if reply := client.GetCompletion(context.Background(), "hello"); reply != "Sorry, try again." {
		t.Errorf("Expected custom fallback, got '%s'", reply)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(Config{}); err != nil {
		t.Errorf("Zero config should be valid, got %v", err)
	}
	if err := ValidateConfig(Config{Provider: "unknown"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
	if err := ValidateConfig(Config{Temperature: 3}); err == nil {
		t.Error("Expected error for temperature out of range")
	}
	if err := ValidateConfig(Config{MaxRetries: -1}); err == nil {
		t.Error("Expected error for negative retries")
	}
}

func TestNew_MockProvider(t *testing.T) {
	client, err := New(context.Background(), Config{Provider: ProviderMock}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	reply := client.GetCompletion(context.Background(), "hello")
	if reply != "You said: hello. What else can I help you with?" {
		t.Errorf("Unexpected mock reply '%s'", reply)
	}
}

func TestNew_GeminiRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderGemini}, zap.NewNop())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "hello", "hello"},
		{"ascii cut", strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"multibyte kept whole", strings.Repeat("é", 50), strings.Repeat("é", 50)},
		{"multibyte cut", "a" + strings.Repeat("日本", 30), "a" + strings.Repeat("日本", 24) + "日"},
		{"emoji cut", strings.Repeat("👋", 51), strings.Repeat("👋", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preview(tt.in)
			if !utf8.ValidString(got) {
				t.Fatalf("preview produced invalid UTF-8: %q", got)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
