package llm

import (
	"context"
	"fmt"
)

// MockGenerator answers without calling any provider. It is meant for local
// development against the telephony platform.
type MockGenerator struct{}

// NewMockGenerator creates a new mock generator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Name implements Generator
func (m *MockGenerator) Name() string {
	return ProviderMock
}

// Generate implements Generator
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return fmt.Sprintf("You said: %s. What else can I help you with?", prompt), nil
}
