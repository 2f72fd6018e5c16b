package usecase

import "github.com/satriahrh/arunika/callagent/domain/entities"

// Defaults for the gather step. The conversation protocol is static, so these
// never depend on request data.
const (
	DefaultGatherTimeout = 5
	DefaultActionHook    = "/transcription"
	DefaultSttTimeout    = 2
)

// DefaultSttHints are the recognizer hints offered on the inbound greeting
var DefaultSttHints = []string{"help", "question", "goodbye"}

// GatherConfig holds the fixed parameters of every speech gather
type GatherConfig struct {
	Timeout    int
	ActionHook string
	SttTimeout int
	Hints      []string
}

// GatherOption adjusts an optional field of a GatherSpeech instruction
type GatherOption func(*entities.GatherSpeech)

// WithHints sets the recognizer hints
func WithHints(hints ...string) GatherOption {
	return func(g *entities.GatherSpeech) {
		if len(hints) == 0 {
			return
		}
		g.SttHints = append([]string(nil), hints...)
	}
}

// WithSttTimeout sets the seconds of silence that end an utterance
func WithSttTimeout(seconds int) GatherOption {
	return func(g *entities.GatherSpeech) {
		if seconds <= 0 {
			return
		}
		g.SttTimeout = &seconds
	}
}

// InstructionBuilder builds the speak-then-gather instruction lists
type InstructionBuilder struct {
	config GatherConfig
}

// NewInstructionBuilder creates a builder, filling zero fields with defaults
func NewInstructionBuilder(config GatherConfig) *InstructionBuilder {
	if config.Timeout <= 0 {
		config.Timeout = DefaultGatherTimeout
	}
	if config.ActionHook == "" {
		config.ActionHook = DefaultActionHook
	}
	if config.SttTimeout <= 0 {
		config.SttTimeout = DefaultSttTimeout
	}
	if config.Hints == nil {
		config.Hints = DefaultSttHints
	}
	return &InstructionBuilder{config: config}
}

// Config returns the gather parameters in use
func (b *InstructionBuilder) Config() GatherConfig {
	return b.config
}

// GreetAndGather speaks text and listens for speech, allowing the caller to
// talk over the prompt
func (b *InstructionBuilder) GreetAndGather(text string, opts ...GatherOption) entities.InstructionList {
	listen := true
	gather := b.gather()
	gather.ListenDuringPrompt = &listen
	for _, opt := range opts {
		opt(&gather)
	}

	return entities.InstructionList{
		entities.Speak{Text: text},
		gather,
	}
}

// ReGather is the degraded re-prompt used when no speech was recognized:
// no barge-in, no hints
func (b *InstructionBuilder) ReGather(text string) entities.InstructionList {
	return entities.InstructionList{
		entities.Speak{Text: text},
		b.gather(),
	}
}

func (b *InstructionBuilder) gather() entities.GatherSpeech {
	return entities.GatherSpeech{
		Input:      []string{entities.InputSpeech},
		Timeout:    b.config.Timeout,
		ActionHook: b.config.ActionHook,
	}
}
