package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/callagent/domain/entities"
	"github.com/satriahrh/arunika/callagent/domain/repositories"
)

const (
	DefaultInboundGreeting  = "Hello! I am an AI assistant. How can I help you today?"
	DefaultOutboundGreeting = "Hello! This is an AI assistant calling. How can I help you today?"
	DefaultNoInputPrompt    = "I did not hear anything. Could you please repeat?"
)

// Prompts holds the fixed sentences spoken by the call flow
type Prompts struct {
	InboundGreeting  string
	OutboundGreeting string
	NoInput          string
}

func (p Prompts) withDefaults() Prompts {
	if p.InboundGreeting == "" {
		p.InboundGreeting = DefaultInboundGreeting
	}
	if p.OutboundGreeting == "" {
		p.OutboundGreeting = DefaultOutboundGreeting
	}
	if p.NoInput == "" {
		p.NoInput = DefaultNoInputPrompt
	}
	return p
}

// CallFlow maps each platform event to the instructions for the live call
type CallFlow interface {
	Inbound(ctx context.Context, payload entities.InboundEventPayload) (entities.InstructionList, error)
	Transcription(ctx context.Context, payload *entities.TranscriptionPayload) (entities.InstructionList, error)
	OutboundStatus(ctx context.Context, payload *entities.OutboundStatusPayload) (entities.InstructionList, error)
}

// CallFlowService implements CallFlow. It keeps no per-call state: every
// event is answered from its own payload.
type CallFlowService struct {
	completer repositories.Completer
	builder   *InstructionBuilder
	prompts   Prompts
	logger    *zap.Logger
}

// Ensure CallFlowService implements the CallFlow interface
var _ CallFlow = (*CallFlowService)(nil)

// NewCallFlowService creates a new call flow service
func NewCallFlowService(
	completer repositories.Completer,
	builder *InstructionBuilder,
	prompts Prompts,
	logger *zap.Logger,
) *CallFlowService {
	return &CallFlowService{
		completer: completer,
		builder:   builder,
		prompts:   prompts.withDefaults(),
		logger:    logger,
	}
}

// Inbound greets a caller who just connected and starts listening
func (s *CallFlowService) Inbound(ctx context.Context, payload entities.InboundEventPayload) (entities.InstructionList, error) {
	s.logger.Info("Greeting inbound caller",
		zap.String("call_sid", payload.CallSid()),
		zap.Any("call", payload.LogFields()))

	gather := s.builder.Config()
	list := s.builder.GreetAndGather(s.prompts.InboundGreeting,
		WithHints(gather.Hints...),
		WithSttTimeout(gather.SttTimeout))

	return checked(list)
}

// Transcription answers a caller utterance with an AI reply, or re-prompts
// when nothing usable was recognized
func (s *CallFlowService) Transcription(ctx context.Context, payload *entities.TranscriptionPayload) (entities.InstructionList, error) {
	transcript, ok := payload.Transcript()
	if !ok {
		s.logger.Info("No speech recognized, asking caller to repeat")
		return checked(s.builder.ReGather(s.prompts.NoInput))
	}

	s.logger.Info("Transcription completed", zap.String("text", transcript))

	reply := s.completer.GetCompletion(ctx, transcript)

	s.logger.Info("AI response generated", zap.String("response", reply))

	return checked(s.builder.GreetAndGather(reply))
}

// OutboundStatus starts the conversation once an outbound call is answered.
// Every other event gets an empty instruction list.
func (s *CallFlowService) OutboundStatus(ctx context.Context, payload *entities.OutboundStatusPayload) (entities.InstructionList, error) {
	if !payload.Answered() {
		return entities.InstructionList{}, nil
	}

	return checked(s.builder.GreetAndGather(s.prompts.OutboundGreeting))
}

func checked(list entities.InstructionList) (entities.InstructionList, error) {
	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instruction list: %w", err)
	}
	return list, nil
}
