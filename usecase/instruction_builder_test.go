package usecase

import (
	"testing"

	"github.com/satriahrh/arunika/callagent/domain/entities"
)

func TestInstructionBuilder_Defaults(t *testing.T) {
	builder := NewInstructionBuilder(GatherConfig{})
	config := builder.Config()

	if config.Timeout != 5 {
		t.Errorf("Expected timeout 5, got %d", config.Timeout)
	}
	if config.ActionHook != "/transcription" {
		t.Errorf("Expected action hook /transcription, got %s", config.ActionHook)
	}
	if config.SttTimeout != 2 {
		t.Errorf("Expected stt timeout 2, got %d", config.SttTimeout)
	}
	if len(config.Hints) != 3 {
		t.Errorf("Expected 3 default hints, got %v", config.Hints)
	}
}

func TestInstructionBuilder_ReGather(t *testing.T) {
	list := NewInstructionBuilder(GatherConfig{}).ReGather("Say again?")

	if len(list) != 2 {
		t.Fatalf("Expected 2 instructions, got %d", len(list))
	}
	if speak, ok := list[0].(entities.Speak); !ok || speak.Text != "Say again?" {
		t.Errorf("Expected speak first, got %#v", list[0])
	}

	gather, ok := list[1].(entities.GatherSpeech)
	if !ok {
		t.Fatalf("Expected gather second, got %#v", list[1])
	}
	if gather.ListenDuringPrompt != nil {
		t.Error("Re-prompt gather must not set listenDuringPrompt")
	}
	if gather.SttHints != nil || gather.SttTimeout != nil {
		t.Error("Re-prompt gather must not carry hints or stt timeout")
	}
}

func TestInstructionBuilder_GreetAndGatherOptions(t *testing.T) {
	builder := NewInstructionBuilder(GatherConfig{Timeout: 8, ActionHook: "/heard"})

	plain := builder.GreetAndGather("Hi")
	gather := plain[1].(entities.GatherSpeech)
	if gather.ListenDuringPrompt == nil || !*gather.ListenDuringPrompt {
		t.Error("GreetAndGather must listen during the prompt")
	}
	if gather.SttHints != nil || gather.SttTimeout != nil {
		t.Error("GreetAndGather without options must not set hints or stt timeout")
	}
	if gather.Timeout != 8 || gather.ActionHook != "/heard" {
		t.Errorf("Expected configured timeout and hook, got %d %s", gather.Timeout, gather.ActionHook)
	}

	hints := []string{"yes", "no"}
	withOpts := builder.GreetAndGather("Hi", WithHints(hints...), WithSttTimeout(3))
	gather = withOpts[1].(entities.GatherSpeech)
	if len(gather.SttHints) != 2 || gather.SttTimeout == nil || *gather.SttTimeout != 3 {
		t.Errorf("Expected hints and stt timeout, got %v %v", gather.SttHints, gather.SttTimeout)
	}

	hints[0] = "changed"
	if gather.SttHints[0] != "yes" {
		t.Error("Gather hints must not alias the caller's slice")
	}

	ignored := builder.GreetAndGather("Hi", WithHints(), WithSttTimeout(0))
	gather = ignored[1].(entities.GatherSpeech)
	if gather.SttHints != nil || gather.SttTimeout != nil {
		t.Error("Empty hints and zero timeout should leave the fields unset")
	}
}
