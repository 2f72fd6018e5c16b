package entities

import (
	"encoding/json"
	"fmt"
)

// Verb names understood by the telephony platform
const (
	VerbSay    = "say"
	VerbGather = "gather"
)

// InputSpeech is the only gather input mode used by the call flow
const InputSpeech = "speech"

// Instruction is one call-control directive executed by the platform.
// It is a closed union: Speak and GatherSpeech are the only implementations.
type Instruction interface {
	Verb() string
	instruction()
}

// Speak tells the platform to say text to the caller
type Speak struct {
	Text string
}

// GatherSpeech tells the platform to collect caller speech and post the
// result to ActionHook
type GatherSpeech struct {
	Input              []string
	Timeout            int
	ActionHook         string
	ListenDuringPrompt *bool
	SttHints           []string
	SttTimeout         *int
}

func (Speak) Verb() string        { return VerbSay }
func (GatherSpeech) Verb() string { return VerbGather }

func (Speak) instruction()        {}
func (GatherSpeech) instruction() {}

type speakWire struct {
	Verb string `json:"verb"`
	Text string `json:"text"`
}

type gatherWire struct {
	Verb               string   `json:"verb"`
	Input              []string `json:"input"`
	Timeout            int      `json:"timeout"`
	ActionHook         string   `json:"actionHook"`
	ListenDuringPrompt *bool    `json:"listenDuringPrompt,omitempty"`
	SttHints           []string `json:"sttHints,omitempty"`
	SttTimeout         *int     `json:"sttTimeout,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (s Speak) MarshalJSON() ([]byte, error) {
	return json.Marshal(speakWire{Verb: VerbSay, Text: s.Text})
}

// MarshalJSON implements json.Marshaler
func (g GatherSpeech) MarshalJSON() ([]byte, error) {
	return json.Marshal(gatherWire{
		Verb:               VerbGather,
		Input:              g.Input,
		Timeout:            g.Timeout,
		ActionHook:         g.ActionHook,
		ListenDuringPrompt: g.ListenDuringPrompt,
		SttHints:           g.SttHints,
		SttTimeout:         g.SttTimeout,
	})
}

// InstructionList is the ordered set of instructions returned for one event.
// A Speak, when present, precedes the GatherSpeech it is paired with.
type InstructionList []Instruction

// MarshalJSON encodes an empty list as [] rather than null
func (l InstructionList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Instruction(l))
}

// UnmarshalJSON decodes a verb array back into typed instructions
func (l *InstructionList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	list := make(InstructionList, 0, len(raw))
	for i, item := range raw {
		var head struct {
			Verb string `json:"verb"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}

		switch head.Verb {
		case VerbSay:
			var w speakWire
			if err := json.Unmarshal(item, &w); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			list = append(list, Speak{Text: w.Text})
		case VerbGather:
			var w gatherWire
			if err := json.Unmarshal(item, &w); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			list = append(list, GatherSpeech{
				Input:              w.Input,
				Timeout:            w.Timeout,
				ActionHook:         w.ActionHook,
				ListenDuringPrompt: w.ListenDuringPrompt,
				SttHints:           w.SttHints,
				SttTimeout:         w.SttTimeout,
			})
		default:
			return fmt.Errorf("instruction %d: unknown verb %q", i, head.Verb)
		}
	}

	*l = list
	return nil
}

// Validate checks the ordering invariant: at most one gather, last in the list,
// and every speak has non-empty text
func (l InstructionList) Validate() error {
	for i, inst := range l {
		switch v := inst.(type) {
		case Speak:
			if v.Text == "" {
				return fmt.Errorf("instruction %d: say text is empty", i)
			}
		case GatherSpeech:
			if i != len(l)-1 {
				return fmt.Errorf("instruction %d: gather must be the last instruction", i)
			}
			if v.ActionHook == "" {
				return fmt.Errorf("instruction %d: gather actionHook is empty", i)
			}
		default:
			return fmt.Errorf("instruction %d: unsupported instruction %T", i, inst)
		}
	}
	return nil
}

// WebhookResponse is the envelope returned by the webhook endpoints
type WebhookResponse struct {
	Instructions InstructionList `json:"instructions"`
}
