package entities

import (
	"encoding/json"
	"strconv"
	"strings"
)

// OutboundEventAnswered is the only outbound status event that gets a reply
const OutboundEventAnswered = "answered"

// InboundEventPayload is the call metadata posted when a new call arrives.
// Its content is only logged; it never drives a decision.
type InboundEventPayload map[string]any

// CallSid returns the platform's call identifier when one is present
func (p InboundEventPayload) CallSid() string {
	return p.stringField("call_sid")
}

// LogFields returns the identifying fields worth logging for a call
func (p InboundEventPayload) LogFields() map[string]string {
	fields := make(map[string]string)
	for _, key := range []string{"call_sid", "direction", "from", "to", "account_sid"} {
		if v := p.stringField(key); v != "" {
			fields[key] = v
		}
	}
	return fields
}

// ParseInboundEvent reads the call metadata out of a raw body. A body that is
// not a JSON object yields nil and ok false; the call is greeted anyway.
func ParseInboundEvent(raw []byte) (payload InboundEventPayload, ok bool) {
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	return payload, true
}

func (p InboundEventPayload) stringField(key string) string {
	if p == nil {
		return ""
	}
	v, _ := p[key].(string)
	return v
}

// TranscriptionPayload is posted to the gather action hook
type TranscriptionPayload struct {
	CallSid string        `json:"call_sid,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Speech  *SpeechResult `json:"speech,omitempty"`
}

// SpeechResult holds the recognizer's ranked alternatives
type SpeechResult struct {
	IsFinal      Flag           `json:"is_final,omitempty"`
	Alternatives []*Alternative `json:"alternatives,omitempty"`
}

// Alternative is one candidate transcription
type Alternative struct {
	Transcript string `json:"transcript"`
	Confidence Score  `json:"confidence,omitempty"`
}

// Transcript returns the first alternative's text. ok is false when there is
// no speech result, no alternatives, a null first alternative, or blank text.
func (p *TranscriptionPayload) Transcript() (text string, ok bool) {
	if p == nil || p.Speech == nil || len(p.Speech.Alternatives) == 0 {
		return "", false
	}
	first := p.Speech.Alternatives[0]
	if first == nil || strings.TrimSpace(first.Transcript) == "" {
		return "", false
	}
	return first.Transcript, true
}

// OutboundStatusPayload is posted on outbound call progress. Decoding never
// fails: a body that is not an object, or fields that are not strings, are
// read as empty, which means "not answered".
type OutboundStatusPayload struct {
	Event      string `json:"event"`
	CallSid    string `json:"call_sid,omitempty"`
	CallStatus string `json:"call_status,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler
func (p *OutboundStatusPayload) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		*p = OutboundStatusPayload{}
		return nil
	}

	*p = OutboundStatusPayload{
		Event:      rawString(fields["event"]),
		CallSid:    rawString(fields["call_sid"]),
		CallStatus: rawString(fields["call_status"]),
	}
	return nil
}

// Answered reports whether the callee picked up
func (p *OutboundStatusPayload) Answered() bool {
	return p != nil && p.Event == OutboundEventAnswered
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Flag is a boolean that also accepts the "true"/"false" strings form bodies
// produce. Anything else reads as false.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler
func (f *Flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case bool:
		*f = Flag(t)
	case string:
		b, _ := strconv.ParseBool(t)
		*f = Flag(b)
	default:
		*f = false
	}
	return nil
}

// Score is a number that also accepts numeric strings. Anything else reads as 0.
type Score float64

// UnmarshalJSON implements json.Unmarshaler
func (s *Score) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case float64:
		*s = Score(t)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		*s = Score(f)
	default:
		*s = 0
	}
	return nil
}
