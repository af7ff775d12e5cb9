// Package stream implements the client side of the chat streaming
// pipeline: transport, event frame decoding, incremental answer
// assembly, and fallback to the non-streaming endpoint.
package stream

import (
	"encoding/json"
	"strings"
)

// FrameKind is the closed set of decoded event kinds.
type FrameKind int

const (
	// FrameUnknown marks an unrecognized event; it is skipped.
	FrameUnknown FrameKind = iota
	// FramePartialText carries a text fragment to append.
	FramePartialText
	// FrameCompleteText carries a full text chunk to append.
	FrameCompleteText
	// FrameTerminal signals the provider has no more content for this turn.
	FrameTerminal
	// FrameError carries a provider error message; it ends the turn.
	FrameError
)

// String returns a short name for logging.
func (k FrameKind) String() string {
	switch k {
	case FramePartialText:
		return "partial_text"
	case FrameCompleteText:
		return "complete_text"
	case FrameTerminal:
		return "terminal"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one decoded unit from the event stream.
type Frame struct {
	Kind    FrameKind
	Payload string
}

// ClassifyEventType maps a provider or wire type string to a FrameKind.
// This is the single place provider-format drift is absorbed: exact wire
// names first, then the substring rules the upstream event families follow.
func ClassifyEventType(eventType string) FrameKind {
	switch eventType {
	case "text_delta":
		return FramePartialText
	case "text_complete":
		return FrameCompleteText
	case "done":
		return FrameTerminal
	case "error":
		return FrameError
	}

	hasText := strings.Contains(eventType, "text")
	switch {
	case hasText && strings.Contains(eventType, "delta"):
		return FramePartialText
	case hasText && strings.Contains(eventType, "done"):
		return FrameCompleteText
	case strings.Contains(eventType, "done"):
		return FrameTerminal
	default:
		return FrameUnknown
	}
}

// wireEvent covers both the proxy wire shape ({type, content}) and raw
// provider shapes ({type, delta}, {type, text}, {type, error}).
type wireEvent struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Delta   json.RawMessage `json:"delta"`
	Text    string          `json:"text"`
	Error   json.RawMessage `json:"error"`
}

// ParseFrame decodes one data payload into a Frame.
func ParseFrame(data []byte) (Frame, error) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Frame{}, err
	}

	kind := ClassifyEventType(ev.Type)
	frame := Frame{Kind: kind}

	switch kind {
	case FramePartialText:
		frame.Payload = ev.Content
		if frame.Payload == "" {
			frame.Payload = decodeFragment(ev.Delta)
		}
	case FrameCompleteText:
		frame.Payload = ev.Content
		if frame.Payload == "" {
			frame.Payload = ev.Text
		}
		if frame.Payload == "" {
			frame.Payload = decodeFragment(ev.Delta)
		}
	case FrameError:
		frame.Payload = decodeErrorMessage(ev.Error)
	}

	return frame, nil
}

// decodeFragment accepts a delta that is either a bare JSON string or an
// object carrying the fragment under "text" or "content".
func decodeFragment(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Text != "" {
			return obj.Text
		}
		return obj.Content
	}
	return ""
}

func decodeErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return "unknown error"
}
