package claude

import (
	"github.com/rs/zerolog"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

const TextDeltaType = "text_delta"

type StreamingEvent struct {
	Type  StreamingEventType `json:"type"`
	Index int                `json:"index,omitempty"`
	Delta *Delta             `json:"delta,omitempty"`
	Error *Error             `json:"error,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))
	if s.Delta != nil {
		e.Str("delta_type", s.Delta.Type)
		e.Int("delta_chars", len(s.Delta.Text))
	}
	if s.Error != nil {
		e.Str("error_type", s.Error.Type)
		e.Str("error_message", s.Error.Message)
	}
}

type Delta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the body of a non-200 reply.
type ErrorResponse struct {
	Error Error `json:"error"`
}
