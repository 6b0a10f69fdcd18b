package events

import (
	"encoding/json"

	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeChunk carries a piece of generator output, forwarded verbatim.
	EventTypeChunk EventType = "chunk"
	// EventTypeComplete ends a craft stream with the structured recipe.
	EventTypeComplete EventType = "complete"
	// EventTypeError ends any stream with a human-readable message.
	EventTypeError EventType = "error"
	// EventTypeFinal ends a narration stream with the full text.
	EventTypeFinal EventType = "final"
)

// IsTerminal reports whether no further events follow an event of this type.
func (t EventType) IsTerminal() bool {
	return t == EventTypeComplete || t == EventTypeError || t == EventTypeFinal
}

type Event interface {
	Type() EventType
	Payload() []byte
}

type EventImpl struct {
	Type_ EventType `json:"type"`

	// set if the event was deserialized from JSON (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
}

var _ Event = &EventImpl{}

type EventChunk struct {
	EventImpl
	Content string `json:"content"`
}

func NewChunkEvent(content string) *EventChunk {
	return &EventChunk{
		EventImpl: EventImpl{Type_: EventTypeChunk},
		Content:   content,
	}
}

var _ Event = &EventChunk{}

type EventComplete struct {
	EventImpl
	Recipe *recipes.Recipe `json:"recipe"`
	Cached bool            `json:"cached"`
}

func NewCompleteEvent(recipe *recipes.Recipe, cached bool) *EventComplete {
	return &EventComplete{
		EventImpl: EventImpl{Type_: EventTypeComplete},
		Recipe:    recipe,
		Cached:    cached,
	}
}

var _ Event = &EventComplete{}

type EventError struct {
	EventImpl
	Message string `json:"message"`
}

func NewErrorEvent(message string) *EventError {
	return &EventError{
		EventImpl: EventImpl{Type_: EventTypeError},
		Message:   message,
	}
}

var _ Event = &EventError{}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal},
		Text:      text,
	}
}

var _ Event = &EventFinal{}

// NewEventFromJson decodes a wire event into its typed struct.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr EventImpl
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "could not decode event header")
	}

	var ret Event
	switch hdr.Type_ {
	case EventTypeChunk:
		ret = &EventChunk{}
	case EventTypeComplete:
		ret = &EventComplete{}
	case EventTypeError:
		ret = &EventError{}
	case EventTypeFinal:
		ret = &EventFinal{}
	default:
		return nil, errors.Errorf("unknown event type %q", hdr.Type_)
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s event", hdr.Type_)
	}
	if setter, ok := ret.(interface{ setPayload([]byte) }); ok {
		setter.setPayload(b)
	}
	return ret, nil
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
