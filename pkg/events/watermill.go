package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const MetadataSessionID = "session_id"

// WatermillSink publishes events as JSON messages on a watermill topic. When
// the publisher blocks until subscriber ack (see NewEventRouter), Send only
// returns once the event has been handled downstream.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
	sessionID string

	mu     sync.Mutex
	closed bool
}

func NewWatermillSink(publisher message.Publisher, topic string, sessionID string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
		sessionID: sessionID,
	}
}

func (w *WatermillSink) Send(ctx context.Context, e Event) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not marshal event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if w.sessionID != "" {
		msg.Metadata.Set(MetadataSessionID, w.sessionID)
	}

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event")
		return errors.Wrapf(err, "could not publish to %s", w.topic)
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(e.Type())).Msg("Published event")
	return nil
}

// Close marks the sink closed. The publisher belongs to the router and stays
// open.
func (w *WatermillSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

var _ Sink = (*WatermillSink)(nil)
