package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// PrinterFunc returns a router handler that writes chunks to w as they arrive
// and a YAML rendering of the recipe on completion.
func PrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	isFirst := true
	lastChunk := ""

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch e_ := e.(type) {
		case *EventChunk:
			if isFirst && name != "" {
				isFirst = false
				if _, err := fmt.Fprintf(w, "\n%s: \n", name); err != nil {
					return err
				}
			}
			lastChunk = e_.Content
			if _, err := fmt.Fprint(w, e_.Content); err != nil {
				return err
			}

		case *EventComplete:
			if lastChunk != "" && !strings.HasSuffix(lastChunk, "\n") {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			source := "generated"
			if e_.Cached {
				source = "cached"
			}
			if _, err := fmt.Fprintf(w, "\n--- %s recipe ---\n", source); err != nil {
				return err
			}
			b, err := yaml.Marshal(e_.Recipe)
			if err != nil {
				return err
			}
			if _, err := w.Write(b); err != nil {
				return err
			}

		case *EventError:
			if _, err := fmt.Fprintf(w, "\n[error] %s\n", e_.Message); err != nil {
				return err
			}

		case *EventFinal:
			if !strings.HasSuffix(e_.Text, "\n") {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
		}

		return nil
	}
}
