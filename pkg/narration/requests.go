package narration

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/rs/zerolog"
)

const (
	MaxMessageLength = 2000
	MaxHistory       = 20
	MaxEvents        = 20
)

// Persona describes the NPC who answers the player.
type Persona struct {
	Name        string   `json:"name" yaml:"name"`
	Role        string   `json:"role,omitempty" yaml:"role,omitempty"`
	Personality string   `json:"personality,omitempty" yaml:"personality,omitempty"`
	Mood        string   `json:"mood,omitempty" yaml:"mood,omitempty"`
	Knowledge   []string `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
}

// DefaultPersona answers when a dialogue request names no NPC.
var DefaultPersona = Persona{
	Name:        "Mistress Vell",
	Role:        "the guild's quest giver",
	Personality: "brisk, dry humoured, secretly proud of her apprentices",
	Knowledge:   []string{"the alchemist guild", "local reagent markets", "open quests"},
}

// Line is one earlier utterance of a conversation.
type Line struct {
	Speaker string `json:"speaker" yaml:"speaker"`
	Text    string `json:"text" yaml:"text"`
}

type DialogueRequest struct {
	QuestID      string  `json:"questId,omitempty" yaml:"quest_id,omitempty"`
	Persona      Persona `json:"persona" yaml:"persona"`
	Message      string  `json:"message" yaml:"message"`
	History      []Line  `json:"history,omitempty" yaml:"history,omitempty"`
	MaxSentences int     `json:"max_sentences,omitempty" yaml:"max_sentences,omitempty"`
}

func (r DialogueRequest) Validate() error {
	message := strings.TrimSpace(r.Message)
	if message == "" {
		return &recipes.ValidationError{Field: "message", Message: "message is required"}
	}
	if len(message) > MaxMessageLength {
		return &recipes.ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("message must be at most %d characters", MaxMessageLength),
		}
	}
	if len(r.History) > MaxHistory {
		return &recipes.ValidationError{
			Field:   "history",
			Message: fmt.Sprintf("at most %d history lines are allowed", MaxHistory),
		}
	}
	for i, l := range r.History {
		if strings.TrimSpace(l.Speaker) == "" {
			return &recipes.ValidationError{Field: fmt.Sprintf("history[%d].speaker", i), Message: "speaker is required"}
		}
	}
	if r.MaxSentences < 0 {
		return &recipes.ValidationError{Field: "max_sentences", Message: "max_sentences must not be negative"}
	}
	return nil
}

func (r DialogueRequest) MarshalZerologObject(e *zerolog.Event) {
	e.Str("npc", r.Persona.Name)
	e.Str("quest", r.QuestID)
	e.Int("history", len(r.History))
}

// Scene is where a narration takes place.
type Scene struct {
	Location  string   `json:"location" yaml:"location"`
	TimeOfDay string   `json:"time_of_day,omitempty" yaml:"time_of_day,omitempty"`
	Weather   string   `json:"weather,omitempty" yaml:"weather,omitempty"`
	Present   []string `json:"present,omitempty" yaml:"present,omitempty"`
}

type NarrationRequest struct {
	Scene         Scene    `json:"scene" yaml:"scene"`
	Events        []string `json:"events,omitempty" yaml:"events,omitempty"`
	Tone          string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	MaxParagraphs int      `json:"max_paragraphs,omitempty" yaml:"max_paragraphs,omitempty"`
}

func (r NarrationRequest) Validate() error {
	if strings.TrimSpace(r.Scene.Location) == "" {
		return &recipes.ValidationError{Field: "scene.location", Message: "location is required"}
	}
	if len(r.Events) > MaxEvents {
		return &recipes.ValidationError{
			Field:   "events",
			Message: fmt.Sprintf("at most %d events are allowed", MaxEvents),
		}
	}
	if r.MaxParagraphs < 0 {
		return &recipes.ValidationError{Field: "max_paragraphs", Message: "max_paragraphs must not be negative"}
	}
	return nil
}

func (r NarrationRequest) MarshalZerologObject(e *zerolog.Event) {
	e.Str("location", r.Scene.Location)
	e.Int("events", len(r.Events))
}
