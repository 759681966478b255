// Package turns folds chat messages into user/assistant turns.
//
// A conversation node stores its history as a list of turns. Each turn holds
// at most one user entry and at most one assistant entry. Older nodes stored a
// flat list of role-tagged messages instead; those are recognised on decode
// and converted.
package turns

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role can be placed in a turn.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Entry is one side of a turn.
type Entry struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn pairs a user entry with the assistant entry that answered it.
type Turn struct {
	ID        string `json:"id"`
	User      *Entry `json:"user,omitempty"`
	Assistant *Entry `json:"assistant,omitempty"`
}

// Complete reports whether both slots are filled.
func (t Turn) Complete() bool {
	return t.User != nil && t.Assistant != nil
}

// awaitingReply reports whether an assistant entry can still attach.
func (t Turn) awaitingReply() bool {
	return t.User != nil && t.Assistant == nil
}

// Message is a single incoming or legacy message.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// History is the ordered turn list of a conversation node. It decodes both
// the turn format and the legacy flat-message format, and always encodes as
// turns.
type History []Turn

// UnmarshalJSON implements json.Unmarshaler.
func (h *History) UnmarshalJSON(data []byte) error {
	history, _, err := Decode(data)
	if err != nil {
		return err
	}
	*h = history
	return nil
}

// MarshalJSON implements json.Marshaler. A nil history encodes as [].
func (h History) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Turn(h))
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
