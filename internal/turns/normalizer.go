package turns

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Normalizer converts messages into turns. The zero value is not usable; use
// NewNormalizer.
type Normalizer struct {
	newID func() string
	now   func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithIDFunc overrides id generation for messages that arrive without one.
func WithIDFunc(fn func() string) Option {
	return func(n *Normalizer) { n.newID = fn }
}

// WithClock overrides the timestamp source for messages without one.
func WithClock(fn func() time.Time) Option {
	return func(n *Normalizer) { n.now = fn }
}

// NewNormalizer creates a normalizer that generates UUIDv7 ids and stamps
// with the wall clock.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		newID: newID,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = NewNormalizer()

// FromLegacy pairs a flat message list into turns. A user message directly
// followed by an assistant message becomes one turn; anything unmatched
// becomes a partial turn. Messages with other roles are dropped. Missing
// timestamps stay zero since their original time is unknown. Missing ids are
// derived from the message and its position, so decoding the same stored list
// twice yields the same turn ids.
func (n *Normalizer) FromLegacy(messages []Message) History {
	history := make(History, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		switch msg.Role {
		case RoleUser:
			turn := Turn{
				ID:   legacyID(i, msg),
				User: legacyEntry(msg),
			}
			if i+1 < len(messages) && messages[i+1].Role == RoleAssistant {
				turn.Assistant = legacyEntry(messages[i+1])
				i++
			}
			history = append(history, turn)
		case RoleAssistant:
			history = append(history, Turn{
				ID:        legacyID(i, msg),
				Assistant: legacyEntry(msg),
			})
		}
	}

	return history
}

// Append returns a new history with msg folded in. The input is never
// modified, so a caller can discard the result if persisting it fails.
//
// A user message always opens a new turn. An assistant message fills the most
// recent turn still waiting for a reply, or opens an assistant-only turn when
// none is waiting. Messages with any other role leave the history unchanged.
func (n *Normalizer) Append(history History, msg Message) History {
	out := make(History, len(history), len(history)+1)
	copy(out, history)

	switch msg.Role {
	case RoleUser:
		out = append(out, Turn{
			ID:   n.idFor(msg),
			User: n.entry(msg),
		})
	case RoleAssistant:
		for i := len(out) - 1; i >= 0; i-- {
			if out[i].awaitingReply() {
				out[i].Assistant = n.entry(msg)
				return out
			}
		}
		out = append(out, Turn{
			ID:        n.idFor(msg),
			Assistant: n.entry(msg),
		})
	}

	return out
}

func (n *Normalizer) idFor(msg Message) string {
	if msg.ID != "" {
		return msg.ID
	}
	return n.newID()
}

func (n *Normalizer) entry(msg Message) *Entry {
	ts := n.now()
	if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
		ts = *msg.Timestamp
	}
	return &Entry{Content: msg.Content, Timestamp: ts}
}

// legacyNamespace scopes name-based ids for converted legacy messages.
var legacyNamespace = uuid.MustParse("5b0c7f3e-2f44-4c55-9a51-0e6f5d7c1a90")

func legacyID(index int, msg Message) string {
	if msg.ID != "" {
		return msg.ID
	}
	name := strconv.Itoa(index) + "\x00" + string(msg.Role) + "\x00" + msg.Content
	return uuid.NewSHA1(legacyNamespace, []byte(name)).String()
}

func legacyEntry(msg Message) *Entry {
	e := &Entry{Content: msg.Content}
	if msg.Timestamp != nil {
		e.Timestamp = *msg.Timestamp
	}
	return e
}

// Append folds msg into history using the default normalizer.
func Append(history History, msg Message) History {
	return defaultNormalizer.Append(history, msg)
}
