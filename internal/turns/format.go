package turns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformed is returned when stored history is neither format.
var ErrMalformed = errors.New("malformed message history")

// Format tags the shape of a stored history.
type Format int

const (
	// FormatEmpty is a missing, null or empty list.
	FormatEmpty Format = iota
	// FormatTurns is a list of {id, user?, assistant?} objects.
	FormatTurns
	// FormatLegacy is a flat list of {role, content, ...} messages.
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatEmpty:
		return "empty"
	case FormatTurns:
		return "turns"
	case FormatLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// DetectFormat classifies raw stored history by the shape of its first
// element. A role field on the first element marks the legacy format.
func DetectFormat(data []byte) (Format, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return FormatEmpty, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return FormatEmpty, ErrMalformed
	}

	parsed := gjson.ParseBytes(trimmed)
	if !parsed.IsArray() {
		return FormatEmpty, fmt.Errorf("%w: expected a JSON array", ErrMalformed)
	}

	first := parsed.Get("0")
	if !first.Exists() {
		return FormatEmpty, nil
	}
	if first.Get("role").Exists() {
		return FormatLegacy, nil
	}
	return FormatTurns, nil
}

// Decode parses stored history in either format into turns and reports which
// format it found.
func Decode(data []byte) (History, Format, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, format, err
	}

	switch format {
	case FormatEmpty:
		return History{}, format, nil
	case FormatTurns:
		var turns []Turn
		if err := json.Unmarshal(data, &turns); err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return History(turns), format, nil
	case FormatLegacy:
		var messages []Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return defaultNormalizer.FromLegacy(messages), format, nil
	default:
		return nil, format, ErrMalformed
	}
}
