package scoring

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RawAnswer is a submitted value as it arrived on the wire. Strings, numbers
// and booleans are kept as text; null or an absent entry is an empty answer.
type RawAnswer struct {
	value   string
	present bool
}

// Answer wraps a plain string answer.
func Answer(value string) RawAnswer {
	return RawAnswer{value: value, present: true}
}

// Answers wraps a list of plain string answers.
func Answers(values ...string) []RawAnswer {
	out := make([]RawAnswer, 0, len(values))
	for _, v := range values {
		out = append(out, Answer(v))
	}
	return out
}

// String returns the textual form of the answer, empty when absent.
func (a RawAnswer) String() string {
	return a.value
}

// Present reports whether a non-null value was submitted.
func (a RawAnswer) Present() bool {
	return a.present
}

// UnmarshalJSON accepts any JSON scalar. Objects and arrays are kept as their
// compact JSON text, which never matches an option.
func (a *RawAnswer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = RawAnswer{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = Answer(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*a = Answer(strconv.FormatBool(b))
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return err
		}
		*a = Answer(buf.String())
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*a = Answer(n.String())
	}
	return nil
}

// MarshalJSON renders the answer as a string, or null when absent.
func (a RawAnswer) MarshalJSON() ([]byte, error) {
	if !a.present {
		return []byte("null"), nil
	}
	return json.Marshal(a.value)
}
