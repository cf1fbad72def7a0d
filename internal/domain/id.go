package domain

import (
	"bytes"
	"encoding/json"
)

// ID identifies a product. Catalog views send it as a string or a number; it
// encodes back in the form it arrived in. Identity is by text, so 7 and "7"
// name the same product.
type ID struct {
	value  string
	number bool
}

// StringID returns an ID received as a string.
func StringID(s string) ID {
	return ID{value: s}
}

// NumberID returns an ID received as a JSON number. n must be a valid number
// literal.
func NumberID(n string) ID {
	return ID{value: n, number: true}
}

func (id ID) IsZero() bool {
	return id.value == ""
}

func (id ID) String() string {
	return id.value
}

// Equal reports whether both IDs are present and have the same text.
func (id ID) Equal(other ID) bool {
	return id.value != "" && id.value == other.value
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.value == "":
		return []byte("null"), nil
	case id.number:
		return []byte(id.value), nil
	default:
		return json.Marshal(id.value)
	}
}

// UnmarshalJSON accepts a string or a number; anything else is an absent ID.
func (id *ID) UnmarshalJSON(data []byte) error {
	*id = parseID(data)
	return nil
}

func parseID(data json.RawMessage) ID {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ID{}
	}
	if data[0] == '"' {
		var s string
		if json.Unmarshal(data, &s) == nil {
			return StringID(s)
		}
		return ID{}
	}
	var n json.Number
	if json.Unmarshal(data, &n) == nil && n != "" {
		return NumberID(n.String())
	}
	return ID{}
}
