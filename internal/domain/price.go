package domain

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a unit price as it arrived from a catalog view: either a plain JSON
// number (350, 12.5) or a formatted currency string ("₹1,250"). It encodes back
// exactly as received. The zero Price is an absent price.
type Price struct {
	raw     string
	numeric bool
}

// TextPrice returns a price received as a formatted string.
func TextPrice(s string) Price {
	return Price{raw: s}
}

// NumberPrice returns a numeric price.
func NumberPrice(d decimal.Decimal) Price {
	return Price{raw: d.String(), numeric: true}
}

// IsZero reports whether the price is absent.
func (p Price) IsZero() bool {
	return p.raw == ""
}

// IsNumeric reports whether the price was received as a JSON number.
func (p Price) IsNumeric() bool {
	return p.numeric
}

// String returns the price as received.
func (p Price) String() string {
	return p.raw
}

// Amount returns the normalized numeric amount. Absent or unparsable prices
// are zero.
func (p Price) Amount() decimal.Decimal {
	switch {
	case p.raw == "":
		return decimal.Zero
	case p.numeric:
		d, err := decimal.NewFromString(p.raw)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return NormalizePrice(p.raw)
	}
}

// NormalizePrice strips everything except digits and the decimal point and
// parses the rest, so "₹1,250" is 1250 and "Rs. 350" is 350. Dots before the
// first digit are ignored and parsing stops at a second dot. Text with no
// digits normalizes to zero.
func NormalizePrice(s string) decimal.Decimal {
	var b strings.Builder
	seenDigit, seenDot := false, false

scan:
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.' && seenDigit:
			if seenDot {
				break scan
			}
			seenDot = true
			b.WriteRune(r)
		}
	}

	digits := strings.TrimSuffix(b.String(), ".")
	if digits == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (p Price) MarshalJSON() ([]byte, error) {
	switch {
	case p.raw == "":
		return []byte("null"), nil
	case p.numeric:
		return []byte(p.raw), nil
	default:
		return json.Marshal(p.raw)
	}
}

// UnmarshalJSON accepts a string or a number. Any other JSON value leaves the
// price absent instead of failing the surrounding document.
func (p *Price) UnmarshalJSON(data []byte) error {
	*p = Price{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			p.raw = s
		}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil && n != "" {
		p.raw, p.numeric = n.String(), true
	}
	return nil
}
