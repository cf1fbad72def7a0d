package domain

import "github.com/shopspring/decimal"

// Amount is a decimal that encodes as a bare JSON number. It decodes from
// either a number or a quoted string.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}
