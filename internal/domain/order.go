package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// DateLayout is the human-readable order timestamp format.
const DateLayout = "2006-01-02 15:04:05"

// Order is an immutable record of a checkout.
type Order struct {
	ID       int64      `json:"id"`
	Date     string     `json:"date"`
	Items    []LineItem `json:"items"`
	Total    Amount     `json:"total"`
	CarbonKg Amount     `json:"carbon_kg"`
}

// NewOrder freezes a copy of items into an order created at at.
func NewOrder(id int64, at time.Time, items []LineItem) Order {
	items = CloneItems(items)
	return Order{
		ID:       id,
		Date:     at.Format(DateLayout),
		Items:    items,
		Total:    NewAmount(CalculateTotal(items)),
		CarbonKg: NewAmount(CarbonTotal(items)),
	}
}

// Clone returns a copy that shares no memory with o.
func (o Order) Clone() Order {
	o.Items = CloneItems(o.Items)
	return o
}

// NextOrderID returns a millisecond timestamp, bumped past last when the
// clock has not advanced.
func NextOrderID(now time.Time, last int64) int64 {
	id := now.UnixMilli()
	if id <= last {
		id = last + 1
	}
	return id
}

type orderWire struct {
	ID        json.RawMessage `json:"id"`
	Date      string          `json:"date"`
	Timestamp string          `json:"timestamp"`
	Items     []LineItem      `json:"items"`
	Total     json.RawMessage `json:"total"`
	CarbonKg  json.RawMessage `json:"carbon_kg"`
}

// UnmarshalJSON accepts a numeric or numeric-string id, "timestamp" in place
// of "date", and recomputes a missing or unreadable total or carbon figure
// from the items. An unreadable id decodes as 0 so one damaged record does
// not void the rest of a stored history.
func (o *Order) UnmarshalJSON(data []byte) error {
	var w orderWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*o = Order{
		ID:    parseOrderID(w.ID),
		Date:  w.Date,
		Items: CloneItems(w.Items),
	}
	if o.Date == "" {
		o.Date = w.Timestamp
	}
	o.Total = decodeAmount(w.Total, func() Amount { return NewAmount(CalculateTotal(o.Items)) })
	o.CarbonKg = decodeAmount(w.CarbonKg, func() Amount { return NewAmount(CarbonTotal(o.Items)) })
	return nil
}

func decodeAmount(raw json.RawMessage, fallback func() Amount) Amount {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback()
	}
	var a Amount
	if err := json.Unmarshal(raw, &a); err != nil {
		return fallback()
	}
	return a
}

func parseOrderID(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id
	}
	// Browsers wrote Date.now() which is integral, but accept a float literal.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
