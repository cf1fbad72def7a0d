package domain

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Product is the value a catalog view hands to the cart. Every field is
// optional.
type Product struct {
	ID       ID
	Name     string
	Price    Price
	Carbon   string
	Image    string
	Category string
}

// LineItem is a product snapshot held in the cart or recorded in an order.
type LineItem struct {
	ID     ID
	Name   string
	Price  Price
	Qty    int
	Carbon string
	Image  string
}

// NewLineItem builds a cart entry for p with quantity 1.
func NewLineItem(p Product) LineItem {
	return LineItem{
		ID:     p.ID,
		Name:   p.Name,
		Price:  p.Price,
		Qty:    1,
		Carbon: p.Carbon,
		Image:  p.Image,
	}
}

// Quantity returns Qty, treating a non-positive value as 1.
func (li LineItem) Quantity() int {
	if li.Qty > 0 {
		return li.Qty
	}
	return 1
}

// Subtotal is the normalized unit price times the quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Amount().Mul(decimal.NewFromInt(int64(li.Quantity())))
}

// Matches reports whether adding p should merge into this entry: by ID when
// p carries one, otherwise by name.
func (li LineItem) Matches(p Product) bool {
	if !p.ID.IsZero() {
		return li.ID.Equal(p.ID)
	}
	return li.Name == p.Name
}

type lineItemJSON struct {
	ID     ID     `json:"id,omitzero"`
	Name   string `json:"name"`
	Price  Price  `json:"price,omitzero"`
	Qty    int    `json:"qty"`
	Carbon string `json:"carbon,omitempty"`
	Image  string `json:"image,omitempty"`
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{
		ID:     li.ID,
		Name:   li.Name,
		Price:  li.Price,
		Qty:    li.Quantity(),
		Carbon: li.Carbon,
		Image:  li.Image,
	})
}

// UnmarshalJSON decodes the stored shape and the aliases older clients and
// the recommendation service use. Fields of the wrong type fall back to their
// defaults rather than failing the document.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var w productWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p := w.product()
	*li = NewLineItem(p)
	li.Qty = parseQty(first(w.Qty, w.Quantity))
	return nil
}

type productJSON struct {
	ID       ID     `json:"id,omitzero"`
	Name     string `json:"name"`
	Price    Price  `json:"price,omitzero"`
	Carbon   string `json:"carbon,omitempty"`
	Image    string `json:"image,omitempty"`
	Category string `json:"category,omitempty"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(productJSON(p))
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var w productWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = w.product()
	return nil
}

// productWire is the permissive decoding shape shared by Product and LineItem.
type productWire struct {
	ID              json.RawMessage `json:"id"`
	ProductID       json.RawMessage `json:"product_id"`
	Name            json.RawMessage `json:"name"`
	Price           Price           `json:"price"`
	Qty             json.RawMessage `json:"qty"`
	Quantity        json.RawMessage `json:"quantity"`
	Carbon          json.RawMessage `json:"carbon"`
	CarbonFootprint json.RawMessage `json:"carbon_footprint"`
	Image           json.RawMessage `json:"image"`
	Img             json.RawMessage `json:"img"`
	ImagePath       json.RawMessage `json:"image_path"`
	Category        json.RawMessage `json:"category"`
}

func (w productWire) product() Product {
	return Product{
		ID:       parseID(first(w.ID, w.ProductID)),
		Name:     text(w.Name),
		Price:    w.Price,
		Carbon:   parseCarbon(first(w.Carbon, w.CarbonFootprint)),
		Image:    text(first(w.Image, w.Img, w.ImagePath)),
		Category: text(w.Category),
	}
}

// first returns the first present, non-null value.
func first(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if v = bytes.TrimSpace(v); len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			return v
		}
	}
	return nil
}

// text returns a JSON string's value, a number's literal, or "".
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// parseCarbon keeps a descriptive string as is and renders a bare number
// as "N kg CO₂e".
func parseCarbon(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return FormatCarbon(d)
		}
	}
	return ""
}

// parseQty returns a positive integer quantity, or 1.
func parseQty(raw json.RawMessage) int {
	q, err := strconv.Atoi(text(raw))
	if err != nil || q <= 0 {
		return 1
	}
	return q
}
