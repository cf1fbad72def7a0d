package domain

import "github.com/shopspring/decimal"

// CalculateTotal sums normalized unit price times quantity over items.
func CalculateTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ItemCount sums the quantities of items.
func ItemCount(items []LineItem) int {
	var n int
	for _, item := range items {
		n += item.Quantity()
	}
	return n
}

// CarbonTotal sums the per-unit carbon footprint times quantity, in kg.
func CarbonTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(CarbonKg(item.Carbon).Mul(decimal.NewFromInt(int64(item.Quantity()))))
	}
	return total
}

// CloneItems returns a copy of items. LineItem holds only values, so a
// shallow slice copy is a deep copy. A nil slice copies to an empty one.
func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
