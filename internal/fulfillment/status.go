// Package fulfillment tracks placed orders through shipping on the seller
// side.
package fulfillment

import (
	"encoding/json"
	"strings"
)

// Status is the fulfillment stage of a seller order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

var statuses = []Status{StatusPending, StatusShipped, StatusDelivered, StatusCancelled}

// ParseStatus matches s against the known statuses ignoring case, so
// "SHIPPED" and "shipped" both name StatusShipped.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further change is allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanBecome reports whether an order in s may move to next. Open orders move
// forward to any later stage; nothing moves back to Pending.
func (s Status) CanBecome(next Status) bool {
	if s.Terminal() || next == StatusPending {
		return false
	}
	return next != s
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if st, ok := ParseStatus(raw); ok {
		*s = st
		return nil
	}
	*s = StatusPending
	return nil
}
