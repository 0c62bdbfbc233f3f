package order

import (
	"strings"
	"time"
)

// Status is the payment status of an order. Values are assigned by the
// payment gateway; the well-known ones are listed below but any non-empty
// value is accepted.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusRefunded Status = "refunded"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Order is a purchase record created by the checkout flow. Only its status
// is changed here.
type Order struct {
	ID         string
	ResourceID string
	OwnerID    string
	Status     Status
	CreatedAt  time.Time
}

// HasStatus reports whether the order is already in the given status.
func (o *Order) HasStatus(s Status) bool {
	return o.Status == s
}

// StatusUpdate is the payload carried by both the webhook and the queue.
// encoding/json matches field names case-insensitively, so "orderId" and
// "OrderId" decode alike.
type StatusUpdate struct {
	OrderID string `json:"OrderId" binding:"required"`
	Status  string `json:"Status" binding:"required"`
}

// Normalize trims surrounding whitespace from both fields.
func (u StatusUpdate) Normalize() StatusUpdate {
	return StatusUpdate{
		OrderID: strings.TrimSpace(u.OrderID),
		Status:  strings.TrimSpace(u.Status),
	}
}

// Validate checks the required fields.
func (u StatusUpdate) Validate() error {
	if strings.TrimSpace(u.OrderID) == "" {
		return ErrMissingOrderID
	}
	if strings.TrimSpace(u.Status) == "" {
		return ErrMissingStatus
	}
	return nil
}
