package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderTask is an admitted purchase waiting for its database commit. It is
// owned by the order queue from enqueue until the consumer finishes with it.
type OrderTask struct {
	OrderID     int64
	UserID      int64
	VoucherID   int64
	SubmittedAt time.Time
}
