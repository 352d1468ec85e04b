package port

import "context"

// IDGenerator produces globally unique, time-ordered 64-bit identifiers.
// IDs sharing a business tag are non-decreasing in call order.
type IDGenerator interface {
	NextID(ctx context.Context, businessTag string) (int64, error)
}
