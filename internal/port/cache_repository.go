package port

import "context"

// Verdict is the outcome of an admission attempt.
type Verdict int

const (
	VerdictAdmitted Verdict = iota
	VerdictOutOfStock
	VerdictDuplicatePurchase
)

func (v Verdict) String() string {
	switch v {
	case VerdictAdmitted:
		return "admitted"
	case VerdictOutOfStock:
		return "out_of_stock"
	case VerdictDuplicatePurchase:
		return "duplicate_purchase"
	default:
		return "unknown"
	}
}

type CacheRepository interface {
	// Admit runs the stock check, stock decrement and duplicate-purchase
	// check as one atomic operation against the cache store.
	Admit(ctx context.Context, voucherID, userID int64) (Verdict, error)

	// PrimeVoucher seeds the cached stock counter and rebuilds the purchaser
	// set from the given user ids in a single shot. The purchaser list must
	// come from the database so the two sides cannot diverge at priming time.
	PrimeVoucher(ctx context.Context, voucherID int64, stock int, purchasers []int64) error

	// RestoreStock puts one unit back (compensation when a commit fails for
	// a reason other than a legitimate business rollback).
	RestoreStock(ctx context.Context, voucherID int64) error
}
