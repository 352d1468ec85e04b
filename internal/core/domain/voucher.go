package domain

import "time"

type Voucher struct {
	ID        int64
	ShopID    int64
	Title     string
	Stock     int
	BeginTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the sale window is open at the given instant.
func (v Voucher) Active(now time.Time) bool {
	return !now.Before(v.BeginTime) && now.Before(v.EndTime)
}
