package domain

import "time"

type Shop struct {
	ID        int64
	Name      string
	TypeID    int64
	Address   string
	AvgPrice  int
	Sold      int
	Score     int
	OpenHours string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShopType struct {
	ID   int64
	Name string
	Icon string
	Sort int
}
