package port

import (
	"context"
	"errors"

	"github.com/hqtran/voucher-rush/internal/core/domain"
)

var (
	// ErrDuplicateOrder reports that the user already holds an order for the
	// voucher (database-side re-validation).
	ErrDuplicateOrder = errors.New("duplicate voucher order")

	// ErrUnderstock reports that the conditional decrement affected no rows,
	// i.e. the durable stock hit zero before the commit.
	ErrUnderstock = errors.New("voucher understock")
)

type DatabaseRepository interface {
	// CreateVoucherOrder re-validates and commits an admitted order inside a
	// single transaction: duplicate-order check, stock decrement guarded by
	// stock > 0, order row insert. Business rollbacks are reported through
	// the adapter's sentinel errors.
	CreateVoucherOrder(ctx context.Context, task domain.OrderTask) error

	// CountOrders returns the number of existing orders for a user/voucher
	// pair (duplicate check outside the commit transaction).
	CountOrders(ctx context.Context, userID, voucherID int64) (int, error)

	// GetVoucherByID retrieves a voucher by primary key; (nil, nil) if absent.
	GetVoucherByID(ctx context.Context, id int64) (*domain.Voucher, error)

	// ListVoucherBuyers returns the user ids that already hold an order for
	// the voucher, used to seed the cached purchaser set.
	ListVoucherBuyers(ctx context.Context, voucherID int64) ([]int64, error)

	// GetShopByID retrieves a shop by primary key; (nil, nil) if absent.
	GetShopByID(ctx context.Context, id int64) (*domain.Shop, error)

	// UpdateShop persists shop changes.
	UpdateShop(ctx context.Context, shop domain.Shop) error

	// ListShopTypes returns all shop categories ordered by sort weight.
	ListShopTypes(ctx context.Context) ([]domain.ShopType, error)
}
