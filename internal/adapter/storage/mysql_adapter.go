package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hqtran/voucher-rush/internal/core/domain"
	"github.com/hqtran/voucher-rush/internal/port"
)

type MySQLAdapter struct {
	db *sql.DB
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// CreateVoucherOrder commits an admitted order. The duplicate check, the
// stock-guarded decrement and the insert share one transaction; the cache-side
// admission is only a fast path, the checks here are authoritative.
func (m *MySQLAdapter) CreateVoucherOrder(ctx context.Context, task domain.OrderTask) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voucher_orders
		WHERE user_id = ? AND voucher_id = ?`,
		task.UserID, task.VoucherID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("count existing orders: %w", err)
	}
	if count > 0 {
		return port.ErrDuplicateOrder
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE vouchers
		SET stock = stock - 1, updated_at = NOW()
		WHERE id = ? AND stock > 0`,
		task.VoucherID,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrUnderstock
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO voucher_orders (id, user_id, voucher_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		task.OrderID, task.UserID, task.VoucherID, domain.OrderStatusConfirmed, task.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) CountOrders(ctx context.Context, userID, voucherID int64) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voucher_orders
		WHERE user_id = ? AND voucher_id = ?`,
		userID, voucherID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (m *MySQLAdapter) GetVoucherByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	var v domain.Voucher
	err := m.db.QueryRowContext(ctx, `
		SELECT id, shop_id, title, stock, begin_time, end_time, created_at, updated_at
		FROM vouchers WHERE id = ?`, id,
	).Scan(&v.ID, &v.ShopID, &v.Title, &v.Stock, &v.BeginTime, &v.EndTime, &v.CreatedAt, &v.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query voucher: %w", err)
	}
	return &v, nil
}

func (m *MySQLAdapter) ListVoucherBuyers(ctx context.Context, voucherID int64) ([]int64, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT user_id FROM voucher_orders WHERE voucher_id = ?`, voucherID)
	if err != nil {
		return nil, fmt.Errorf("query voucher buyers: %w", err)
	}
	defer rows.Close()

	var buyers []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan buyer: %w", err)
		}
		buyers = append(buyers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buyers: %w", err)
	}
	return buyers, nil
}

func (m *MySQLAdapter) GetShopByID(ctx context.Context, id int64) (*domain.Shop, error) {
	var s domain.Shop
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, type_id, address, avg_price, sold, score, open_hours, created_at, updated_at
		FROM shops WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.TypeID, &s.Address, &s.AvgPrice, &s.Sold, &s.Score, &s.OpenHours, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}
	return &s, nil
}

func (m *MySQLAdapter) UpdateShop(ctx context.Context, shop domain.Shop) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE shops
		SET name = ?, type_id = ?, address = ?, avg_price = ?, open_hours = ?, updated_at = NOW()
		WHERE id = ?`,
		shop.Name, shop.TypeID, shop.Address, shop.AvgPrice, shop.OpenHours, shop.ID,
	)
	if err != nil {
		return fmt.Errorf("update shop: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, icon, sort FROM shop_types ORDER BY sort ASC`)
	if err != nil {
		return nil, fmt.Errorf("query shop types: %w", err)
	}
	defer rows.Close()

	var types []domain.ShopType
	for rows.Next() {
		var t domain.ShopType
		if err := rows.Scan(&t.ID, &t.Name, &t.Icon, &t.Sort); err != nil {
			return nil, fmt.Errorf("scan shop type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shop types: %w", err)
	}
	return types, nil
}
