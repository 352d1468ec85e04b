package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/hqtran/voucher-rush/internal/core/domain"
	"github.com/hqtran/voucher-rush/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/voucherrush?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	return db
}

func seedVoucher(t *testing.T, db *sql.DB, id int64, stock int) {
	t.Helper()
	ctx := context.Background()
	db.ExecContext(ctx, `DELETE FROM voucher_orders WHERE voucher_id = ?`, id)
	db.ExecContext(ctx, `DELETE FROM vouchers WHERE id = ?`, id)
	_, err := db.ExecContext(ctx, `
		INSERT INTO vouchers (id, shop_id, title, stock, begin_time, end_time, created_at, updated_at)
		VALUES (?, 1, 'test voucher', ?, NOW() - INTERVAL 1 HOUR, NOW() + INTERVAL 1 HOUR, NOW(), NOW())`,
		id, stock,
	)
	if err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
}

func TestCreateVoucherOrder_Success(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedVoucher(t, db, 9001, 5)

	task := domain.OrderTask{
		OrderID:     1,
		UserID:      100,
		VoucherID:   9001,
		SubmittedAt: time.Now(),
	}
	if err := adapter.CreateVoucherOrder(ctx, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	voucher, err := adapter.GetVoucherByID(ctx, 9001)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if voucher.Stock != 4 {
		t.Errorf("expected stock 4, got %d", voucher.Stock)
	}

	count, err := adapter.CountOrders(ctx, 100, 9001)
	if err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 order, got %d", count)
	}
}

func TestCreateVoucherOrder_Duplicate(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedVoucher(t, db, 9001, 5)

	first := domain.OrderTask{OrderID: 1, UserID: 100, VoucherID: 9001, SubmittedAt: time.Now()}
	if err := adapter.CreateVoucherOrder(ctx, first); err != nil {
		t.Fatalf("first order: %v", err)
	}

	second := domain.OrderTask{OrderID: 2, UserID: 100, VoucherID: 9001, SubmittedAt: time.Now()}
	err := adapter.CreateVoucherOrder(ctx, second)
	if !errors.Is(err, port.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	// the rolled-back attempt must not have touched stock
	voucher, _ := adapter.GetVoucherByID(ctx, 9001)
	if voucher.Stock != 4 {
		t.Errorf("expected stock 4, got %d", voucher.Stock)
	}
}

func TestCreateVoucherOrder_Understock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedVoucher(t, db, 9001, 0)

	task := domain.OrderTask{OrderID: 1, UserID: 100, VoucherID: 9001, SubmittedAt: time.Now()}
	err := adapter.CreateVoucherOrder(ctx, task)
	if !errors.Is(err, port.ErrUnderstock) {
		t.Fatalf("expected ErrUnderstock, got %v", err)
	}

	count, _ := adapter.CountOrders(ctx, 100, 9001)
	if count != 0 {
		t.Errorf("expected no orders after rollback, got %d", count)
	}
}

func TestGetVoucherByID_Absent(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	voucher, err := adapter.GetVoucherByID(context.Background(), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if voucher != nil {
		t.Errorf("expected nil for absent voucher, got %+v", voucher)
	}
}

func TestListVoucherBuyers(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedVoucher(t, db, 9001, 5)

	for i, userID := range []int64{201, 202} {
		task := domain.OrderTask{OrderID: int64(i + 1), UserID: userID, VoucherID: 9001, SubmittedAt: time.Now()}
		if err := adapter.CreateVoucherOrder(ctx, task); err != nil {
			t.Fatalf("order for user %d: %v", userID, err)
		}
	}

	buyers, err := adapter.ListVoucherBuyers(ctx, 9001)
	if err != nil {
		t.Fatalf("list buyers: %v", err)
	}
	if len(buyers) != 2 {
		t.Errorf("expected 2 buyers, got %v", buyers)
	}
}
