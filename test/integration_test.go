//go:build integration

package test

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmatech-uz/pharmacy-core/internal/cart"
	"github.com/pharmatech-uz/pharmacy-core/internal/catalog"
	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/notify"
	"github.com/pharmatech-uz/pharmacy-core/internal/orders"
	"github.com/pharmatech-uz/pharmacy-core/internal/payments"
	"github.com/pharmatech-uz/pharmacy-core/internal/prescriptions"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedProduct(t *testing.T, db *sql.DB, name, price string, stock int, requiresPrescription bool) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO products (id, name, price, stock, requires_prescription, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
	`, id, name, price, stock, requiresPrescription)
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return id
}

func productStock(t *testing.T, db *sql.DB, productID string) int {
	t.Helper()
	var stock int
	if err := db.QueryRow(`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	return stock
}

func orderStatus(t *testing.T, db *sql.DB, orderID string) domain.OrderStatus {
	t.Helper()
	var status domain.OrderStatus
	if err := db.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status); err != nil {
		t.Fatalf("failed to read order status: %v", err)
	}
	return status
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Paracetamol 500mg", "10000.00", 100, false)

	cartRepo := cart.NewCartRepository(db)
	if err := cartRepo.AddItem(ctx, "customer-1", productID, 2); err != nil {
		t.Fatalf("failed to add cart item: %v", err)
	}

	svc := orders.NewService(db, catalog.NewStockLedger(), notify.Nop{}, testLogger())

	order, err := svc.Checkout(ctx, "customer-1", "Tashkent, Chilonzor 5")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if order.Status != domain.OrderStatusAwaitingPayment {
		t.Errorf("status = %s, want %s", order.Status, domain.OrderStatusAwaitingPayment)
	}
	if !order.TotalPrice.Equal(decimal.RequireFromString("20000.00")) {
		t.Errorf("total_price = %s, want 20000.00", order.TotalPrice)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected order items: %+v", order.Items)
	}
	if !order.Items[0].Price.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("frozen item price = %s, want 10000.00", order.Items[0].Price)
	}

	if got := productStock(t, db, productID); got != 98 {
		t.Errorf("stock after checkout = %d, want 98", got)
	}

	c, err := cartRepo.GetByUser(ctx, "customer-1")
	if err != nil {
		t.Fatalf("failed to read cart: %v", err)
	}
	if len(c.Items) != 0 {
		t.Errorf("cart should be empty after checkout, has %d items", len(c.Items))
	}

	// Checkout with an empty cart must fail cleanly.
	if _, err := svc.Checkout(ctx, "customer-1", "Tashkent"); !errors.Is(err, domain.ErrCartEmpty) {
		t.Errorf("second checkout error = %v, want ErrCartEmpty", err)
	}
}

func TestCheckoutInsufficientStock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Ibuprofen 400mg", "8000.00", 5, false)

	cartRepo := cart.NewCartRepository(db)
	svc := orders.NewService(db, catalog.NewStockLedger(), notify.Nop{}, testLogger())

	if err := cartRepo.AddItem(ctx, "customer-a", productID, 4); err != nil {
		t.Fatalf("failed to fill first cart: %v", err)
	}
	if err := cartRepo.AddItem(ctx, "customer-b", productID, 4); err != nil {
		t.Fatalf("failed to fill second cart: %v", err)
	}

	if _, err := svc.Checkout(ctx, "customer-a", "Addr A"); err != nil {
		t.Fatalf("first checkout should succeed: %v", err)
	}

	_, err = svc.Checkout(ctx, "customer-b", "Addr B")
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("second checkout error = %v, want ErrInsufficientStock", err)
	}

	// The failed checkout must leave no partial writes behind.
	if got := productStock(t, db, productID); got != 1 {
		t.Errorf("stock = %d, want 1", got)
	}
	var orderCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM orders WHERE user_id = 'customer-b'`).Scan(&orderCount); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if orderCount != 0 {
		t.Errorf("failed checkout left %d orders behind", orderCount)
	}
}

func TestConcurrentStockDecrease(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Aspirin", "5000.00", 5, false)
	ledger := catalog.NewStockLedger()

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.Decrease(ctx, db, productID, 1)
		}()
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			failed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 5 || failed != 5 {
		t.Errorf("succeeded = %d, failed = %d, want 5/5", succeeded, failed)
	}
	if got := productStock(t, db, productID); got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Vitamin C", "3000.00", 50, false)

	cartRepo := cart.NewCartRepository(db)
	svc := orders.NewService(db, catalog.NewStockLedger(), notify.Nop{}, testLogger())

	if err := cartRepo.AddItem(ctx, "customer-1", productID, 3); err != nil {
		t.Fatalf("failed to add cart item: %v", err)
	}
	order, err := svc.Checkout(ctx, "customer-1", "Addr")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if got := productStock(t, db, productID); got != 47 {
		t.Fatalf("stock after checkout = %d, want 47", got)
	}

	actor := orders.Actor{UserID: "customer-1", Role: domain.RoleCustomer}
	cancelled, err := svc.Cancel(ctx, order.ID, actor)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if got := productStock(t, db, productID); got != 50 {
		t.Errorf("stock after cancel = %d, want 50", got)
	}

	// A cancelled order is terminal.
	if _, err := svc.Cancel(ctx, order.ID, actor); err == nil {
		t.Error("expected error cancelling an already-cancelled order")
	}
}

func clickSign(req payments.ClickRequest, serviceID, secret string) string {
	data := req.ClickTransID + serviceID + secret + req.MerchantTransID + req.Amount + req.Action + req.SignTime
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestClickPaymentFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Amoxicillin", "10000.00", 100, false)

	cartRepo := cart.NewCartRepository(db)
	orderSvc := orders.NewService(db, catalog.NewStockLedger(), notify.Nop{}, testLogger())
	paymentSvc := payments.NewService(db, notify.Nop{}, testLogger())
	paymentRepo := payments.NewPaymentRepository(db)

	clickCfg := payments.ClickConfig{ServiceID: "5005", SecretKey: "click-secret"}
	adapter := payments.NewClickAdapter(clickCfg, paymentSvc, paymentRepo, testLogger())

	if err := cartRepo.AddItem(ctx, "customer-1", productID, 2); err != nil {
		t.Fatalf("failed to add cart item: %v", err)
	}
	order, err := orderSvc.Checkout(ctx, "customer-1", "Addr")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	payment, err := paymentSvc.Create(ctx, order.ID, domain.ProviderClick, "customer-1")
	if err != nil {
		t.Fatalf("failed to create payment: %v", err)
	}

	req := payments.ClickRequest{
		ClickTransID:    "990011",
		ServiceID:       clickCfg.ServiceID,
		MerchantTransID: payment.PaymentID,
		Amount:          "20000",
		Action:          "0",
		SignTime:        "2026-01-15 10:30:00",
	}
	req.SignString = clickSign(req, clickCfg.ServiceID, clickCfg.SecretKey)

	resp := adapter.HandlePrepare(ctx, req)
	if resp.Error != 0 {
		t.Fatalf("prepare error = %d (%s), want 0", resp.Error, resp.ErrorNote)
	}

	// Tampered signature is rejected before any lookup.
	bad := req
	bad.SignString = "0000"
	if resp := adapter.HandlePrepare(ctx, bad); resp.Error != -1 {
		t.Errorf("bad signature prepare error = %d, want -1", resp.Error)
	}

	completeReq := req
	completeReq.Action = "1"
	completeReq.ClickPaydocID = "paydoc-42"
	completeReq.SignString = clickSign(completeReq, clickCfg.ServiceID, clickCfg.SecretKey)

	resp = adapter.HandleComplete(ctx, completeReq)
	if resp.Error != 0 {
		t.Fatalf("complete error = %d (%s), want 0", resp.Error, resp.ErrorNote)
	}

	settled, err := paymentRepo.GetByPaymentID(ctx, payment.PaymentID)
	if err != nil {
		t.Fatalf("failed to reload payment: %v", err)
	}
	if settled.Status != domain.PaymentStatusSuccess {
		t.Errorf("payment status = %s, want success", settled.Status)
	}
	if settled.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if got := orderStatus(t, db, order.ID); got != domain.OrderStatusPaid {
		t.Errorf("order status = %s, want paid", got)
	}

	// Click redelivers completes; the replay must stay a success and
	// change nothing.
	resp = adapter.HandleComplete(ctx, completeReq)
	if resp.Error != 0 {
		t.Errorf("replayed complete error = %d, want 0", resp.Error)
	}
	replayed, _ := paymentRepo.GetByPaymentID(ctx, payment.PaymentID)
	if !replayed.CompletedAt.Equal(*settled.CompletedAt) {
		t.Error("replayed complete must not move completed_at")
	}

	logs, err := paymentRepo.Logs(ctx, payment.PaymentID)
	if err != nil {
		t.Fatalf("failed to read payment logs: %v", err)
	}
	if len(logs) < 3 {
		t.Errorf("expected created/prepare/complete log entries, got %d", len(logs))
	}
}

func TestPaymePaymentFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Insulin", "150000.00", 30, false)

	cartRepo := cart.NewCartRepository(db)
	orderSvc := orders.NewService(db, catalog.NewStockLedger(), notify.Nop{}, testLogger())
	paymentSvc := payments.NewService(db, notify.Nop{}, testLogger())
	paymentRepo := payments.NewPaymentRepository(db)
	adapter := payments.NewPaymeAdapter(payments.PaymeConfig{SecretKey: "payme-secret"}, paymentSvc, paymentRepo, testLogger())

	if err := cartRepo.AddItem(ctx, "customer-1", productID, 1); err != nil {
		t.Fatalf("failed to add cart item: %v", err)
	}
	order, err := orderSvc.Checkout(ctx, "customer-1", "Addr")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	newReq := func(method string, amount int64, txID string) payments.PaymeRequest {
		req := payments.PaymeRequest{ID: json.RawMessage(`1`), Method: method}
		req.Params.ID = txID
		req.Params.Amount = amount
		req.Params.Time = time.Now().UnixMilli()
		req.Params.Account.OrderID = order.ID
		return req
	}

	const tiyin = 15000000 // 150000.00 sum

	resp := adapter.Handle(ctx, newReq("CheckPerformTransaction", tiyin, ""))
	if resp.Error != nil {
		t.Fatalf("CheckPerformTransaction error: %+v", resp.Error)
	}

	if resp := adapter.Handle(ctx, newReq("CheckPerformTransaction", tiyin+1, "")); resp.Error == nil {
		t.Error("expected amount mismatch error")
	}

	txID := "payme-tx-001"
	resp = adapter.Handle(ctx, newReq("CreateTransaction", tiyin, txID))
	if resp.Error != nil {
		t.Fatalf("CreateTransaction error: %+v", resp.Error)
	}
	created := resp.Result.(map[string]any)
	if created["state"] != 1 {
		t.Errorf("create state = %v, want 1", created["state"])
	}

	// A retried CreateTransaction with the same id must not open a second
	// payment.
	resp = adapter.Handle(ctx, newReq("CreateTransaction", tiyin, txID))
	if resp.Error != nil {
		t.Fatalf("replayed CreateTransaction error: %+v", resp.Error)
	}
	replayed := resp.Result.(map[string]any)
	if replayed["transaction"] != created["transaction"] {
		t.Error("replayed create returned a different transaction")
	}
	var paymentCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM payments WHERE order_id = $1`, order.ID).Scan(&paymentCount); err != nil {
		t.Fatalf("failed to count payments: %v", err)
	}
	if paymentCount != 1 {
		t.Errorf("payment count = %d, want 1", paymentCount)
	}

	resp = adapter.Handle(ctx, newReq("PerformTransaction", tiyin, txID))
	if resp.Error != nil {
		t.Fatalf("PerformTransaction error: %+v", resp.Error)
	}
	performed := resp.Result.(map[string]any)
	if performed["state"] != 2 {
		t.Errorf("perform state = %v, want 2", performed["state"])
	}

	if got := orderStatus(t, db, order.ID); got != domain.OrderStatusPaid {
		t.Errorf("order status = %s, want paid", got)
	}

	resp = adapter.Handle(ctx, newReq("CheckTransaction", tiyin, txID))
	if resp.Error != nil {
		t.Fatalf("CheckTransaction error: %+v", resp.Error)
	}
	checked := resp.Result.(map[string]any)
	if checked["state"] != 2 {
		t.Errorf("check state = %v, want 2", checked["state"])
	}

	// A settled transaction cannot be cancelled.
	resp = adapter.Handle(ctx, newReq("CancelTransaction", tiyin, txID))
	if resp.Error == nil || resp.Error.Code != -31007 {
		t.Errorf("cancel after perform = %+v, want code -31007", resp.Error)
	}
}

func TestPrescriptionFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	productID := seedProduct(t, db, "Tramadol", "25000.00", 20, true)

	cartRepo := cart.NewCartRepository(db)
	orderSvc := orders.NewService(db, catalog.NewStockLedger(), notify.Nop{}, testLogger())
	prescriptionRepo := prescriptions.NewPrescriptionRepository(db)
	prescriptionSvc := prescriptions.NewService(db, prescriptionRepo, notify.Nop{}, testLogger())

	if err := cartRepo.AddItem(ctx, "customer-1", productID, 1); err != nil {
		t.Fatalf("failed to add cart item: %v", err)
	}
	order, err := orderSvc.Checkout(ctx, "customer-1", "Addr")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order.Status != domain.OrderStatusAwaitingPrescription {
		t.Fatalf("order status = %s, want awaiting_prescription", order.Status)
	}

	customer := prescriptions.Actor{UserID: "customer-1", Role: domain.RoleCustomer}
	operator := prescriptions.Actor{UserID: "operator-1", Role: domain.RoleOperator}

	p, err := prescriptionSvc.Create(ctx, customer, &order.ID, []string{
		"https://cdn.example.com/rx/1.jpg",
		"https://cdn.example.com/rx/2.jpg",
	})
	if err != nil {
		t.Fatalf("failed to create prescription: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := prescriptionSvc.AddImage(ctx, customer, p.ID, "https://cdn.example.com/rx/extra.jpg"); err != nil {
			t.Fatalf("failed to add image %d: %v", i, err)
		}
	}
	if _, err := prescriptionSvc.AddImage(ctx, customer, p.ID, "https://cdn.example.com/rx/overflow.jpg"); !errors.Is(err, domain.ErrImageLimit) {
		t.Errorf("sixth image error = %v, want ErrImageLimit", err)
	}

	if err := prescriptionSvc.Reject(ctx, operator, p.ID, ""); !errors.Is(err, domain.ErrMissingReason) {
		t.Errorf("reject without reason error = %v, want ErrMissingReason", err)
	}
	if err := prescriptionSvc.Approve(ctx, customer, p.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("customer approve error = %v, want ErrForbidden", err)
	}

	if err := prescriptionSvc.Approve(ctx, operator, p.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if got := orderStatus(t, db, order.ID); got != domain.OrderStatusAwaitingPayment {
		t.Errorf("order status after approval = %s, want awaiting_payment", got)
	}

	// Re-reviewing a settled prescription is refused.
	if err := prescriptionSvc.Approve(ctx, operator, p.ID); !errors.Is(err, domain.ErrNotPending) {
		t.Errorf("second approve error = %v, want ErrNotPending", err)
	}

	reviewed, err := prescriptionRepo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to reload prescription: %v", err)
	}
	if reviewed.Status != domain.PrescriptionStatusApproved {
		t.Errorf("prescription status = %s, want approved", reviewed.Status)
	}
	if len(reviewed.Images) != 5 {
		t.Errorf("image count = %d, want 5", len(reviewed.Images))
	}
}
