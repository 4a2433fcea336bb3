package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	databaseURL := os.Getenv("DRESSIFY_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DRESSIFY_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s, ctx
}

func seedKurta(t *testing.T, s *Store, ctx context.Context, qty int) (string, string) {
	t.Helper()
	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)
	customerID := fmt.Sprintf("cus-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	})

	now := time.Now().UTC()
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:                productID,
		Name:              "Integration Kurta",
		CostCents:         50000,
		PriceCents:        80000,
		LowStockThreshold: 10,
		Sizes:             []domain.SizeBucket{{Size: "M", Quantity: qty}},
		CreatedAt:         now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateCustomer(ctx, domain.Customer{
		ID:           customerID,
		Name:         "Integration Customer",
		CustomerType: domain.CustomerWalkIn,
		Active:       true,
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return productID, customerID
}

func bucketQty(t *testing.T, s *Store, ctx context.Context, productID string) int {
	t.Helper()
	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM product_sizes WHERE product_id = $1 AND size = 'M'
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query bucket: %v", err)
	}
	return qty
}

func TestCreateAndDeleteSaleRestoresBucket(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	productID, customerID := seedKurta(t, s, ctx, 10)

	sale, err := s.CreateSale(ctx, domain.SaleDraft{
		ID:         fmt.Sprintf("sale-it-%d", time.Now().UnixNano()),
		CustomerID: customerID,
		Items:      []domain.SaleLineRequest{{ProductID: productID, Size: "M", Quantity: 3, UnitPriceCents: 80000}},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalAmountCents != 240000 || sale.PaymentStatus != domain.PaymentUnpaid {
		t.Fatalf("unexpected sale totals: %+v", sale)
	}
	if qty := bucketQty(t, s, ctx, productID); qty != 7 {
		t.Fatalf("expected bucket 7 after sale, got %d", qty)
	}

	paid, err := s.AddPayment(ctx, sale.ID, domain.Payment{AmountCents: 240000, PaymentDate: time.Now().UTC(), PaymentMethod: domain.PaymentMethodCash})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if paid.PaymentStatus != domain.PaymentPaid || len(paid.Payments) != 1 {
		t.Fatalf("expected paid sale with one payment, got %+v", paid)
	}

	if _, err := s.DeleteSale(ctx, sale.ID, time.Now().UTC()); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if qty := bucketQty(t, s, ctx, productID); qty != 10 {
		t.Fatalf("expected bucket 10 after delete, got %d", qty)
	}
	if _, err := s.GetSale(ctx, sale.ID); !errors.Is(err, store.ErrSaleNotFound) {
		t.Fatalf("expected sale to be gone, got %v", err)
	}
}

func TestConcurrentSalesDoNotOversell(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	productID, customerID := seedKurta(t, s, ctx, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateSale(ctx, domain.SaleDraft{
				ID:         fmt.Sprintf("sale-it-%d-%d", time.Now().UnixNano(), i),
				CustomerID: customerID,
				Items:      []domain.SaleLineRequest{{ProductID: productID, Size: "M", Quantity: 1, UnitPriceCents: 80000}},
				CreatedAt:  time.Now().UTC(),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected 5 sales to succeed, got %d", succeeded)
	}
	if qty := bucketQty(t, s, ctx, productID); qty != 0 {
		t.Fatalf("expected empty bucket, got %d", qty)
	}
}
