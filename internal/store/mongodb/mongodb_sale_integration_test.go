package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	uri := os.Getenv("DRESSIFY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set DRESSIFY_TEST_MONGO_URI to run mongodb integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, uri, "dressify_test")
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
		_, _ = s.sales.DeleteMany(ctx, bson.M{"customerId": customerID})
		_, _ = s.movements.DeleteMany(ctx, bson.M{"productId": productID})
		_, _ = s.products.DeleteOne(ctx, bson.M{"_id": productID})
		_, _ = s.customers.DeleteOne(ctx, bson.M{"_id": customerID})
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
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	for _, b := range product.Sizes {
		if b.Size == "M" {
			return b.Quantity
		}
	}
	t.Fatalf("bucket M missing on %s", productID)
	return 0
}

func TestCreatePayDeleteSaleRoundTrip(t *testing.T) {
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

	movements, err := s.ListStockMovements(ctx, productID, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected intake, sale and restore movements, got %d", len(movements))
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
			if !errors.Is(err, store.ErrInsufficientStock) && !errors.Is(err, store.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded > 5 {
		t.Fatalf("expected at most 5 sales to succeed, got %d", succeeded)
	}
	if qty := bucketQty(t, s, ctx, productID); qty != 5-succeeded {
		t.Fatalf("expected bucket %d, got %d", 5-succeeded, qty)
	}
}

func TestListProductsSortsNamesIgnoringCase(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	stamp := time.Now().UnixNano()
	lower := fmt.Sprintf("prd-it-lower-%d", stamp)
	upper := fmt.Sprintf("prd-it-upper-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.products.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": []string{lower, upper}}})
		_, _ = s.movements.DeleteMany(ctx, bson.M{"productId": bson.M{"$in": []string{lower, upper}}})
	})

	now := time.Now().UTC()
	for id, name := range map[string]string{lower: "aaa case kurta", upper: "AAB Case Kurta"} {
		if _, err := s.CreateProduct(ctx, domain.Product{
			ID:        id,
			Name:      name,
			Sizes:     []domain.SizeBucket{{Size: "M", Quantity: 1}},
			CreatedAt: now,
		}); err != nil {
			t.Fatalf("create product %s: %v", id, err)
		}
	}

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	lowerAt, upperAt := -1, -1
	for i, p := range products {
		switch p.ID {
		case lower:
			lowerAt = i
		case upper:
			upperAt = i
		}
	}
	if lowerAt < 0 || upperAt < 0 || lowerAt > upperAt {
		t.Fatalf("expected %q before %q, got positions %d and %d", "aaa case kurta", "AAB Case Kurta", lowerAt, upperAt)
	}
}
