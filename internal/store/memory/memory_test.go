package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/store"
)

func newStoreWithKurta(t *testing.T, qty int) *Store {
	t.Helper()
	s := New()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ID:         "prd-a",
		Name:       "Lawn Kurta",
		CostCents:  50000,
		PriceCents: 80000,
		Sizes:      []domain.SizeBucket{{Size: "M", Quantity: qty}, {Size: "L", Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = s.CreateCustomer(context.Background(), domain.Customer{ID: "cus-1", Name: "Ayesha"})
	require.NoError(t, err)
	return s
}

func saleDraft(id string, qty int) domain.SaleDraft {
	return domain.SaleDraft{
		ID:         id,
		CustomerID: "cus-1",
		Items:      []domain.SaleLineRequest{{ProductID: "prd-a", Size: "M", Quantity: qty, UnitPriceCents: 80000}},
		CreatedAt:  time.Now().UTC(),
	}
}

func bucket(t *testing.T, s *Store, size string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), "prd-a")
	require.NoError(t, err)
	for _, b := range p.Sizes {
		if b.Size == size {
			return b.Quantity
		}
	}
	t.Fatalf("size %s missing", size)
	return 0
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := newStoreWithKurta(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateSale(context.Background(), saleDraft(fmt.Sprintf("sale-%d", i), 1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if errors.Is(err, store.ErrInsufficientStock) {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 30, rejected)
	assert.Equal(t, 0, bucket(t, s, "M"))
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()

	first, err := s.CreateSale(ctx, saleDraft("sale-1", 1))
	require.NoError(t, err)
	_, err = s.DeleteSale(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	second, err := s.CreateSale(ctx, saleDraft("sale-2", 1))
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", first.InvoiceNumber)
	assert.Equal(t, "INV-000002", second.InvoiceNumber, "deleting a sale must not reuse its number")
}

func TestFailedSaleLeavesStockAndSequenceUntouched(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()

	d := saleDraft("sale-1", 2)
	d.Items = append(d.Items, domain.SaleLineRequest{ProductID: "prd-a", Size: "L", Quantity: 5, UnitPriceCents: 80000})
	_, err := s.CreateSale(ctx, d)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 10, bucket(t, s, "M"))
	assert.Equal(t, 1, bucket(t, s, "L"))

	d = saleDraft("sale-2", 1)
	d.PaidAmountCents = 90000
	_, err = s.CreateSale(ctx, d)
	require.ErrorIs(t, err, store.ErrValidation)
	assert.Equal(t, 10, bucket(t, s, "M"))

	ok, err := s.CreateSale(ctx, saleDraft("sale-3", 1))
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", ok.InvoiceNumber)
}

func TestDeleteSaleRestoresStockAndRecordsMovements(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, saleDraft("sale-1", 3))
	require.NoError(t, err)
	require.Equal(t, 7, bucket(t, s, "M"))

	deletion, err := s.DeleteSale(ctx, sale.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, deletion.Restored, 1)
	assert.Empty(t, deletion.Skipped)
	assert.Equal(t, 10, bucket(t, s, "M"))

	_, err = s.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, store.ErrSaleNotFound)

	movements, err := s.ListStockMovements(ctx, "prd-a", 0)
	require.NoError(t, err)
	require.Len(t, movements, 4)
	assert.Equal(t, domain.MovementRestore, movements[0].Type)
	assert.Equal(t, domain.MovementSale, movements[1].Type)
	assert.Equal(t, sale.InvoiceNumber, movements[1].InvoiceNumber)
}

func TestDeleteSaleAfterProductRemovalSkipsLine(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, saleDraft("sale-1", 3))
	require.NoError(t, err)
	require.NoError(t, s.DeleteProduct(ctx, "prd-a"))

	deletion, err := s.DeleteSale(ctx, sale.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, deletion.Restored)
	require.Len(t, deletion.Skipped, 1)
	assert.Equal(t, "prd-a", deletion.Skipped[0].ProductID)
}

func TestAddPaymentRejectsOverpayment(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, saleDraft("sale-1", 1))
	require.NoError(t, err)

	_, err = s.AddPayment(ctx, sale.ID, domain.Payment{AmountCents: 80001, PaymentDate: time.Now().UTC()})
	require.ErrorIs(t, err, store.ErrValidation)

	stored, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.PaidAmountCents)
	assert.Empty(t, stored.Payments)

	_, err = s.AddPayment(ctx, "sale-missing", domain.Payment{AmountCents: 1})
	assert.ErrorIs(t, err, store.ErrSaleNotFound)
}

func TestListSalesFiltersAndOrders(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d := saleDraft(fmt.Sprintf("sale-%d", i), 1)
		d.SaleDate = base.Add(time.Duration(i) * 24 * time.Hour)
		d.CreatedAt = d.SaleDate
		if i == 1 {
			d.PaidAmountCents = 80000
		}
		_, err := s.CreateSale(ctx, d)
		require.NoError(t, err)
	}

	all, err := s.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "sale-2", all[0].ID)
	assert.Equal(t, "sale-0", all[2].ID)

	paid, err := s.ListSales(ctx, domain.SaleFilter{Status: domain.PaymentPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "sale-1", paid[0].ID)

	from := base.Add(24 * time.Hour)
	to := base.Add(48 * time.Hour)
	ranged, err := s.ListSales(ctx, domain.SaleFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "sale-1", ranged[0].ID)

	limited, err := s.ListSales(ctx, domain.SaleFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestReturnedSalesAreCopies(t *testing.T) {
	s := newStoreWithKurta(t, 10)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, saleDraft("sale-1", 1))
	require.NoError(t, err)
	sale.Items[0].Quantity = 99

	stored, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items[0].Quantity)
}
