package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/store"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func kurta(sizes ...domain.SizeBucket) domain.Product {
	return domain.Product{
		ID:                "prd-kurta",
		Name:              "Lawn Kurta",
		CostCents:         50000,
		PriceCents:        80000,
		LowStockThreshold: domain.DefaultLowStockThreshold,
		Sizes:             sizes,
	}
}

func TestNormalizeSizes(t *testing.T) {
	tests := []struct {
		name     string
		sizes    []domain.SizeBucket
		fallback int
		want     []domain.SizeBucket
		wantErr  bool
	}{
		{
			name:     "empty list becomes one size",
			fallback: 12,
			want:     []domain.SizeBucket{{Size: OneSize, Quantity: 12}},
		},
		{
			name:  "labels are trimmed and order kept",
			sizes: []domain.SizeBucket{{Size: " L ", Quantity: 2}, {Size: "M", Quantity: 5}},
			want:  []domain.SizeBucket{{Size: "L", Quantity: 2}, {Size: "M", Quantity: 5}},
		},
		{
			name:    "duplicate labels rejected",
			sizes:   []domain.SizeBucket{{Size: "M", Quantity: 1}, {Size: "m", Quantity: 1}},
			wantErr: true,
		},
		{
			name:    "negative quantity rejected",
			sizes:   []domain.SizeBucket{{Size: "M", Quantity: -1}},
			wantErr: true,
		},
		{
			name:    "blank label rejected",
			sizes:   []domain.SizeBucket{{Size: "  ", Quantity: 1}},
			wantErr: true,
		},
		{
			name:     "negative fallback rejected",
			fallback: -3,
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeSizes(tc.sizes, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, store.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveSize(t *testing.T) {
	single := kurta(domain.SizeBucket{Size: "M", Quantity: 3})
	multi := kurta(domain.SizeBucket{Size: "M", Quantity: 3}, domain.SizeBucket{Size: "L", Quantity: 1})

	size, err := ResolveSize(single, "")
	require.NoError(t, err)
	assert.Equal(t, "M", size)

	_, err = ResolveSize(multi, "")
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = ResolveSize(multi, "XL")
	assert.ErrorIs(t, err, store.ErrSizeNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	size, err = ResolveSize(kurta(), "")
	require.NoError(t, err)
	assert.Equal(t, OneSize, size)
}

func TestCheckAvailable(t *testing.T) {
	p := kurta(domain.SizeBucket{Size: "M", Quantity: 10})

	assert.True(t, CheckAvailable(p, "M", 10))
	assert.False(t, CheckAvailable(p, "M", 11))
	assert.False(t, CheckAvailable(p, "L", 1))
	assert.False(t, CheckAvailable(kurta(), OneSize, 1))
}

func TestDecrementRejectsShortfallWithoutMutation(t *testing.T) {
	p := kurta(domain.SizeBucket{Size: "M", Quantity: 10})

	_, err := Decrement(&p, "M", 15, testNow)

	var shortfall *store.InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 10, shortfall.Available)
	assert.Equal(t, 15, shortfall.Requested)
	assert.Equal(t, "M", shortfall.Size)
	assert.Equal(t, "Lawn Kurta", shortfall.ProductName)
	assert.Equal(t, 10, p.Sizes[0].Quantity)
}

func TestDecrementAgreesWithCheckAvailable(t *testing.T) {
	for qty := 1; qty <= 12; qty++ {
		p := kurta(domain.SizeBucket{Size: "M", Quantity: 10})
		available := CheckAvailable(p, "M", qty)

		_, err := Decrement(&p, "M", qty, testNow)
		assert.Equal(t, available, err == nil, "qty %d", qty)
	}
}

func TestDecrementAndIncrementRecordMovements(t *testing.T) {
	p := kurta(domain.SizeBucket{Size: "M", Quantity: 10})

	mv, err := Decrement(&p, "M", 3, testNow)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Sizes[0].Quantity)
	assert.Equal(t, domain.MovementSale, mv.Type)
	assert.Equal(t, 10, mv.OldQuantity)
	assert.Equal(t, 7, mv.NewQuantity)
	assert.Equal(t, -3, mv.Change)

	mv, err = Increment(&p, "M", 3, testNow)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Sizes[0].Quantity)
	assert.Equal(t, domain.MovementRestore, mv.Type)
	assert.Equal(t, 3, mv.Change)

	_, err = Increment(&p, "XL", 1, testNow)
	assert.ErrorIs(t, err, store.ErrSizeNotFound)

	_, err = Decrement(&p, "M", 0, testNow)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestBucketsNeverGoNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := kurta(domain.SizeBucket{Size: "S", Quantity: 5}, domain.SizeBucket{Size: "M", Quantity: 5})

	for i := 0; i < 2000; i++ {
		size := p.Sizes[rng.Intn(len(p.Sizes))].Size
		qty := rng.Intn(6) + 1
		if rng.Intn(2) == 0 {
			_, _ = Decrement(&p, size, qty, testNow)
		} else {
			_, _ = Increment(&p, size, qty, testNow)
		}
		for _, bucket := range p.Sizes {
			require.GreaterOrEqual(t, bucket.Quantity, 0, "bucket %s went negative at step %d", bucket.Size, i)
		}
	}
}

func TestAdjustSetsCountedQuantity(t *testing.T) {
	p := kurta(domain.SizeBucket{Size: "M", Quantity: 10})

	mv, err := Adjust(&p, "", 4, " recount ", testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Sizes[0].Quantity)
	assert.Equal(t, domain.MovementAdjustment, mv.Type)
	assert.Equal(t, -6, mv.Change)
	assert.Equal(t, "recount", mv.Description)

	_, err = Adjust(&p, "M", -1, "", testNow)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestIntakeMovementsSkipEmptyBuckets(t *testing.T) {
	p := kurta(domain.SizeBucket{Size: "S", Quantity: 0}, domain.SizeBucket{Size: "M", Quantity: 4})

	movements := IntakeMovements(p, testNow)

	require.Len(t, movements, 1)
	assert.Equal(t, "M", movements[0].Size)
	assert.Equal(t, domain.MovementIntake, movements[0].Type)
	assert.Equal(t, 4, movements[0].Change)
}
