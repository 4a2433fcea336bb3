// Package ledger holds the stock and payment rules shared by every repository.
// Functions operate on caller-owned copies; persisting the result atomically is
// the repository's job.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/store"
	"dressify/backend/internal/xid"
)

const OneSize = "One Size"

// NormalizeSizes validates intake buckets. An empty list becomes a single
// One Size bucket holding fallbackQty.
func NormalizeSizes(sizes []domain.SizeBucket, fallbackQty int) ([]domain.SizeBucket, error) {
	if len(sizes) == 0 {
		if fallbackQty < 0 {
			return nil, fmt.Errorf("%w: quantity cannot be negative", store.ErrValidation)
		}
		return []domain.SizeBucket{{Size: OneSize, Quantity: fallbackQty}}, nil
	}

	seen := make(map[string]struct{}, len(sizes))
	normalized := make([]domain.SizeBucket, 0, len(sizes))
	for _, bucket := range sizes {
		label := strings.TrimSpace(bucket.Size)
		if label == "" {
			return nil, fmt.Errorf("%w: size label is required", store.ErrValidation)
		}
		if bucket.Quantity < 0 {
			return nil, fmt.Errorf("%w: quantity for size %s cannot be negative", store.ErrValidation, label)
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate size %s", store.ErrValidation, label)
		}
		seen[key] = struct{}{}
		normalized = append(normalized, domain.SizeBucket{Size: label, Quantity: bucket.Quantity})
	}
	return normalized, nil
}

// EnsureBuckets gives a product stored without sizes its implicit One Size bucket.
func EnsureBuckets(product *domain.Product) {
	if len(product.Sizes) == 0 {
		product.Sizes = []domain.SizeBucket{{Size: OneSize, Quantity: 0}}
	}
}

func bucketIndex(sizes []domain.SizeBucket, size string) int {
	for i, bucket := range sizes {
		if bucket.Size == size {
			return i
		}
	}
	return -1
}

// ResolveSize maps a requested size onto an existing bucket label. A blank
// request resolves to the only bucket of a single-bucket product.
func ResolveSize(product domain.Product, size string) (string, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		switch len(product.Sizes) {
		case 0:
			return OneSize, nil
		case 1:
			return product.Sizes[0].Size, nil
		default:
			return "", fmt.Errorf("%w: size is required for %s", store.ErrValidation, product.Name)
		}
	}
	if len(product.Sizes) == 0 && size == OneSize {
		return OneSize, nil
	}
	if bucketIndex(product.Sizes, size) < 0 {
		return "", fmt.Errorf("%w: %s has no size %q", store.ErrSizeNotFound, product.Name, size)
	}
	return size, nil
}

// CheckAvailable reports whether the bucket exists and holds at least qty units.
func CheckAvailable(product domain.Product, size string, qty int) bool {
	if len(product.Sizes) == 0 {
		return size == OneSize && qty <= 0
	}
	idx := bucketIndex(product.Sizes, size)
	if idx < 0 {
		return false
	}
	return product.Sizes[idx].Quantity >= qty
}

// Decrement removes qty units from a bucket of product, which must be a working copy.
func Decrement(product *domain.Product, size string, qty int, at time.Time) (domain.StockMovement, error) {
	if qty <= 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}
	EnsureBuckets(product)
	idx := bucketIndex(product.Sizes, size)
	if idx < 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: %s has no size %q", store.ErrSizeNotFound, product.Name, size)
	}
	old := product.Sizes[idx].Quantity
	if !CheckAvailable(*product, size, qty) {
		return domain.StockMovement{}, &store.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Size:        size,
			Available:   old,
			Requested:   qty,
		}
	}
	product.Sizes[idx].Quantity = old - qty
	return newMovement(*product, domain.MovementSale, size, old, old-qty, at), nil
}

// Increment returns qty units to a bucket. There is no upper bound.
func Increment(product *domain.Product, size string, qty int, at time.Time) (domain.StockMovement, error) {
	if qty <= 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}
	EnsureBuckets(product)
	idx := bucketIndex(product.Sizes, size)
	if idx < 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: %s has no size %q", store.ErrSizeNotFound, product.Name, size)
	}
	old := product.Sizes[idx].Quantity
	product.Sizes[idx].Quantity = old + qty
	return newMovement(*product, domain.MovementRestore, size, old, old+qty, at), nil
}

// Adjust sets a bucket to a counted quantity.
func Adjust(product *domain.Product, size string, counted int, notes string, at time.Time) (domain.StockMovement, error) {
	if counted < 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: counted quantity cannot be negative", store.ErrValidation)
	}
	EnsureBuckets(product)
	resolved, err := ResolveSize(*product, size)
	if err != nil {
		return domain.StockMovement{}, err
	}
	idx := bucketIndex(product.Sizes, resolved)
	old := product.Sizes[idx].Quantity
	product.Sizes[idx].Quantity = counted
	mv := newMovement(*product, domain.MovementAdjustment, resolved, old, counted, at)
	mv.Description = strings.TrimSpace(notes)
	return mv, nil
}

// IntakeMovements records the opening quantity of every non-empty bucket.
func IntakeMovements(product domain.Product, at time.Time) []domain.StockMovement {
	movements := make([]domain.StockMovement, 0, len(product.Sizes))
	for _, bucket := range product.Sizes {
		if bucket.Quantity == 0 {
			continue
		}
		mv := newMovement(product, domain.MovementIntake, bucket.Size, 0, bucket.Quantity, at)
		mv.Description = "opening stock"
		movements = append(movements, mv)
	}
	return movements
}

func newMovement(product domain.Product, kind string, size string, old int, updated int, at time.Time) domain.StockMovement {
	return domain.StockMovement{
		ID:          xid.New("mv"),
		ProductID:   product.ID,
		Type:        kind,
		Size:        size,
		OldQuantity: old,
		NewQuantity: updated,
		Change:      updated - old,
		CreatedAt:   at,
	}
}
