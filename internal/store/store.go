package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dressify/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")

	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrSizeNotFound     = fmt.Errorf("size %w", ErrNotFound)
	ErrSaleNotFound     = fmt.Errorf("sale %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
)

// InsufficientStockError reports the bucket that could not cover a requested quantity.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Size        string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (size %s): available %d, requested %d",
		e.ProductName, e.Size, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, productID string, size string, countedQty int, notes string, at time.Time) (*domain.StockMovement, error)
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	AppendSaleItems(ctx context.Context, saleID string, items []domain.SaleLineRequest, at time.Time) (*domain.Sale, error)
	AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error)
	DeleteSale(ctx context.Context, saleID string, at time.Time) (*domain.SaleDeletion, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
}
