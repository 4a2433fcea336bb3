package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/ledger"
	"dressify/backend/internal/store"
	"dressify/backend/internal/xid"
)

// Store keeps everything in maps behind one mutex, so each sale mutation is
// a single critical section.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	movements  map[string][]domain.StockMovement
	customers  map[string]domain.Customer
	sales      map[string]domain.Sale
	invoiceSeq int64
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		movements: make(map[string][]domain.StockMovement),
		customers: make(map[string]domain.Customer),
		sales:     make(map[string]domain.Sale),
	}
}

// NewSeeded returns a store with a small demo catalogue and two customers.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prd-lawn-kurta", Name: "Lawn Kurta", CategoryID: "kurta", CostCents: 50000, PriceCents: 80000,
			Sizes: []domain.SizeBucket{{Size: "S", Quantity: 8}, {Size: "M", Quantity: 10}, {Size: "L", Quantity: 6}}},
		{ID: "prd-chiffon-dupatta", Name: "Chiffon Dupatta", CategoryID: "dupatta", CostCents: 12000, PriceCents: 30000,
			Sizes: []domain.SizeBucket{{Size: ledger.OneSize, Quantity: 25}}},
		{ID: "prd-khaddar-suit", Name: "Khaddar 3-Piece Suit", CategoryID: "suit", CostCents: 210000, PriceCents: 320000,
			Sizes: []domain.SizeBucket{{Size: "M", Quantity: 4}, {Size: "L", Quantity: 3}, {Size: "XL", Quantity: 2}}},
		{ID: "prd-cotton-shalwar", Name: "Cotton Shalwar", CategoryID: "shalwar", CostCents: 18000, PriceCents: 35000,
			Sizes: []domain.SizeBucket{{Size: "M", Quantity: 12}, {Size: "L", Quantity: 9}}},
	}
	for _, p := range products {
		p.LowStockThreshold = domain.DefaultLowStockThreshold
		p.CreatedAt = now
		p.UpdatedAt = now
		p.Version = 1
		s.products[p.ID] = p
		s.movements[p.ID] = ledger.IntakeMovements(p, now)
	}

	customers := []domain.Customer{
		{ID: "cus-walk-in", Name: "Walk-in Customer", CustomerType: domain.CustomerWalkIn},
		{ID: "cus-noor-boutique", Name: "Ayesha Noor", ShopName: "Noor Boutique", Market: "Liberty Market",
			Contact: "0300-1234567", CustomerType: domain.CustomerCredit, CreditLimitCents: 50000000},
	}
	for _, c := range customers {
		c.Active = true
		c.CreatedAt = now
		s.customers[c.ID] = c
	}
	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || len(product.Sizes) == 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt
	product.Version = 1

	created := product.Clone()
	s.products[created.ID] = created
	s.movements[created.ID] = ledger.IntakeMovements(created, created.CreatedAt)

	out := created.Clone()
	return &out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
	}
	out := product.Clone()
	return &out, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p.Clone())
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return products, nil
}

// UpdateProduct replaces descriptive fields. Size buckets are only changed by
// sales, deletions and stock adjustments.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, product.ID)
	}
	existing.Name = product.Name
	existing.BrandID = product.BrandID
	existing.CategoryID = product.CategoryID
	existing.CostCents = product.CostCents
	existing.PriceCents = product.PriceCents
	existing.LowStockThreshold = product.LowStockThreshold
	existing.Notes = product.Notes
	existing.UpdatedAt = product.UpdatedAt
	existing.Version++
	s.products[existing.ID] = existing

	out := existing.Clone()
	return &out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, size string, countedQty int, notes string, at time.Time) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, productID)
	}
	working := product.Clone()
	mv, err := ledger.Adjust(&working, size, countedQty, notes, at)
	if err != nil {
		return nil, err
	}
	working.UpdatedAt = at
	working.Version++
	s.products[productID] = working
	s.movements[productID] = append(s.movements[productID], mv)
	return &mv, nil
}

// ListStockMovements returns the newest movements first. Movements of deleted
// products stay readable.
func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.movements[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, productID)
	}
	out := make([]domain.StockMovement, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, fmt.Errorf("%w: customer %s already exists", store.ErrValidation, customer.ID)
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrCustomerNotFound, id)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return customers, nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[draft.ID]; exists {
		return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, draft.ID)
	}

	plan, err := ledger.PlanLines(s.productsFor(draft.Items), draft.Items, draft.CreatedAt)
	if err != nil {
		return nil, err
	}
	sale, err := ledger.NewSale(draft, plan, ledger.FormatInvoiceNumber(s.invoiceSeq+1))
	if err != nil {
		return nil, err
	}

	s.invoiceSeq++
	plan.Bind(sale.ID, sale.InvoiceNumber)
	s.commitPlan(plan, draft.CreatedAt)
	s.sales[sale.ID] = sale.Clone()

	return &sale, nil
}

func (s *Store) AppendSaleItems(_ context.Context, saleID string, items []domain.SaleLineRequest, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sales[saleID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrSaleNotFound, saleID)
	}
	plan, err := ledger.PlanLines(s.productsFor(items), items, at)
	if err != nil {
		return nil, err
	}

	sale := existing.Clone()
	if err := ledger.AppendLines(&sale, plan, at); err != nil {
		return nil, err
	}
	plan.Bind(sale.ID, sale.InvoiceNumber)
	s.commitPlan(plan, at)
	s.sales[sale.ID] = sale.Clone()

	return &sale, nil
}

func (s *Store) AddPayment(_ context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sales[saleID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrSaleNotFound, saleID)
	}
	sale := existing.Clone()
	if err := ledger.ApplyPayment(&sale, payment); err != nil {
		return nil, err
	}
	s.sales[sale.ID] = sale.Clone()
	return &sale, nil
}

func (s *Store) DeleteSale(_ context.Context, saleID string, at time.Time) (*domain.SaleDeletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrSaleNotFound, saleID)
	}

	products := make(map[string]domain.Product, len(sale.Items))
	for _, line := range sale.Items {
		if p, ok := s.products[line.ProductID]; ok {
			products[line.ProductID] = p
		}
	}
	restoration := ledger.RestoreSale(products, sale, at)
	for id, p := range restoration.Products {
		moved := restoration.MovementsFor(id)
		if len(moved) == 0 {
			continue
		}
		p.UpdatedAt = at
		p.Version++
		s.products[id] = *p
		s.movements[id] = append(s.movements[id], moved...)
	}
	delete(s.sales, saleID)

	return &domain.SaleDeletion{
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		Restored:      restoration.Restored,
		Skipped:       restoration.Skipped,
		DeletedAt:     at,
	}, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrSaleNotFound, id)
	}
	out := sale.Clone()
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !filter.Matches(sale) {
			continue
		}
		sales = append(sales, sale.Clone())
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.SaleDate.Compare(a.SaleDate); c != 0 {
			return c
		}
		return strings.Compare(b.InvoiceNumber, a.InvoiceNumber)
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

// productsFor snapshots the products referenced by items. Callers hold s.mu.
func (s *Store) productsFor(items []domain.SaleLineRequest) map[string]domain.Product {
	products := make(map[string]domain.Product, len(items))
	for _, id := range ledger.ProductIDs(items) {
		if p, ok := s.products[id]; ok {
			products[id] = p
		}
	}
	return products
}

// commitPlan writes planned bucket changes and their movements. Callers hold s.mu.
func (s *Store) commitPlan(plan *ledger.Plan, at time.Time) {
	for id, p := range plan.Products {
		p.UpdatedAt = at
		p.Version++
		s.products[id] = *p
		s.movements[id] = append(s.movements[id], plan.MovementsFor(id)...)
	}
}
