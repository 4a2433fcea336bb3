package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/ledger"
	"dressify/backend/internal/metrics"
	"dressify/backend/internal/report"
	"dressify/backend/internal/store"
	"dressify/backend/internal/xid"
)

const (
	defaultSaleListLimit     = 100
	maxSaleListLimit         = 500
	defaultMovementListLimit = 50
	dateLayout               = "2006-01-02"
)

type Service struct {
	repo    store.Repository
	reports *report.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func New(repo store.Repository, reports *report.Engine, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reports == nil {
		reports = report.NewEngine(nil, 0, logger)
	}

	return &Service{
		repo:    repo,
		reports: reports,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return domain.Sale{}, fmt.Errorf("%w: customer is required", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: at least one item is required", store.ErrValidation)
	}
	if req.PaidAmountCents < 0 {
		return domain.Sale{}, fmt.Errorf("%w: paid amount cannot be negative", store.ErrValidation)
	}
	saleType, err := ledger.NormalizeSaleType(req.SaleType)
	if err != nil {
		return domain.Sale{}, err
	}
	method, err := ledger.NormalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}
	if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
		return domain.Sale{}, err
	}

	now := s.now()
	saleDate := now
	if req.SaleDate != nil && !req.SaleDate.IsZero() {
		saleDate = req.SaleDate.UTC()
	}

	created, err := s.repo.CreateSale(ctx, domain.SaleDraft{
		ID:              xid.New("sale"),
		CustomerID:      req.CustomerID,
		Items:           req.Items,
		PaidAmountCents: req.PaidAmountCents,
		PaymentMethod:   method,
		SaleType:        saleType,
		Notes:           req.Notes,
		SaleDate:        saleDate,
		CreatedAt:       now,
	})
	if err != nil {
		s.recordRejection(err)
		return domain.Sale{}, err
	}

	s.metrics.RecordSale(string(created.SaleType), unitsOf(created.Items))
	s.reports.Invalidate(ctx)
	s.logger.Info("sale created",
		zap.String("sale_id", created.ID),
		zap.String("invoice", created.InvoiceNumber),
		zap.Int64("total_cents", created.TotalAmountCents),
		zap.String("status", string(created.PaymentStatus)),
	)
	return *created, nil
}

func (s *Service) AppendItems(ctx context.Context, saleID string, req domain.AppendItemsRequest) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" || len(req.Items) == 0 {
		return domain.Sale{}, store.ErrValidation
	}

	before, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	updated, err := s.repo.AppendSaleItems(ctx, saleID, req.Items, s.now())
	if err != nil {
		s.recordRejection(err)
		return domain.Sale{}, err
	}

	s.metrics.RecordItemsSold(unitsOf(updated.Items) - unitsOf(before.Items))
	s.reports.Invalidate(ctx)
	s.logger.Info("sale items appended",
		zap.String("sale_id", updated.ID),
		zap.Int("lines", len(req.Items)),
		zap.Int64("total_cents", updated.TotalAmountCents),
	)
	return *updated, nil
}

func (s *Service) AddPayment(ctx context.Context, saleID string, req domain.PaymentRequest) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrValidation
	}
	if req.AmountCents <= 0 {
		return domain.Sale{}, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	method, err := ledger.NormalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}

	updated, err := s.repo.AddPayment(ctx, saleID, domain.Payment{
		AmountCents:   req.AmountCents,
		PaymentDate:   s.now(),
		PaymentMethod: method,
		Notes:         req.Notes,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.metrics.RecordPayment(method)
	s.reports.Invalidate(ctx)
	s.logger.Info("payment recorded",
		zap.String("sale_id", updated.ID),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int64("remaining_cents", updated.RemainingAmountCents),
		zap.String("status", string(updated.PaymentStatus)),
	)
	return *updated, nil
}

// DeleteSale removes the sale and gives its stock back. Lines whose product
// or size has since been removed are reported in the result.
func (s *Service) DeleteSale(ctx context.Context, saleID string) (domain.SaleDeletion, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleDeletion{}, store.ErrValidation
	}

	deletion, err := s.repo.DeleteSale(ctx, saleID, s.now())
	if err != nil {
		return domain.SaleDeletion{}, err
	}

	for _, skipped := range deletion.Skipped {
		s.logger.Warn("stock not restored for deleted sale line",
			zap.String("sale_id", deletion.SaleID),
			zap.String("product_id", skipped.ProductID),
			zap.String("size", skipped.Size),
			zap.Int("quantity", skipped.Quantity),
			zap.String("reason", skipped.Reason),
		)
	}
	s.metrics.RecordSaleDeleted(len(deletion.Skipped))
	s.reports.Invalidate(ctx)
	s.logger.Info("sale deleted",
		zap.String("sale_id", deletion.SaleID),
		zap.String("invoice", deletion.InvoiceNumber),
		zap.Int("restored_lines", len(deletion.Restored)),
	)
	return *deletion, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, query domain.SaleQuery) ([]domain.Sale, error) {
	filter, err := buildSaleFilter(query)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, filter)
}

// SalesStats summarizes every sale dated within [from, to]. Either bound may
// be blank.
func (s *Service) SalesStats(ctx context.Context, from string, to string) (domain.SalesStats, error) {
	fromAt, toAt, err := parseDateRange(from, to)
	if err != nil {
		return domain.SalesStats{}, err
	}

	stats, err := s.reports.SalesStats(ctx, strings.TrimSpace(from), strings.TrimSpace(to), func(ctx context.Context) ([]domain.Sale, error) {
		return s.repo.ListSales(ctx, domain.SaleFilter{From: fromAt, To: toAt})
	})
	if err != nil {
		return domain.SalesStats{}, err
	}
	return *stats, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.CostCents < 0 || req.PriceCents < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices cannot be negative", store.ErrValidation)
	}
	sizes, err := ledger.NormalizeSizes(req.Sizes, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}
	threshold := domain.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, fmt.Errorf("%w: low stock threshold cannot be negative", store.ErrValidation)
		}
		threshold = *req.LowStockThreshold
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                xid.New("prd"),
		Name:              name,
		BrandID:           strings.TrimSpace(req.BrandID),
		CategoryID:        strings.TrimSpace(req.CategoryID),
		CostCents:         req.CostCents,
		PriceCents:        req.PriceCents,
		LowStockThreshold: threshold,
		Notes:             strings.TrimSpace(req.Notes),
		Sizes:             sizes,
		CreatedAt:         s.now(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.Int("sizes", len(created.Sizes)),
		zap.Int("quantity", created.TotalQuantity()),
	)
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if !lowStockOnly {
		return products, nil
	}
	low := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.IsLowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

// UpdateProduct changes descriptive attributes. Size labels and quantities
// are left alone.
func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing.Clone()
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name cannot be blank", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.BrandID != nil {
		updated.BrandID = strings.TrimSpace(*req.BrandID)
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.CostCents = *req.CostCents
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

// DeleteProduct removes the product only. Sales keep their line snapshots.
func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.String("product_id", productID))
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustmentRequest) (domain.StockMovement, error) {
	if req.CountedQty < 0 {
		return domain.StockMovement{}, fmt.Errorf("%w: counted quantity cannot be negative", store.ErrValidation)
	}

	mv, err := s.repo.AdjustStock(ctx, strings.TrimSpace(productID), req.Size, req.CountedQty, req.Notes, s.now())
	if err != nil {
		return domain.StockMovement{}, err
	}

	s.logger.Info("stock adjusted",
		zap.String("product_id", mv.ProductID),
		zap.String("size", mv.Size),
		zap.Int("old_quantity", mv.OldQuantity),
		zap.Int("new_quantity", mv.NewQuantity),
	)
	return *mv, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = defaultMovementListLimit
	}
	return s.repo.ListStockMovements(ctx, strings.TrimSpace(productID), limit)
}

func (s *Service) InventorySummary(ctx context.Context) (domain.InventorySummary, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.InventorySummary{}, err
	}
	return report.InventorySummary(products), nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	customerType := strings.TrimSpace(req.CustomerType)
	switch customerType {
	case "":
		customerType = domain.CustomerWalkIn
	case domain.CustomerWalkIn, domain.CustomerCredit, domain.CustomerRegular:
	default:
		return domain.Customer{}, fmt.Errorf("%w: unsupported customer type %q", store.ErrValidation, req.CustomerType)
	}
	if req.CreditLimitCents < 0 {
		return domain.Customer{}, fmt.Errorf("%w: credit limit cannot be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:               xid.New("cus"),
		Name:             name,
		ShopName:         strings.TrimSpace(req.ShopName),
		Market:           strings.TrimSpace(req.Market),
		Contact:          strings.TrimSpace(req.Contact),
		Email:            strings.TrimSpace(req.Email),
		Address:          strings.TrimSpace(req.Address),
		CustomerType:     customerType,
		CreditLimitCents: req.CreditLimitCents,
		Active:           true,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomerSummary(ctx context.Context, customerID string) (domain.CustomerSummary, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.CustomerSummary{}, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{CustomerID: customer.ID})
	if err != nil {
		return domain.CustomerSummary{}, err
	}
	return report.CustomerSummary(*customer, sales), nil
}

func (s *Service) recordRejection(err error) {
	var shortfall *store.InsufficientStockError
	if errors.As(err, &shortfall) {
		s.metrics.RecordStockRejection()
		s.logger.Info("sale rejected for insufficient stock",
			zap.String("product_id", shortfall.ProductID),
			zap.String("size", shortfall.Size),
			zap.Int("available", shortfall.Available),
			zap.Int("requested", shortfall.Requested),
		)
	}
}

func buildSaleFilter(query domain.SaleQuery) (domain.SaleFilter, error) {
	filter := domain.SaleFilter{CustomerID: strings.TrimSpace(query.CustomerID)}

	switch strings.ToLower(strings.TrimSpace(query.Status)) {
	case "":
	case "unpaid":
		filter.Status = domain.PaymentUnpaid
	case "partial":
		filter.Status = domain.PaymentPartial
	case "paid":
		filter.Status = domain.PaymentPaid
	default:
		return domain.SaleFilter{}, fmt.Errorf("%w: unsupported payment status %q", store.ErrValidation, query.Status)
	}

	saleType, err := ledger.NormalizeSaleType(query.SaleType)
	if err != nil {
		return domain.SaleFilter{}, err
	}
	filter.SaleType = saleType

	filter.From, filter.To, err = parseDateRange(query.From, query.To)
	if err != nil {
		return domain.SaleFilter{}, err
	}

	filter.Limit = query.Limit
	if filter.Limit < 1 {
		filter.Limit = defaultSaleListLimit
	}
	if filter.Limit > maxSaleListLimit {
		filter.Limit = maxSaleListLimit
	}
	return filter, nil
}

// parseDateRange turns inclusive calendar dates into a half-open UTC range.
func parseDateRange(from string, to string) (*time.Time, *time.Time, error) {
	var fromAt, toAt *time.Time
	if strings.TrimSpace(from) != "" {
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(from))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrValidation)
		}
		day := parsed.UTC()
		fromAt = &day
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(to))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: to must be YYYY-MM-DD", store.ErrValidation)
		}
		end := parsed.UTC().Add(24 * time.Hour)
		toAt = &end
	}
	if fromAt != nil && toAt != nil && !fromAt.Before(*toAt) {
		return nil, nil, fmt.Errorf("%w: from is after to", store.ErrValidation)
	}
	return fromAt, toAt, nil
}

func unitsOf(lines []domain.SaleLine) int {
	units := 0
	for _, line := range lines {
		units += line.Quantity
	}
	return units
}
