package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/store"
)

// Plan is the outcome of validating sale lines against working copies of
// their products. Nothing in a plan has been persisted.
type Plan struct {
	Lines      []domain.SaleLine
	Products   map[string]*domain.Product
	Movements  []domain.StockMovement
	TotalCents int64
}

// ProductIDs returns the distinct product ids referenced by items, sorted so
// repositories lock rows in a stable order.
func ProductIDs(items []domain.SaleLineRequest) []string {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PlanLines checks every line before anything is applied. Demand for the same
// product and size accumulates across lines, so the first failing line aborts
// the whole sale and products stays untouched.
func PlanLines(products map[string]domain.Product, items []domain.SaleLineRequest, at time.Time) (*Plan, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", store.ErrValidation)
	}

	plan := &Plan{
		Lines:     make([]domain.SaleLine, 0, len(items)),
		Products:  make(map[string]*domain.Product, len(items)),
		Movements: make([]domain.StockMovement, 0, len(items)),
	}
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item %d has no product", store.ErrValidation, i+1)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d quantity must be at least 1", store.ErrValidation, i+1)
		}
		if item.UnitPriceCents < 0 {
			return nil, fmt.Errorf("%w: item %d unit price cannot be negative", store.ErrValidation, i+1)
		}

		working, ok := plan.Products[productID]
		if !ok {
			source, exists := products[productID]
			if !exists {
				return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, productID)
			}
			dup := source.Clone()
			working = &dup
			plan.Products[productID] = working
		}

		size, err := ResolveSize(*working, item.Size)
		if err != nil {
			return nil, err
		}
		mv, err := Decrement(working, size, item.Quantity, at)
		if err != nil {
			return nil, err
		}

		lineTotal, ok := mulCents(item.UnitPriceCents, item.Quantity)
		if !ok {
			return nil, fmt.Errorf("%w: item %d total is out of range", store.ErrValidation, i+1)
		}
		line := domain.SaleLine{
			ProductID:          working.ID,
			ProductName:        working.Name,
			Size:               size,
			Quantity:           item.Quantity,
			UnitPriceCents:     item.UnitPriceCents,
			TotalPriceCents:    lineTotal,
			ListPriceCents:     working.PriceCents,
			CostCents:          working.CostCents,
			ProfitPerUnitCents: item.UnitPriceCents - working.PriceCents,
		}
		line.TotalProfitCents, ok = mulCents(line.ProfitPerUnitCents, item.Quantity)
		if !ok {
			return nil, fmt.Errorf("%w: item %d profit is out of range", store.ErrValidation, i+1)
		}
		if plan.TotalCents, ok = addCents(plan.TotalCents, lineTotal); !ok {
			return nil, fmt.Errorf("%w: sale total is out of range", store.ErrValidation)
		}

		plan.Lines = append(plan.Lines, line)
		plan.Movements = append(plan.Movements, mv)
	}
	return plan, nil
}

// Bind tags every movement in the plan with the sale it belongs to.
func (p *Plan) Bind(saleID string, invoiceNumber string) {
	for i := range p.Movements {
		p.Movements[i].SaleID = saleID
		p.Movements[i].InvoiceNumber = invoiceNumber
		p.Movements[i].Description = "sold on " + invoiceNumber
	}
}

// MovementsFor returns the plan's movements for one product.
func (p *Plan) MovementsFor(productID string) []domain.StockMovement {
	out := make([]domain.StockMovement, 0, 2)
	for _, mv := range p.Movements {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out
}

func FormatInvoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}

// DerivePaymentStatus is Paid once nothing remains, Unpaid when nothing has
// been paid, and Partial otherwise.
func DerivePaymentStatus(paidCents int64, totalCents int64) domain.PaymentStatus {
	switch {
	case totalCents-paidCents <= 0:
		return domain.PaymentPaid
	case paidCents <= 0:
		return domain.PaymentUnpaid
	default:
		return domain.PaymentPartial
	}
}

// NormalizePaymentMethod applies the Cash default and rejects unknown methods.
func NormalizePaymentMethod(method string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", "cash":
		return domain.PaymentMethodCash, nil
	case "bank transfer":
		return domain.PaymentMethodBankTransfer, nil
	case "cheque":
		return domain.PaymentMethodCheque, nil
	case "other":
		return domain.PaymentMethodOther, nil
	default:
		return "", fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, method)
	}
}

// NormalizeSaleType returns "" when the caller left the type to be derived.
func NormalizeSaleType(saleType string) (domain.SaleType, error) {
	switch strings.ToLower(strings.TrimSpace(saleType)) {
	case "":
		return "", nil
	case "cash":
		return domain.SaleTypeCash, nil
	case "credit":
		return domain.SaleTypeCredit, nil
	default:
		return "", fmt.Errorf("%w: unsupported sale type %q", store.ErrValidation, saleType)
	}
}

// NewSale assembles the sale record for a validated plan.
func NewSale(draft domain.SaleDraft, plan *Plan, invoiceNumber string) (domain.Sale, error) {
	if draft.PaidAmountCents < 0 {
		return domain.Sale{}, fmt.Errorf("%w: paid amount cannot be negative", store.ErrValidation)
	}
	if draft.PaidAmountCents > plan.TotalCents {
		return domain.Sale{}, fmt.Errorf("%w: paid amount %d exceeds total %d", store.ErrValidation, draft.PaidAmountCents, plan.TotalCents)
	}
	method, err := NormalizePaymentMethod(draft.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}

	saleType := draft.SaleType
	if saleType == "" {
		saleType = domain.SaleTypeCredit
		if draft.PaidAmountCents >= plan.TotalCents {
			saleType = domain.SaleTypeCash
		}
	}
	saleDate := draft.SaleDate
	if saleDate.IsZero() {
		saleDate = draft.CreatedAt
	}

	sale := domain.Sale{
		ID:                   draft.ID,
		InvoiceNumber:        invoiceNumber,
		CustomerID:           draft.CustomerID,
		Items:                append([]domain.SaleLine(nil), plan.Lines...),
		TotalAmountCents:     plan.TotalCents,
		PaidAmountCents:      draft.PaidAmountCents,
		RemainingAmountCents: plan.TotalCents - draft.PaidAmountCents,
		PaymentStatus:        DerivePaymentStatus(draft.PaidAmountCents, plan.TotalCents),
		SaleType:             saleType,
		Payments:             []domain.Payment{},
		Notes:                strings.TrimSpace(draft.Notes),
		SaleDate:             saleDate,
		CreatedAt:            draft.CreatedAt,
		UpdatedAt:            draft.CreatedAt,
	}
	if draft.PaidAmountCents > 0 {
		sale.Payments = append(sale.Payments, domain.Payment{
			AmountCents:   draft.PaidAmountCents,
			PaymentDate:   draft.CreatedAt,
			PaymentMethod: method,
			Notes:         "initial payment",
		})
	}
	return sale, nil
}

// ApplyPayment records a payment against the outstanding balance. Amounts
// above the remaining balance are rejected, never clamped.
func ApplyPayment(sale *domain.Sale, payment domain.Payment) error {
	if payment.AmountCents <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	if payment.AmountCents > sale.RemainingAmountCents {
		return fmt.Errorf("%w: payment %d exceeds remaining balance %d", store.ErrValidation, payment.AmountCents, sale.RemainingAmountCents)
	}
	method, err := NormalizePaymentMethod(payment.PaymentMethod)
	if err != nil {
		return err
	}
	payment.PaymentMethod = method
	payment.Notes = strings.TrimSpace(payment.Notes)

	sale.Payments = append(sale.Payments, payment)
	sale.PaidAmountCents += payment.AmountCents
	sale.RemainingAmountCents -= payment.AmountCents
	sale.PaymentStatus = DerivePaymentStatus(sale.PaidAmountCents, sale.TotalAmountCents)
	sale.UpdatedAt = payment.PaymentDate
	return nil
}

// AppendLines adds a planned set of lines to an existing sale. The new
// amount is owed in full; paid stays unchanged.
func AppendLines(sale *domain.Sale, plan *Plan, at time.Time) error {
	total, ok := addCents(sale.TotalAmountCents, plan.TotalCents)
	if !ok {
		return fmt.Errorf("%w: sale total is out of range", store.ErrValidation)
	}
	sale.Items = append(sale.Items, plan.Lines...)
	sale.TotalAmountCents = total
	sale.RemainingAmountCents = total - sale.PaidAmountCents
	sale.PaymentStatus = DerivePaymentStatus(sale.PaidAmountCents, sale.TotalAmountCents)
	sale.UpdatedAt = at
	return nil
}

// mulCents multiplies a per-unit amount by a quantity, reporting false on int64 overflow.
func mulCents(unit int64, qty int) (int64, bool) {
	if qty == 0 || unit == 0 {
		return 0, true
	}
	q := int64(qty)
	if unit > 0 && unit > math.MaxInt64/q {
		return 0, false
	}
	if unit < 0 && unit < math.MinInt64/q {
		return 0, false
	}
	return unit * q, true
}

func addCents(a int64, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// CheckBalances verifies the arithmetic a persisted sale must satisfy.
func CheckBalances(sale domain.Sale) error {
	var lines int64
	for _, line := range sale.Items {
		lines += line.TotalPriceCents
	}
	var paid int64
	for _, payment := range sale.Payments {
		paid += payment.AmountCents
	}
	switch {
	case lines != sale.TotalAmountCents:
		return fmt.Errorf("sale %s: line totals %d do not match total %d", sale.ID, lines, sale.TotalAmountCents)
	case paid != sale.PaidAmountCents:
		return fmt.Errorf("sale %s: payments %d do not match paid %d", sale.ID, paid, sale.PaidAmountCents)
	case sale.PaidAmountCents+sale.RemainingAmountCents != sale.TotalAmountCents:
		return fmt.Errorf("sale %s: paid %d plus remaining %d is not total %d", sale.ID, sale.PaidAmountCents, sale.RemainingAmountCents, sale.TotalAmountCents)
	case sale.PaymentStatus != DerivePaymentStatus(sale.PaidAmountCents, sale.TotalAmountCents):
		return fmt.Errorf("sale %s: status %s does not match balances", sale.ID, sale.PaymentStatus)
	}
	return nil
}

// Restoration is the stock a deleted sale gives back.
type Restoration struct {
	Products  map[string]*domain.Product
	Movements []domain.StockMovement
	Restored  []domain.StockRestoration
	Skipped   []domain.StockRestoration
}

// RestoreSale returns each line's quantity to its bucket. Lines whose product
// or bucket no longer exists are skipped and reported.
func RestoreSale(products map[string]domain.Product, sale domain.Sale, at time.Time) *Restoration {
	out := &Restoration{
		Products:  make(map[string]*domain.Product, len(sale.Items)),
		Movements: make([]domain.StockMovement, 0, len(sale.Items)),
		Restored:  make([]domain.StockRestoration, 0, len(sale.Items)),
		Skipped:   []domain.StockRestoration{},
	}
	for _, line := range sale.Items {
		entry := domain.StockRestoration{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Size:        line.Size,
			Quantity:    line.Quantity,
		}

		working, ok := out.Products[line.ProductID]
		if !ok {
			source, exists := products[line.ProductID]
			if !exists {
				entry.Reason = "product no longer exists"
				out.Skipped = append(out.Skipped, entry)
				continue
			}
			dup := source.Clone()
			working = &dup
			out.Products[line.ProductID] = working
		}

		mv, err := Increment(working, line.Size, line.Quantity, at)
		if err != nil {
			entry.Reason = "size no longer exists"
			out.Skipped = append(out.Skipped, entry)
			continue
		}
		mv.SaleID = sale.ID
		mv.InvoiceNumber = sale.InvoiceNumber
		mv.Description = "restored from deleted " + sale.InvoiceNumber
		out.Movements = append(out.Movements, mv)
		out.Restored = append(out.Restored, entry)
	}
	return out
}

// MovementsFor returns the restoration movements for one product.
func (r *Restoration) MovementsFor(productID string) []domain.StockMovement {
	out := make([]domain.StockMovement, 0, 2)
	for _, mv := range r.Movements {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out
}
