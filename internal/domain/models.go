package domain

import "time"

const (
	MovementIntake     = "intake"
	MovementSale       = "sale"
	MovementRestore    = "restore"
	MovementAdjustment = "adjustment"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
)

type SaleType string

const (
	SaleTypeCash   SaleType = "Cash"
	SaleTypeCredit SaleType = "Credit"
)

const (
	PaymentMethodCash         = "Cash"
	PaymentMethodBankTransfer = "Bank Transfer"
	PaymentMethodCheque       = "Cheque"
	PaymentMethodOther        = "Other"
)

const (
	CustomerWalkIn  = "Walk-in"
	CustomerCredit  = "Credit"
	CustomerRegular = "Regular"
)

const DefaultLowStockThreshold = 10

type SizeBucket struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type Product struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	BrandID           string       `json:"brand_id,omitempty"`
	CategoryID        string       `json:"category_id,omitempty"`
	CostCents         int64        `json:"cost_cents"`
	PriceCents        int64        `json:"price_cents"`
	LowStockThreshold int          `json:"low_stock_threshold"`
	Notes             string       `json:"notes,omitempty"`
	Sizes             []SizeBucket `json:"sizes"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TotalQuantity sums every size bucket.
func (p Product) TotalQuantity() int {
	total := 0
	for _, bucket := range p.Sizes {
		total += bucket.Quantity
	}
	return total
}

func (p Product) IsLowStock() bool {
	return p.TotalQuantity() <= p.LowStockThreshold
}

// Clone returns a copy that does not share the size slice with p.
func (p Product) Clone() Product {
	dup := p
	dup.Sizes = make([]SizeBucket, len(p.Sizes))
	copy(dup.Sizes, p.Sizes)
	return dup
}

type ProductCreateRequest struct {
	Name              string       `json:"name" validate:"required,max=160"`
	BrandID           string       `json:"brand_id"`
	CategoryID        string       `json:"category_id"`
	CostCents         int64        `json:"cost_cents" validate:"gte=0"`
	PriceCents        int64        `json:"price_cents" validate:"gte=0"`
	LowStockThreshold *int         `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Notes             string       `json:"notes" validate:"max=1000"`
	Sizes             []SizeBucket `json:"sizes" validate:"dive"`
	Quantity          int          `json:"quantity" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	BrandID           *string `json:"brand_id,omitempty"`
	CategoryID        *string `json:"category_id,omitempty"`
	CostCents         *int64  `json:"cost_cents,omitempty" validate:"omitempty,gte=0"`
	PriceCents        *int64  `json:"price_cents,omitempty" validate:"omitempty,gte=0"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Notes             *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type StockAdjustmentRequest struct {
	Size       string `json:"size"`
	CountedQty int    `json:"counted_qty" validate:"gte=0"`
	Notes      string `json:"notes" validate:"max=500"`
}

type StockMovement struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Type          string    `json:"type"`
	Size          string    `json:"size"`
	OldQuantity   int       `json:"old_quantity"`
	NewQuantity   int       `json:"new_quantity"`
	Change        int       `json:"change"`
	SaleID        string    `json:"sale_id,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type LowStockItem struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
	Threshold     int    `json:"threshold"`
}

type InventorySummary struct {
	TotalProducts   int            `json:"total_products"`
	TotalQuantity   int            `json:"total_quantity"`
	TotalValueCents int64          `json:"total_value_cents"`
	LowStockCount   int            `json:"low_stock_count"`
	LowStock        []LowStockItem `json:"low_stock"`
}

type Customer struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ShopName         string    `json:"shop_name,omitempty"`
	Market           string    `json:"market,omitempty"`
	Contact          string    `json:"contact,omitempty"`
	Email            string    `json:"email,omitempty"`
	Address          string    `json:"address,omitempty"`
	CustomerType     string    `json:"customer_type"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name             string `json:"name" validate:"required,max=160"`
	ShopName         string `json:"shop_name" validate:"max=160"`
	Market           string `json:"market" validate:"max=160"`
	Contact          string `json:"contact" validate:"max=40"`
	Email            string `json:"email" validate:"omitempty,email"`
	Address          string `json:"address" validate:"max=500"`
	CustomerType     string `json:"customer_type" validate:"omitempty,oneof=Walk-in Credit Regular"`
	CreditLimitCents int64  `json:"credit_limit_cents" validate:"gte=0"`
}

type CustomerSummary struct {
	Customer            Customer `json:"customer"`
	TotalPurchasesCents int64    `json:"total_purchases_cents"`
	TotalPaidCents      int64    `json:"total_paid_cents"`
	OutstandingCents    int64    `json:"outstanding_cents"`
	RecentSales         []Sale   `json:"recent_sales"`
}

// SaleLine is a snapshot taken when the line is sold; later product edits do not change it.
type SaleLine struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	Size               string `json:"size"`
	Quantity           int    `json:"quantity"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	TotalPriceCents    int64  `json:"total_price_cents"`
	ListPriceCents     int64  `json:"list_price_cents"`
	CostCents          int64  `json:"cost_cents"`
	ProfitPerUnitCents int64  `json:"profit_per_unit_cents"`
	TotalProfitCents   int64  `json:"total_profit_cents"`
}

type Payment struct {
	AmountCents   int64     `json:"amount_cents"`
	PaymentDate   time.Time `json:"payment_date"`
	PaymentMethod string    `json:"payment_method"`
	Notes         string    `json:"notes,omitempty"`
}

type Sale struct {
	ID                   string        `json:"id"`
	InvoiceNumber        string        `json:"invoice_number"`
	CustomerID           string        `json:"customer_id"`
	Items                []SaleLine    `json:"items"`
	TotalAmountCents     int64         `json:"total_amount_cents"`
	PaidAmountCents      int64         `json:"paid_amount_cents"`
	RemainingAmountCents int64         `json:"remaining_amount_cents"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	SaleType             SaleType      `json:"sale_type"`
	Payments             []Payment     `json:"payments"`
	Notes                string        `json:"notes,omitempty"`
	SaleDate             time.Time     `json:"sale_date"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func (s Sale) Clone() Sale {
	dup := s
	dup.Items = make([]SaleLine, len(s.Items))
	copy(dup.Items, s.Items)
	dup.Payments = make([]Payment, len(s.Payments))
	copy(dup.Payments, s.Payments)
	return dup
}

type SaleLineRequest struct {
	ProductID      string `json:"product_id" validate:"required"`
	Size           string `json:"size"`
	Quantity       int    `json:"quantity" validate:"gt=0,lte=100000"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0,lte=100000000000"`
}

type CreateSaleRequest struct {
	CustomerID      string            `json:"customer_id" validate:"required"`
	Items           []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	PaidAmountCents int64             `json:"paid_amount_cents" validate:"gte=0"`
	PaymentMethod   string            `json:"payment_method" validate:"omitempty,oneof=Cash 'Bank Transfer' Cheque Other"`
	SaleType        string            `json:"sale_type" validate:"omitempty,oneof=Cash Credit"`
	Notes           string            `json:"notes" validate:"max=1000"`
	SaleDate        *time.Time        `json:"sale_date,omitempty"`
}

type AppendItemsRequest struct {
	Items []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

type PaymentRequest struct {
	AmountCents   int64  `json:"amount_cents" validate:"gt=0"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=Cash 'Bank Transfer' Cheque Other"`
	Notes         string `json:"notes" validate:"max=500"`
}

// SaleDraft carries a validated create request into a repository.
type SaleDraft struct {
	ID              string
	CustomerID      string
	Items           []SaleLineRequest
	PaidAmountCents int64
	PaymentMethod   string
	SaleType        SaleType
	Notes           string
	SaleDate        time.Time
	CreatedAt       time.Time
}

type StockRestoration struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Size        string `json:"size"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason,omitempty"`
}

type SaleDeletion struct {
	SaleID        string             `json:"sale_id"`
	InvoiceNumber string             `json:"invoice_number"`
	Restored      []StockRestoration `json:"restored"`
	Skipped       []StockRestoration `json:"skipped"`
	DeletedAt     time.Time          `json:"deleted_at"`
}

// SaleQuery is a list request as received from a client. Dates are
// YYYY-MM-DD and To is inclusive.
type SaleQuery struct {
	CustomerID string
	Status     string
	SaleType   string
	From       string
	To         string
	Limit      int
}

// SaleFilter is a resolved SaleQuery. To is exclusive.
type SaleFilter struct {
	CustomerID string
	Status     PaymentStatus
	SaleType   SaleType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Matches reports whether sale passes every populated filter field.
func (f SaleFilter) Matches(sale Sale) bool {
	if f.CustomerID != "" && sale.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && sale.PaymentStatus != f.Status {
		return false
	}
	if f.SaleType != "" && sale.SaleType != f.SaleType {
		return false
	}
	if f.From != nil && sale.SaleDate.Before(*f.From) {
		return false
	}
	if f.To != nil && !sale.SaleDate.Before(*f.To) {
		return false
	}
	return true
}

type ProductSales struct {
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type SalesStats struct {
	From              string         `json:"from,omitempty"`
	To                string         `json:"to,omitempty"`
	TotalSalesCents   int64          `json:"total_sales_cents"`
	CashReceivedCents int64          `json:"cash_received_cents"`
	CreditGivenCents  int64          `json:"credit_given_cents"`
	TotalTransactions int            `json:"total_transactions"`
	CashSales         int            `json:"cash_sales"`
	CreditSales       int            `json:"credit_sales"`
	AverageSaleCents  int64          `json:"average_sale_cents"`
	TopProducts       []ProductSales `json:"top_products"`
}
