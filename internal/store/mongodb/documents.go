package mongodb

import (
	"time"

	"dressify/backend/internal/domain"
)

type bucketDoc struct {
	Size     string `bson:"size"`
	Quantity int    `bson:"quantity"`
}

type productDoc struct {
	ID                string      `bson:"_id"`
	Name              string      `bson:"name"`
	BrandID           string      `bson:"brandId,omitempty"`
	CategoryID        string      `bson:"categoryId,omitempty"`
	CostCents         int64       `bson:"costCents"`
	PriceCents        int64       `bson:"priceCents"`
	LowStockThreshold int         `bson:"lowStockThreshold"`
	Notes             string      `bson:"notes,omitempty"`
	Sizes             []bucketDoc `bson:"sizes"`
	Version           int64       `bson:"version"`
	CreatedAt         time.Time   `bson:"createdAt"`
	UpdatedAt         time.Time   `bson:"updatedAt"`
}

type movementDoc struct {
	ID            string    `bson:"_id"`
	ProductID     string    `bson:"productId"`
	Type          string    `bson:"type"`
	Size          string    `bson:"size"`
	OldQuantity   int       `bson:"oldQuantity"`
	NewQuantity   int       `bson:"newQuantity"`
	Change        int       `bson:"change"`
	SaleID        string    `bson:"saleId,omitempty"`
	InvoiceNumber string    `bson:"invoiceNumber,omitempty"`
	Description   string    `bson:"description,omitempty"`
	CreatedAt     time.Time `bson:"createdAt"`
}

type customerDoc struct {
	ID               string    `bson:"_id"`
	Name             string    `bson:"name"`
	ShopName         string    `bson:"shopName,omitempty"`
	Market           string    `bson:"market,omitempty"`
	Contact          string    `bson:"contact,omitempty"`
	Email            string    `bson:"email,omitempty"`
	Address          string    `bson:"address,omitempty"`
	CustomerType     string    `bson:"customerType"`
	CreditLimitCents int64     `bson:"creditLimitCents"`
	Active           bool      `bson:"active"`
	CreatedAt        time.Time `bson:"createdAt"`
}

type lineDoc struct {
	ProductID      string `bson:"productId"`
	ProductName    string `bson:"productName"`
	Size           string `bson:"size"`
	Quantity       int    `bson:"quantity"`
	UnitPriceCents int64  `bson:"unitPriceCents"`
	TotalCents     int64  `bson:"totalPriceCents"`
	ListPriceCents int64  `bson:"listPriceCents"`
	CostCents      int64  `bson:"costCents"`
}

type paymentDoc struct {
	AmountCents   int64     `bson:"amountCents"`
	PaymentDate   time.Time `bson:"paymentDate"`
	PaymentMethod string    `bson:"paymentMethod"`
	Notes         string    `bson:"notes,omitempty"`
}

type saleDoc struct {
	ID                   string       `bson:"_id"`
	InvoiceNumber        string       `bson:"invoiceNumber"`
	CustomerID           string       `bson:"customerId"`
	Items                []lineDoc    `bson:"items"`
	TotalAmountCents     int64        `bson:"totalAmountCents"`
	PaidAmountCents      int64        `bson:"paidAmountCents"`
	RemainingAmountCents int64        `bson:"remainingAmountCents"`
	PaymentStatus        string       `bson:"paymentStatus"`
	SaleType             string       `bson:"saleType"`
	Payments             []paymentDoc `bson:"payments"`
	Notes                string       `bson:"notes,omitempty"`
	SaleDate             time.Time    `bson:"saleDate"`
	CreatedAt            time.Time    `bson:"createdAt"`
	UpdatedAt            time.Time    `bson:"updatedAt"`
}

func toProductDoc(p domain.Product) productDoc {
	return productDoc{
		ID:                p.ID,
		Name:              p.Name,
		BrandID:           p.BrandID,
		CategoryID:        p.CategoryID,
		CostCents:         p.CostCents,
		PriceCents:        p.PriceCents,
		LowStockThreshold: p.LowStockThreshold,
		Notes:             p.Notes,
		Sizes:             toBucketDocs(p.Sizes),
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toBucketDocs(sizes []domain.SizeBucket) []bucketDoc {
	out := make([]bucketDoc, 0, len(sizes))
	for _, b := range sizes {
		out = append(out, bucketDoc{Size: b.Size, Quantity: b.Quantity})
	}
	return out
}

func (d productDoc) domain() domain.Product {
	sizes := make([]domain.SizeBucket, 0, len(d.Sizes))
	for _, b := range d.Sizes {
		sizes = append(sizes, domain.SizeBucket{Size: b.Size, Quantity: b.Quantity})
	}
	return domain.Product{
		ID:                d.ID,
		Name:              d.Name,
		BrandID:           d.BrandID,
		CategoryID:        d.CategoryID,
		CostCents:         d.CostCents,
		PriceCents:        d.PriceCents,
		LowStockThreshold: d.LowStockThreshold,
		Notes:             d.Notes,
		Sizes:             sizes,
		Version:           d.Version,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func toMovementDocs(movements []domain.StockMovement) []any {
	out := make([]any, 0, len(movements))
	for _, mv := range movements {
		out = append(out, movementDoc{
			ID:            mv.ID,
			ProductID:     mv.ProductID,
			Type:          mv.Type,
			Size:          mv.Size,
			OldQuantity:   mv.OldQuantity,
			NewQuantity:   mv.NewQuantity,
			Change:        mv.Change,
			SaleID:        mv.SaleID,
			InvoiceNumber: mv.InvoiceNumber,
			Description:   mv.Description,
			CreatedAt:     mv.CreatedAt,
		})
	}
	return out
}

func (d movementDoc) domain() domain.StockMovement {
	return domain.StockMovement{
		ID:            d.ID,
		ProductID:     d.ProductID,
		Type:          d.Type,
		Size:          d.Size,
		OldQuantity:   d.OldQuantity,
		NewQuantity:   d.NewQuantity,
		Change:        d.Change,
		SaleID:        d.SaleID,
		InvoiceNumber: d.InvoiceNumber,
		Description:   d.Description,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

func toCustomerDoc(c domain.Customer) customerDoc {
	return customerDoc{
		ID:               c.ID,
		Name:             c.Name,
		ShopName:         c.ShopName,
		Market:           c.Market,
		Contact:          c.Contact,
		Email:            c.Email,
		Address:          c.Address,
		CustomerType:     c.CustomerType,
		CreditLimitCents: c.CreditLimitCents,
		Active:           c.Active,
		CreatedAt:        c.CreatedAt,
	}
}

func (d customerDoc) domain() domain.Customer {
	return domain.Customer{
		ID:               d.ID,
		Name:             d.Name,
		ShopName:         d.ShopName,
		Market:           d.Market,
		Contact:          d.Contact,
		Email:            d.Email,
		Address:          d.Address,
		CustomerType:     d.CustomerType,
		CreditLimitCents: d.CreditLimitCents,
		Active:           d.Active,
		CreatedAt:        d.CreatedAt.UTC(),
	}
}

func toLineDocs(lines []domain.SaleLine) []lineDoc {
	out := make([]lineDoc, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineDoc{
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			Size:           l.Size,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			TotalCents:     l.TotalPriceCents,
			ListPriceCents: l.ListPriceCents,
			CostCents:      l.CostCents,
		})
	}
	return out
}

func toPaymentDocs(payments []domain.Payment) []paymentDoc {
	out := make([]paymentDoc, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentDoc{
			AmountCents:   p.AmountCents,
			PaymentDate:   p.PaymentDate,
			PaymentMethod: p.PaymentMethod,
			Notes:         p.Notes,
		})
	}
	return out
}

func toSaleDoc(s domain.Sale) saleDoc {
	return saleDoc{
		ID:                   s.ID,
		InvoiceNumber:        s.InvoiceNumber,
		CustomerID:           s.CustomerID,
		Items:                toLineDocs(s.Items),
		TotalAmountCents:     s.TotalAmountCents,
		PaidAmountCents:      s.PaidAmountCents,
		RemainingAmountCents: s.RemainingAmountCents,
		PaymentStatus:        string(s.PaymentStatus),
		SaleType:             string(s.SaleType),
		Payments:             toPaymentDocs(s.Payments),
		Notes:                s.Notes,
		SaleDate:             s.SaleDate,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (d saleDoc) domain() domain.Sale {
	items := make([]domain.SaleLine, 0, len(d.Items))
	for _, l := range d.Items {
		line := domain.SaleLine{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Size:            l.Size,
			Quantity:        l.Quantity,
			UnitPriceCents:  l.UnitPriceCents,
			TotalPriceCents: l.TotalCents,
			ListPriceCents:  l.ListPriceCents,
			CostCents:       l.CostCents,
		}
		line.ProfitPerUnitCents = line.UnitPriceCents - line.ListPriceCents
		line.TotalProfitCents = line.ProfitPerUnitCents * int64(line.Quantity)
		items = append(items, line)
	}
	payments := make([]domain.Payment, 0, len(d.Payments))
	for _, p := range d.Payments {
		payments = append(payments, domain.Payment{
			AmountCents:   p.AmountCents,
			PaymentDate:   p.PaymentDate.UTC(),
			PaymentMethod: p.PaymentMethod,
			Notes:         p.Notes,
		})
	}
	return domain.Sale{
		ID:                   d.ID,
		InvoiceNumber:        d.InvoiceNumber,
		CustomerID:           d.CustomerID,
		Items:                items,
		TotalAmountCents:     d.TotalAmountCents,
		PaidAmountCents:      d.PaidAmountCents,
		RemainingAmountCents: d.RemainingAmountCents,
		PaymentStatus:        domain.PaymentStatus(d.PaymentStatus),
		SaleType:             domain.SaleType(d.SaleType),
		Payments:             payments,
		Notes:                d.Notes,
		SaleDate:             d.SaleDate.UTC(),
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
}
