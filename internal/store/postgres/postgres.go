package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/ledger"
	"dressify/backend/internal/store"
	"dressify/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and the invoice sequence when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || len(product.Sizes) == 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt
	product.Version = 1

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO products (
			id, name, brand_id, category_id, cost_cents, price_cents,
			low_stock_threshold, notes, version, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.CategoryID),
		product.CostCents, product.PriceCents, product.LowStockThreshold, nullIfEmpty(product.Notes),
		product.Version, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
		}
		return nil, err
	}

	for i, bucket := range product.Sizes {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO product_sizes (product_id, position, size, quantity)
			VALUES ($1,$2,$3,$4)
		`, product.ID, i, bucket.Size, bucket.Quantity)
		if err != nil {
			return nil, err
		}
	}
	if err := insertMovements(ctx, pgTx, ledger.IntakeMovements(product, product.CreatedAt)); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := product.Clone()
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	products, err := loadProducts(ctx, s.db, []string{id}, false)
	if err != nil {
		return nil, err
	}
	product, ok := products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, productColumns+` ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	products, order, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if err := attachSizes(ctx, s.db, products, order, false); err != nil {
		return nil, err
	}

	out := make([]domain.Product, 0, len(order))
	for _, id := range order {
		out = append(out, products[id])
	}
	return out, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand_id = $3, category_id = $4, cost_cents = $5, price_cents = $6,
			low_stock_threshold = $7, notes = $8, updated_at = $9, version = version + 1
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.CategoryID),
		product.CostCents, product.PriceCents, product.LowStockThreshold, nullIfEmpty(product.Notes),
		product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, product.ID)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, size string, countedQty int, notes string, at time.Time) (*domain.StockMovement, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	products, err := loadProducts(ctx, pgTx, []string{productID}, true)
	if err != nil {
		return nil, err
	}
	product, ok := products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, productID)
	}
	mv, err := ledger.Adjust(&product, size, countedQty, notes, at)
	if err != nil {
		return nil, err
	}
	if err := writeBuckets(ctx, pgTx, product, at); err != nil {
		return nil, err
	}
	if err := insertMovements(ctx, pgTx, []domain.StockMovement{mv}); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &mv, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, size, old_quantity, new_quantity, change,
			COALESCE(sale_id,''), COALESCE(invoice_number,''), COALESCE(description,''), created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var mv domain.StockMovement
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.Type, &mv.Size, &mv.OldQuantity, &mv.NewQuantity,
			&mv.Change, &mv.SaleID, &mv.InvoiceNumber, &mv.Description, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.CreatedAt = mv.CreatedAt.UTC()
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(movements) == 0 {
		if _, err := s.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
	}
	return movements, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, name, shop_name, market, contact, email, address,
			customer_type, credit_limit_cents, active, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, customer.ID, customer.Name, nullIfEmpty(customer.ShopName), nullIfEmpty(customer.Market),
		nullIfEmpty(customer.Contact), nullIfEmpty(customer.Email), nullIfEmpty(customer.Address),
		customer.CustomerType, customer.CreditLimitCents, customer.Active, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %s already exists", store.ErrValidation, customer.ID)
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

const customerColumns = `
	SELECT id, name, COALESCE(shop_name,''), COALESCE(market,''), COALESCE(contact,''),
		COALESCE(email,''), COALESCE(address,''), customer_type, credit_limit_cents, active, created_at
	FROM customers`

func scanCustomer(scan func(dest ...any) error) (domain.Customer, error) {
	var c domain.Customer
	err := scan(&c.ID, &c.Name, &c.ShopName, &c.Market, &c.Contact, &c.Email, &c.Address,
		&c.CustomerType, &c.CreditLimitCents, &c.Active, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	customer, err := scanCustomer(s.db.QueryRowContext(ctx, customerColumns+` WHERE id = $1`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrCustomerNotFound, id)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, customerColumns+` ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		customer, err := scanCustomer(rows.Scan)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

// CreateSale locks every referenced product row, plans the lines, and writes
// bucket changes, movements and the sale in one transaction.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	products, err := loadProducts(ctx, pgTx, ledger.ProductIDs(draft.Items), true)
	if err != nil {
		return nil, err
	}
	plan, err := ledger.PlanLines(products, draft.Items, draft.CreatedAt)
	if err != nil {
		return nil, err
	}
	// Reject an overpayment before consuming a sequence value.
	if draft.PaidAmountCents > plan.TotalCents {
		return nil, fmt.Errorf("%w: paid amount %d exceeds total %d", store.ErrValidation, draft.PaidAmountCents, plan.TotalCents)
	}

	var seq int64
	if err := pgTx.QueryRowContext(ctx, `SELECT nextval('invoice_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	sale, err := ledger.NewSale(draft, plan, ledger.FormatInvoiceNumber(seq))
	if err != nil {
		return nil, err
	}
	plan.Bind(sale.ID, sale.InvoiceNumber)

	if err := writePlan(ctx, pgTx, plan, draft.CreatedAt); err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, customer_id, total_amount_cents, paid_amount_cents,
			remaining_amount_cents, payment_status, sale_type, notes, sale_date, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.InvoiceNumber, sale.CustomerID, sale.TotalAmountCents, sale.PaidAmountCents,
		sale.RemainingAmountCents, sale.PaymentStatus, sale.SaleType, nullIfEmpty(sale.Notes),
		sale.SaleDate, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
		}
		return nil, err
	}
	if err := insertLines(ctx, pgTx, sale.ID, 0, sale.Items); err != nil {
		return nil, err
	}
	for _, payment := range sale.Payments {
		if err := insertPayment(ctx, pgTx, sale.ID, payment); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) AppendSaleItems(ctx context.Context, saleID string, items []domain.SaleLineRequest, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := loadSale(ctx, pgTx, saleID, true)
	if err != nil {
		return nil, err
	}
	products, err := loadProducts(ctx, pgTx, ledger.ProductIDs(items), true)
	if err != nil {
		return nil, err
	}
	plan, err := ledger.PlanLines(products, items, at)
	if err != nil {
		return nil, err
	}

	firstPosition := len(sale.Items)
	if err := ledger.AppendLines(sale, plan, at); err != nil {
		return nil, err
	}
	plan.Bind(sale.ID, sale.InvoiceNumber)

	if err := writePlan(ctx, pgTx, plan, at); err != nil {
		return nil, err
	}
	if err := updateSaleBalances(ctx, pgTx, *sale); err != nil {
		return nil, err
	}
	if err := insertLines(ctx, pgTx, sale.ID, firstPosition, plan.Lines); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := loadSale(ctx, pgTx, saleID, true)
	if err != nil {
		return nil, err
	}
	if err := ledger.ApplyPayment(sale, payment); err != nil {
		return nil, err
	}
	if err := updateSaleBalances(ctx, pgTx, *sale); err != nil {
		return nil, err
	}
	if err := insertPayment(ctx, pgTx, sale.ID, sale.Payments[len(sale.Payments)-1]); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, saleID string, at time.Time) (*domain.SaleDeletion, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := loadSale(ctx, pgTx, saleID, true)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.SaleLineRequest, 0, len(sale.Items))
	for _, line := range sale.Items {
		ids = append(ids, domain.SaleLineRequest{ProductID: line.ProductID})
	}
	products, err := loadProducts(ctx, pgTx, ledger.ProductIDs(ids), true)
	if err != nil {
		return nil, err
	}

	restoration := ledger.RestoreSale(products, *sale, at)
	for id, product := range restoration.Products {
		if len(restoration.MovementsFor(id)) == 0 {
			continue
		}
		if err := writeBuckets(ctx, pgTx, *product, at); err != nil {
			return nil, err
		}
	}
	if err := insertMovements(ctx, pgTx, restoration.Movements); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &domain.SaleDeletion{
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		Restored:      restoration.Restored,
		Skipped:       restoration.Skipped,
		DeletedAt:     at,
	}, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(cond string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("payment_status = $%d", filter.Status)
	}
	if filter.SaleType != "" {
		add("sale_type = $%d", filter.SaleType)
	}
	if filter.From != nil {
		add("sale_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("sale_date < $%d", *filter.To)
	}

	query := saleColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY sale_date DESC, invoice_number DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]*domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := attachSaleDetails(ctx, s.db, sales); err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		out = append(out, *sale)
	}
	return out, nil
}

const productColumns = `
	SELECT id, name, COALESCE(brand_id,''), COALESCE(category_id,''), cost_cents, price_cents,
		low_stock_threshold, COALESCE(notes,''), version, created_at, updated_at
	FROM products`

func scanProducts(rows *sql.Rows) (map[string]domain.Product, []string, error) {
	defer rows.Close()

	products := make(map[string]domain.Product)
	order := make([]string, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.BrandID, &p.CategoryID, &p.CostCents, &p.PriceCents,
			&p.LowStockThreshold, &p.Notes, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		p.Sizes = []domain.SizeBucket{}
		products[p.ID] = p
		order = append(order, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return products, order, nil
}

// loadProducts reads products with their buckets. With lock set the product
// rows are locked in id order so concurrent sales queue instead of overselling.
func loadProducts(ctx context.Context, q querier, ids []string, lock bool) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	query := productColumns + ` WHERE id = ANY($1) ORDER BY id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	products, order, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if err := attachSizes(ctx, q, products, order, lock); err != nil {
		return nil, err
	}
	return products, nil
}

func attachSizes(ctx context.Context, q querier, products map[string]domain.Product, ids []string, lock bool) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		SELECT product_id, size, quantity
		FROM product_sizes
		WHERE product_id = ANY($1)
		ORDER BY product_id, position`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var bucket domain.SizeBucket
		if err := rows.Scan(&productID, &bucket.Size, &bucket.Quantity); err != nil {
			return err
		}
		p, ok := products[productID]
		if !ok {
			continue
		}
		p.Sizes = append(p.Sizes, bucket)
		products[productID] = p
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, p := range products {
		ledger.EnsureBuckets(&p)
		products[id] = p
	}
	return nil
}

func writeBuckets(ctx context.Context, q querier, product domain.Product, at time.Time) error {
	for _, bucket := range product.Sizes {
		_, err := q.ExecContext(ctx, `
			UPDATE product_sizes
			SET quantity = $3
			WHERE product_id = $1 AND size = $2
		`, product.ID, bucket.Size, bucket.Quantity)
		if err != nil {
			return err
		}
	}
	_, err := q.ExecContext(ctx, `
		UPDATE products SET version = version + 1, updated_at = $2 WHERE id = $1
	`, product.ID, at)
	return err
}

func writePlan(ctx context.Context, q querier, plan *ledger.Plan, at time.Time) error {
	for _, product := range plan.Products {
		if err := writeBuckets(ctx, q, *product, at); err != nil {
			return err
		}
	}
	return insertMovements(ctx, q, plan.Movements)
}

func insertMovements(ctx context.Context, q querier, movements []domain.StockMovement) error {
	for _, mv := range movements {
		_, err := q.ExecContext(ctx, `
			INSERT INTO stock_movements (
				id, product_id, type, size, old_quantity, new_quantity, change,
				sale_id, invoice_number, description, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, mv.ID, mv.ProductID, mv.Type, mv.Size, mv.OldQuantity, mv.NewQuantity, mv.Change,
			nullIfEmpty(mv.SaleID), nullIfEmpty(mv.InvoiceNumber), nullIfEmpty(mv.Description), mv.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `
	SELECT id, invoice_number, customer_id, total_amount_cents, paid_amount_cents,
		remaining_amount_cents, payment_status, sale_type, COALESCE(notes,''), sale_date, created_at, updated_at
	FROM sales`

func scanSale(scan func(dest ...any) error) (*domain.Sale, error) {
	var sale domain.Sale
	if err := scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerID, &sale.TotalAmountCents,
		&sale.PaidAmountCents, &sale.RemainingAmountCents, &sale.PaymentStatus, &sale.SaleType,
		&sale.Notes, &sale.SaleDate, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return nil, err
	}
	sale.SaleDate = sale.SaleDate.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	sale.Items = []domain.SaleLine{}
	sale.Payments = []domain.Payment{}
	return &sale, nil
}

func loadSale(ctx context.Context, q querier, id string, lock bool) (*domain.Sale, error) {
	query := saleColumns + ` WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrSaleNotFound, id)
		}
		return nil, err
	}
	if err := attachSaleDetails(ctx, q, []*domain.Sale{sale}); err != nil {
		return nil, err
	}
	return sale, nil
}

func attachSaleDetails(ctx context.Context, q querier, sales []*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Sale, len(sales))
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		byID[sale.ID] = sale
		ids = append(ids, sale.ID)
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, size, quantity, unit_price_cents,
			total_price_cents, list_price_cents, cost_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return err
	}
	for itemRows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := itemRows.Scan(&saleID, &line.ProductID, &line.ProductName, &line.Size, &line.Quantity,
			&line.UnitPriceCents, &line.TotalPriceCents, &line.ListPriceCents, &line.CostCents); err != nil {
			_ = itemRows.Close()
			return err
		}
		line.ProfitPerUnitCents = line.UnitPriceCents - line.ListPriceCents
		line.TotalProfitCents = line.ProfitPerUnitCents * int64(line.Quantity)
		byID[saleID].Items = append(byID[saleID].Items, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return err
	}
	_ = itemRows.Close()

	paymentRows, err := q.QueryContext(ctx, `
		SELECT sale_id, amount_cents, payment_date, payment_method, COALESCE(notes,'')
		FROM sale_payments
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, id
	`, ids)
	if err != nil {
		return err
	}
	defer paymentRows.Close()
	for paymentRows.Next() {
		var saleID string
		var payment domain.Payment
		if err := paymentRows.Scan(&saleID, &payment.AmountCents, &payment.PaymentDate, &payment.PaymentMethod, &payment.Notes); err != nil {
			return err
		}
		payment.PaymentDate = payment.PaymentDate.UTC()
		byID[saleID].Payments = append(byID[saleID].Payments, payment)
	}
	return paymentRows.Err()
}

func insertLines(ctx context.Context, q querier, saleID string, firstPosition int, lines []domain.SaleLine) error {
	for i, line := range lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, position, product_id, product_name, size, quantity,
				unit_price_cents, total_price_cents, list_price_cents, cost_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, saleID, firstPosition+i, line.ProductID, line.ProductName, line.Size, line.Quantity,
			line.UnitPriceCents, line.TotalPriceCents, line.ListPriceCents, line.CostCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertPayment(ctx context.Context, q querier, saleID string, payment domain.Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sale_payments (sale_id, amount_cents, payment_date, payment_method, notes)
		VALUES ($1,$2,$3,$4,$5)
	`, saleID, payment.AmountCents, payment.PaymentDate, payment.PaymentMethod, nullIfEmpty(payment.Notes))
	return err
}

func updateSaleBalances(ctx context.Context, q querier, sale domain.Sale) error {
	_, err := q.ExecContext(ctx, `
		UPDATE sales
		SET total_amount_cents = $2, paid_amount_cents = $3, remaining_amount_cents = $4,
			payment_status = $5, updated_at = $6
		WHERE id = $1
	`, sale.ID, sale.TotalAmountCents, sale.PaidAmountCents, sale.RemainingAmountCents,
		sale.PaymentStatus, sale.UpdatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
