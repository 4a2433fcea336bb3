package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dressify/backend/internal/domain"
	"dressify/backend/internal/ledger"
	"dressify/backend/internal/store"
	"dressify/backend/internal/xid"
)

const (
	productsCollection  = "products"
	movementsCollection = "stock_movements"
	customersCollection = "customers"
	salesCollection     = "sales"
	countersCollection  = "counters"

	invoiceCounterID = "invoice"
)

// Store persists the ledger in MongoDB. Multi-document writes run inside a
// transaction, so the deployment must be a replica set.
type Store struct {
	client    *mongo.Client
	products  *mongo.Collection
	movements *mongo.Collection
	customers *mongo.Collection
	sales     *mongo.Collection
	counters  *mongo.Collection
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMaxPoolSize(30)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:    client,
		products:  db.Collection(productsCollection),
		movements: db.Collection(movementsCollection),
		customers: db.Collection(customersCollection),
		sales:     db.Collection(salesCollection),
		counters:  db.Collection(countersCollection),
	}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Migrate creates the indexes the queries below rely on.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.sales: {
			{Keys: bson.D{{Key: "invoiceNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "saleDate", Value: -1}}},
			{Keys: bson.D{{Key: "saleDate", Value: -1}}},
		},
		s.movements: {
			{Keys: bson.D{{Key: "productId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) withTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
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

	err := s.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.products.InsertOne(sessCtx, toProductDoc(product)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
			}
			return err
		}
		return insertMovements(sessCtx, s.movements, ledger.IntakeMovements(product, product.CreatedAt))
	})
	if err != nil {
		return nil, err
	}
	created := product.Clone()
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDoc
	err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	product := doc.domain()
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cursor, err := s.products.Find(ctx, bson.M{}, byNameOptions())
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.domain())
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var doc productDoc
	err := s.products.FindOneAndUpdate(ctx,
		bson.M{"_id": product.ID},
		bson.M{
			"$set": bson.M{
				"name":              product.Name,
				"brandId":           product.BrandID,
				"categoryId":        product.CategoryID,
				"costCents":         product.CostCents,
				"priceCents":        product.PriceCents,
				"lowStockThreshold": product.LowStockThreshold,
				"notes":             product.Notes,
				"updatedAt":         product.UpdatedAt,
			},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, product.ID)
	}
	if err != nil {
		return nil, err
	}
	updated := doc.domain()
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", store.ErrProductNotFound, id)
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, size string, countedQty int, notes string, at time.Time) (*domain.StockMovement, error) {
	var mv domain.StockMovement
	err := s.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		products, err := s.loadProducts(sessCtx, []string{productID})
		if err != nil {
			return err
		}
		product, ok := products[productID]
		if !ok {
			return fmt.Errorf("%w: %s", store.ErrProductNotFound, productID)
		}
		mv, err = ledger.Adjust(&product, size, countedQty, notes, at)
		if err != nil {
			return err
		}
		if err := s.writeBuckets(sessCtx, product, at); err != nil {
			return err
		}
		return insertMovements(sessCtx, s.movements, []domain.StockMovement{mv})
	})
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

// ListStockMovements returns the newest movements first. Movements of deleted
// products stay readable.
func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.movements.Find(ctx, bson.M{"productId": productID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []movementDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		if _, err := s.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
	}
	out := make([]domain.StockMovement, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.domain())
	}
	return out, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, err := s.customers.InsertOne(ctx, toCustomerDoc(customer)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: customer %s already exists", store.ErrValidation, customer.ID)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var doc customerDoc
	err := s.customers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", store.ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	customer := doc.domain()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	cursor, err := s.customers.Find(ctx, bson.M{}, byNameOptions())
	if err != nil {
		return nil, err
	}
	var docs []customerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		customers = append(customers, doc.domain())
	}
	return customers, nil
}

// CreateSale plans the lines against the products read inside the
// transaction and writes each product back with a version check, so a
// concurrent sale on the same product aborts one of the two.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		products, err := s.loadProducts(sessCtx, ledger.ProductIDs(draft.Items))
		if err != nil {
			return err
		}
		plan, err := ledger.PlanLines(products, draft.Items, draft.CreatedAt)
		if err != nil {
			return err
		}
		if draft.PaidAmountCents > plan.TotalCents {
			return fmt.Errorf("%w: paid amount %d exceeds total %d", store.ErrValidation, draft.PaidAmountCents, plan.TotalCents)
		}

		seq, err := s.nextInvoiceSeq(sessCtx)
		if err != nil {
			return err
		}
		sale, err = ledger.NewSale(draft, plan, ledger.FormatInvoiceNumber(seq))
		if err != nil {
			return err
		}
		plan.Bind(sale.ID, sale.InvoiceNumber)

		if err := s.writePlan(sessCtx, plan, draft.CreatedAt); err != nil {
			return err
		}
		if _, err := s.sales.InsertOne(sessCtx, toSaleDoc(sale)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) AppendSaleItems(ctx context.Context, saleID string, items []domain.SaleLineRequest, at time.Time) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var err error
		sale, err = s.loadSale(sessCtx, saleID)
		if err != nil {
			return err
		}
		products, err := s.loadProducts(sessCtx, ledger.ProductIDs(items))
		if err != nil {
			return err
		}
		plan, err := ledger.PlanLines(products, items, at)
		if err != nil {
			return err
		}
		previousUpdate := sale.UpdatedAt
		if err := ledger.AppendLines(sale, plan, at); err != nil {
			return err
		}
		plan.Bind(sale.ID, sale.InvoiceNumber)

		if err := s.writePlan(sessCtx, plan, at); err != nil {
			return err
		}
		return s.replaceSale(sessCtx, *sale, previousUpdate)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var err error
		sale, err = s.loadSale(sessCtx, saleID)
		if err != nil {
			return err
		}
		previousUpdate := sale.UpdatedAt
		if err := ledger.ApplyPayment(sale, payment); err != nil {
			return err
		}
		return s.replaceSale(sessCtx, *sale, previousUpdate)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, saleID string, at time.Time) (*domain.SaleDeletion, error) {
	var deletion *domain.SaleDeletion
	err := s.withTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		sale, err := s.loadSale(sessCtx, saleID)
		if err != nil {
			return err
		}
		refs := make([]domain.SaleLineRequest, 0, len(sale.Items))
		for _, line := range sale.Items {
			refs = append(refs, domain.SaleLineRequest{ProductID: line.ProductID})
		}
		products, err := s.loadProducts(sessCtx, ledger.ProductIDs(refs))
		if err != nil {
			return err
		}

		restoration := ledger.RestoreSale(products, *sale, at)
		for id, product := range restoration.Products {
			if len(restoration.MovementsFor(id)) == 0 {
				continue
			}
			if err := s.writeBuckets(sessCtx, *product, at); err != nil {
				return err
			}
		}
		if err := insertMovements(sessCtx, s.movements, restoration.Movements); err != nil {
			return err
		}
		if _, err := s.sales.DeleteOne(sessCtx, bson.M{"_id": saleID}); err != nil {
			return err
		}

		deletion = &domain.SaleDeletion{
			SaleID:        sale.ID,
			InvoiceNumber: sale.InvoiceNumber,
			Restored:      restoration.Restored,
			Skipped:       restoration.Skipped,
			DeletedAt:     at,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deletion, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.loadSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customerId"] = filter.CustomerID
	}
	if filter.Status != "" {
		query["paymentStatus"] = string(filter.Status)
	}
	if filter.SaleType != "" {
		query["saleType"] = string(filter.SaleType)
	}
	if filter.From != nil || filter.To != nil {
		dateRange := bson.M{}
		if filter.From != nil {
			dateRange["$gte"] = *filter.From
		}
		if filter.To != nil {
			dateRange["$lt"] = *filter.To
		}
		query["saleDate"] = dateRange
	}

	opts := options.Find().SetSort(bson.D{{Key: "saleDate", Value: -1}, {Key: "invoiceNumber", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.sales.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var docs []saleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(docs))
	for _, doc := range docs {
		sales = append(sales, doc.domain())
	}
	return sales, nil
}

func (s *Store) loadProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	cursor, err := s.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		products[doc.ID] = doc.domain()
	}
	return products, nil
}

// writeBuckets stores product's sizes if nobody bumped its version since it
// was read, and increments the version.
func (s *Store) writeBuckets(ctx context.Context, product domain.Product, at time.Time) error {
	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": product.ID, "version": product.Version},
		bson.M{
			"$set": bson.M{"sizes": toBucketDocs(product.Sizes), "updatedAt": at},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: product %s changed while it was being updated", store.ErrConflict, product.ID)
	}
	return nil
}

func (s *Store) writePlan(ctx context.Context, plan *ledger.Plan, at time.Time) error {
	for _, product := range plan.Products {
		if err := s.writeBuckets(ctx, *product, at); err != nil {
			return err
		}
	}
	return insertMovements(ctx, s.movements, plan.Movements)
}

// replaceSale overwrites the sale document if its updatedAt still matches
// the value read earlier in the transaction.
func (s *Store) replaceSale(ctx context.Context, sale domain.Sale, previousUpdate time.Time) error {
	res, err := s.sales.ReplaceOne(ctx, bson.M{"_id": sale.ID, "updatedAt": previousUpdate}, toSaleDoc(sale))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: sale %s changed while it was being updated", store.ErrConflict, sale.ID)
	}
	return nil
}

func (s *Store) loadSale(ctx context.Context, id string) (*domain.Sale, error) {
	var doc saleDoc
	err := s.sales.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", store.ErrSaleNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	sale := doc.domain()
	return &sale, nil
}

// nextInvoiceSeq increments the invoice counter. Deleted sales never give
// their number back.
func (s *Store) nextInvoiceSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": invoiceCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next invoice number: %w", err)
	}
	return counter.Seq, nil
}

func insertMovements(ctx context.Context, coll *mongo.Collection, movements []domain.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	_, err := coll.InsertMany(ctx, toMovementDocs(movements))
	return err
}

// byNameOptions sorts by name ignoring case, matching the other stores.
func byNameOptions() *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetCollation(&options.Collation{Locale: "en", Strength: 2})
}
