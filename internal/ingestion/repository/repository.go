// Package repository persists ingested orders and products. Upserts are
// keyed by (store_id, unique key) and merge only the fields a row actually
// carried, leaving everything else untouched.
package repository

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Begin opens a transaction for one chunk.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// AdvisoryKey derives a stable 64-bit lock key from a namespace and id.
func AdvisoryKey(namespace string, id uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(id[:])
	return int64(h.Sum64())
}

// TryAdvisoryLock attempts a non-blocking transaction-scoped advisory lock.
// The lock releases automatically when the transaction ends.
func (r *Repository) TryAdvisoryLock(ctx context.Context, tx pgx.Tx, key int64) (bool, error) {
	var acquired bool
	err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key).Scan(&acquired)
	return acquired, err
}

// OrderUpsert carries one mapped row. Nil optional fields mean "the source
// did not say", and the merge leaves the stored value unchanged.
type OrderUpsert struct {
	StoreID     uuid.UUID
	ExternalKey string
	Status      string
	Raw         map[string]string
	TotalAmount *float64
	Customer    *string
	Phone       *string
	Address     *string
	City        *string
	ProductName *string
	Quantity    *int
	OrderedAt   *time.Time
}

// UpsertOrder inserts or merges one order inside the chunk's transaction.
func (r *Repository) UpsertOrder(ctx context.Context, tx pgx.Tx, p OrderUpsert) error {
	raw, err := json.Marshal(p.Raw)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			store_id, external_key, status, raw, total_amount, customer_name,
			customer_phone, customer_address, city, product_name, quantity, ordered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (store_id, external_key) DO UPDATE SET
			-- once a conversation decided the order, the sheet no longer owns status
			status           = CASE WHEN orders.decision_by IS NULL THEN EXCLUDED.status ELSE orders.status END,
			raw              = EXCLUDED.raw,
			total_amount     = COALESCE(EXCLUDED.total_amount, orders.total_amount),
			customer_name    = COALESCE(EXCLUDED.customer_name, orders.customer_name),
			customer_phone   = COALESCE(EXCLUDED.customer_phone, orders.customer_phone),
			customer_address = COALESCE(EXCLUDED.customer_address, orders.customer_address),
			city             = COALESCE(EXCLUDED.city, orders.city),
			product_name     = COALESCE(EXCLUDED.product_name, orders.product_name),
			quantity         = COALESCE(EXCLUDED.quantity, orders.quantity),
			ordered_at       = COALESCE(EXCLUDED.ordered_at, orders.ordered_at),
			updated_at       = now()
	`,
		p.StoreID, p.ExternalKey, p.Status, raw, p.TotalAmount, p.Customer,
		p.Phone, p.Address, p.City, p.ProductName, p.Quantity, p.OrderedAt,
	)
	return err
}

// ProductUpsert carries one mapped product row.
type ProductUpsert struct {
	StoreID  uuid.UUID
	SKU      string
	Name     *string
	Price    *float64
	Stock    *int
	Category *string
	Raw      map[string]string
}

// UpsertProduct inserts or merges one product inside the chunk's transaction.
func (r *Repository) UpsertProduct(ctx context.Context, tx pgx.Tx, p ProductUpsert) error {
	raw, err := json.Marshal(p.Raw)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO products (store_id, sku, name, price, stock, category, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (store_id, sku) DO UPDATE SET
			name       = COALESCE(EXCLUDED.name, products.name),
			price      = COALESCE(EXCLUDED.price, products.price),
			stock      = COALESCE(EXCLUDED.stock, products.stock),
			category   = COALESCE(EXCLUDED.category, products.category),
			raw        = EXCLUDED.raw,
			updated_at = now()
	`, p.StoreID, p.SKU, p.Name, p.Price, p.Stock, p.Category, raw)
	return err
}
