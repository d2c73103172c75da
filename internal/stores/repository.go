// Package stores resolves container context for the rest of the system:
// a store, its seller, its lifecycle status and its single enabled source.
package stores

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("store not found")

// SourceKind discriminates the two source shapes.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceUpload SourceKind = "upload"
)

// StoreStatus values accepted by the schema.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusClosed    = "closed"
)

type Store struct {
	ID        uuid.UUID
	SellerID  uuid.UUID
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Source is one configured ingestion source. LastProcessedRow is the resume
// cursor; it only moves forward within a source version and self-heals when
// the underlying sheet shrinks.
type Source struct {
	ID               uuid.UUID
	StoreID          uuid.UUID
	Kind             SourceKind
	URL              *string
	SheetGID         *string
	Bucket           *string
	ObjectKey        *string
	Filename         *string
	ContentType      *string
	Enabled          bool
	Version          int
	LastProcessedRow int
}

// StoreContext is the container resolution consumed as an ingestion precondition.
type StoreContext struct {
	StoreID       uuid.UUID
	SellerID      uuid.UUID
	Status        string
	EnabledSource *Source
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetContext resolves a store id into its seller, status and enabled source.
func (r *Repository) GetContext(ctx context.Context, storeID uuid.UUID) (StoreContext, error) {
	var out StoreContext
	err := r.pool.QueryRow(ctx, `
		SELECT id, seller_id, status
		FROM stores
		WHERE id = $1
	`, storeID).Scan(&out.StoreID, &out.SellerID, &out.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoreContext{}, ErrNotFound
	}
	if err != nil {
		return StoreContext{}, err
	}

	source, err := r.GetEnabledSource(ctx, storeID)
	if err != nil {
		return StoreContext{}, err
	}
	out.EnabledSource = source

	return out, nil
}

// GetEnabledSource returns the store's enabled source, or nil when none is configured.
func (r *Repository) GetEnabledSource(ctx context.Context, storeID uuid.UUID) (*Source, error) {
	var s Source
	err := r.pool.QueryRow(ctx, `
		SELECT id, store_id, kind, url, sheet_gid, bucket, object_key, filename, content_type,
			enabled, source_version, last_processed_row
		FROM sources
		WHERE store_id = $1 AND enabled
	`, storeID).Scan(
		&s.ID, &s.StoreID, &s.Kind, &s.URL, &s.SheetGID, &s.Bucket, &s.ObjectKey,
		&s.Filename, &s.ContentType, &s.Enabled, &s.Version, &s.LastProcessedRow,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetCursor persists the resume cursor for a source. The guard keeps the
// cursor monotone within a source version even under concurrent workers;
// resets (row = 0) always apply.
func (r *Repository) SetCursor(ctx context.Context, sourceID uuid.UUID, row int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sources
		SET last_processed_row = $2, updated_at = now()
		WHERE id = $1 AND (last_processed_row <= $2 OR $2 = 0)
	`, sourceID, row)
	return err
}

// EnableSource enables one source and disables every other source of the
// store, preserving the at-most-one-enabled invariant.
func (r *Repository) EnableSource(ctx context.Context, storeID, sourceID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		UPDATE sources SET enabled = false, updated_at = now()
		WHERE store_id = $1 AND enabled AND id <> $2
	`, storeID, sourceID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sources SET enabled = true, updated_at = now()
		WHERE store_id = $1 AND id = $2
	`, storeID, sourceID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListActiveWithSource returns ids of active stores that have an enabled
// source, for the recurring scan to enqueue ingest runs.
func (r *Repository) ListActiveWithSource(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id
		FROM stores s
		JOIN sources src ON src.store_id = s.id AND src.enabled
		WHERE s.status = 'active'
		ORDER BY s.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
