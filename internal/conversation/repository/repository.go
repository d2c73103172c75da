// Package repository persists conversations, their messages, and the
// conversation job ledger.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("conversation not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so state writes can
// join the orchestrator's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// State values of the conversation machine.
const (
	StateInit          = "init"
	StateAwaitChoice   = "await_choice"
	StateConfirmed     = "confirmed"
	StateCancelled     = "cancelled"
	StateAddressChange = "address_change"
	StateClosed        = "closed"
)

type Conversation struct {
	ID              uuid.UUID
	StoreID         uuid.UUID
	OrderID         uuid.UUID
	State           string
	AddressNeeded   bool
	AddressOK       bool
	PreferredLocale *string
	Channel         *string
	Contact         *string
	LastOutboundID  *string
	ClosedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Body           string
	Payload        []byte
	CreatedAt      time.Time
}

// Order is the slice of the orders row the orchestrator needs.
type Order struct {
	ID          uuid.UUID
	StoreID     uuid.UUID
	ExternalKey string
	Status      string
	TotalAmount *float64
	Customer    *string
	Phone       *string
	ProductName *string
	City        *string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Begin opens the transaction one job run commits atomically.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const conversationColumns = `id, store_id, order_id, state, address_needed, address_ok,
	preferred_locale, channel, contact, last_outbound_id, closed_at, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.StoreID, &c.OrderID, &c.State, &c.AddressNeeded, &c.AddressOK,
		&c.PreferredLocale, &c.Channel, &c.Contact, &c.LastOutboundID,
		&c.ClosedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// GetByID loads a conversation inside q.
func (r *Repository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (Conversation, error) {
	c, err := scanConversation(q.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

// FindByOrder returns the conversation attached to an order, or nil.
func (r *Repository) FindByOrder(ctx context.Context, q Querier, orderID uuid.UUID) (*Conversation, error) {
	c, err := scanConversation(q.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE order_id = $1
	`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type CreateParams struct {
	StoreID uuid.UUID
	OrderID uuid.UUID
	Channel string
	Contact string
	Locale  string
}

// Create inserts a conversation in the init state.
func (r *Repository) Create(ctx context.Context, q Querier, p CreateParams) (Conversation, error) {
	return scanConversation(q.QueryRow(ctx, `
		INSERT INTO conversations (store_id, order_id, state, channel, contact, preferred_locale)
		VALUES ($1, $2, 'init', NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING `+conversationColumns+`
	`, p.StoreID, p.OrderID, p.Channel, p.Contact, p.Locale))
}

// MetaUpdate carries conversation metadata changes; nil fields are untouched.
type MetaUpdate struct {
	State           *string
	AddressNeeded   *bool
	AddressOK       *bool
	PreferredLocale *string
	LastOutboundID  *string
	Close           bool
}

// UpdateMeta applies a metadata update inside q.
func (r *Repository) UpdateMeta(ctx context.Context, q Querier, id uuid.UUID, u MetaUpdate) error {
	_, err := q.Exec(ctx, `
		UPDATE conversations SET
			state            = COALESCE($2, state),
			address_needed   = COALESCE($3, address_needed),
			address_ok       = COALESCE($4, address_ok),
			preferred_locale = COALESCE($5, preferred_locale),
			last_outbound_id = COALESCE($6, last_outbound_id),
			closed_at        = CASE WHEN $7 THEN now() ELSE closed_at END,
			updated_at       = now()
		WHERE id = $1
	`, id, u.State, u.AddressNeeded, u.AddressOK, u.PreferredLocale, u.LastOutboundID, u.Close)
	return err
}

// AppendMessage records one turn. Messages are append-only.
func (r *Repository) AppendMessage(ctx context.Context, q Querier, conversationID uuid.UUID, role, body string, payload []byte) error {
	_, err := q.Exec(ctx, `
		INSERT INTO messages (conversation_id, role, body, payload)
		VALUES ($1, $2, $3, $4)
	`, conversationID, role, body, payload)
	return err
}

// ListRecentMessages returns the trailing n messages in chronological order.
func (r *Repository) ListRecentMessages(ctx context.Context, q Querier, conversationID uuid.UUID, n int) ([]Message, error) {
	rows, err := q.Query(ctx, `
		SELECT id, conversation_id, role, body, payload, created_at
		FROM (
			SELECT id, conversation_id, role, body, payload, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) trailing
		ORDER BY created_at ASC, id ASC
	`, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, n)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Body, &m.Payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetOrder loads the order slice the orchestrator works with.
func (r *Repository) GetOrder(ctx context.Context, q Querier, orderID uuid.UUID) (Order, error) {
	var o Order
	err := q.QueryRow(ctx, `
		SELECT id, store_id, external_key, status, total_amount, customer_name,
			customer_phone, product_name, city
		FROM orders
		WHERE id = $1
	`, orderID).Scan(
		&o.ID, &o.StoreID, &o.ExternalKey, &o.Status, &o.TotalAmount,
		&o.Customer, &o.Phone, &o.ProductName, &o.City,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// DecisionUpdate is the orchestrator's write path onto an order.
type DecisionUpdate struct {
	Status     string
	By         string
	Result     string
	Confidence float32
	Reason     string
}

// UpdateOrderDecision sets status and decision fields inside q.
func (r *Repository) UpdateOrderDecision(ctx context.Context, q Querier, orderID uuid.UUID, u DecisionUpdate) error {
	_, err := q.Exec(ctx, `
		UPDATE orders SET
			status              = $2,
			decision_by         = $3,
			decision_result     = $4,
			decision_confidence = $5,
			decision_reason     = NULLIF($6, ''),
			updated_at          = now()
		WHERE id = $1
	`, orderID, u.Status, u.By, u.Result, u.Confidence, u.Reason)
	return err
}

// ListOrdersAwaitingContact returns orders eligible for conversation
// initiation: ingested, still open, and without a conversation yet.
func (r *Repository) ListOrdersAwaitingContact(ctx context.Context, limit int) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.store_id, o.external_key, o.status, o.total_amount,
			o.customer_name, o.customer_phone, o.product_name, o.city
		FROM orders o
		LEFT JOIN conversations c ON c.order_id = o.id
		WHERE c.id IS NULL AND o.status IN ('new', 'pending')
		ORDER BY o.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.StoreID, &o.ExternalKey, &o.Status, &o.TotalAmount,
			&o.Customer, &o.Phone, &o.ProductName, &o.City); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// JobRecord tracks one queue job in the ledger. Jobs stay open until a clear
// outcome marks them removed.
type JobRecord struct {
	ID             uuid.UUID
	StoreID        uuid.UUID
	OrderID        *uuid.UUID
	ConversationID *uuid.UUID
	Kind           string
	Outcome        *string
	RemovedAt      *time.Time
}

// RecordJob opens a ledger entry for an enqueued conversation job. Ledger
// writes are queue bookkeeping and never join a conversation transaction.
func (r *Repository) RecordJob(ctx context.Context, storeID uuid.UUID, orderID, conversationID *uuid.UUID, kind string, payload []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO conversation_jobs (store_id, order_id, conversation_id, kind, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, storeID, orderID, conversationID, kind, payload).Scan(&id)
	return id, err
}

// ResolveJob records the outcome; removed=true closes the ledger entry.
func (r *Repository) ResolveJob(ctx context.Context, jobID uuid.UUID, outcome string, removed bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_jobs SET
			outcome    = $2,
			removed_at = CASE WHEN $3 THEN now() ELSE removed_at END,
			updated_at = now()
		WHERE id = $1
	`, jobID, outcome, removed)
	return err
}

// CountOpenJobs reports ledger entries still awaiting a clear outcome.
func (r *Repository) CountOpenJobs(ctx context.Context, storeID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM conversation_jobs
		WHERE store_id = $1 AND removed_at IS NULL
	`, storeID).Scan(&n)
	return n, err
}

// ListStaleAwaitingChoice returns conversations stuck in await_choice longer
// than age, for followup re-prompts.
func (r *Repository) ListStaleAwaitingChoice(ctx context.Context, age time.Duration, limit int) ([]Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE state = 'await_choice' AND updated_at < now() - $1::interval
		ORDER BY updated_at
		LIMIT $2
	`, age.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
