package status

import (
	"context"
	"regexp"
	"sync"

	"orderdesk_backend/platform/apperr"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AllowedProvider supplies the allowed canonical statuses for the target
// schema. The runtime implementation introspects the destination constraint;
// tests inject a fixed set.
type AllowedProvider interface {
	AllowedStatuses(ctx context.Context) (AllowedSet, error)
}

// FixedProvider returns a constant set.
type FixedProvider struct {
	Set AllowedSet
}

func (p FixedProvider) AllowedStatuses(ctx context.Context) (AllowedSet, error) {
	return p.Set, nil
}

// SchemaProvider discovers the allowed set from the orders status check
// constraint, memoized process-wide and clearable for tests.
type SchemaProvider struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	cached *AllowedSet
}

func NewSchemaProvider(pool *pgxpool.Pool) *SchemaProvider {
	return &SchemaProvider{pool: pool}
}

var quotedLiteral = regexp.MustCompile(`'([^']+)'`)

func (p *SchemaProvider) AllowedStatuses(ctx context.Context) (AllowedSet, error) {
	p.mu.Lock()
	if p.cached != nil {
		set := *p.cached
		p.mu.Unlock()
		return set, nil
	}
	p.mu.Unlock()

	var definition string
	err := p.pool.QueryRow(ctx, `
		SELECT pg_get_constraintdef(oid)
		FROM pg_constraint
		WHERE conname = 'orders_status_check'
	`).Scan(&definition)
	if err != nil {
		return AllowedSet{}, apperr.Wrap(apperr.KindUnavailable, "introspect status constraint", err)
	}

	var values []string
	for _, match := range quotedLiteral.FindAllStringSubmatch(definition, -1) {
		values = append(values, match[1])
	}
	if len(values) == 0 {
		return AllowedSet{}, apperr.Internal("status constraint has no literal members")
	}

	set := NewAllowedSet(values)
	p.mu.Lock()
	p.cached = &set
	p.mu.Unlock()
	return set, nil
}

// Clear drops the memoized set so the next call re-introspects.
func (p *SchemaProvider) Clear() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
