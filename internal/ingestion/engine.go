// Package ingestion orchestrates one ingest run: fetch the source once, build
// the column mapping against the full row set, then upsert rows in chunked
// transactions guarded by a per-store advisory lock, advancing a resumable
// cursor as chunks succeed.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"orderdesk_backend/internal/ingestion/fetcher"
	"orderdesk_backend/internal/ingestion/mapper"
	"orderdesk_backend/internal/ingestion/repository"
	"orderdesk_backend/internal/ingestion/status"
	"orderdesk_backend/internal/stores"
	"orderdesk_backend/platform/apperr"
	"orderdesk_backend/platform/logger"
	"orderdesk_backend/platform/phone"

	"github.com/google/uuid"
)

type Engine struct {
	stores     *stores.Repository
	repo       *repository.Repository
	fetcher    *fetcher.Fetcher
	mapper     *mapper.Mapper
	normalizer *status.Normalizer
	allowed    status.AllowedProvider
	chunkSize  int
	log        *logger.Logger
}

func NewEngine(
	storeRepo *stores.Repository,
	repo *repository.Repository,
	f *fetcher.Fetcher,
	m *mapper.Mapper,
	n *status.Normalizer,
	allowed status.AllowedProvider,
	chunkSize int,
	log *logger.Logger,
) *Engine {
	if chunkSize < 1 {
		chunkSize = 250
	}
	return &Engine{
		stores:     storeRepo,
		repo:       repo,
		fetcher:    f,
		mapper:     m,
		normalizer: n,
		allowed:    allowed,
		chunkSize:  chunkSize,
		log:        log,
	}
}

// RunParams triggers one ingest run. Source and Mapping override the store's
// configured source for one-off runs; overrides do not touch the cursor.
type RunParams struct {
	StoreID uuid.UUID       `json:"storeId" validate:"required"`
	Source  *fetcher.Source `json:"source,omitempty"`
	Mapping *mapper.Mapping `json:"mapping,omitempty"`
	Entity  mapper.Entity   `json:"entity,omitempty" validate:"omitempty,oneof=orders products"`
	Limit   int             `json:"limit,omitempty" validate:"gte=0"`
}

// Run executes one ingest run end to end. Errors inside a chunk are contained:
// the chunk is logged and skipped, and the run continues.
func (e *Engine) Run(ctx context.Context, p RunParams) error {
	log := e.log.WithStore(p.StoreID)

	storeCtx, err := e.stores.GetContext(ctx, p.StoreID)
	if err != nil {
		if err == stores.ErrNotFound {
			return apperr.NotFound("store not found").WithOp("ingest")
		}
		return err
	}
	if storeCtx.Status != stores.StatusActive {
		return apperr.Precondition(fmt.Sprintf("store is %s, not active", storeCtx.Status)).WithOp("ingest")
	}

	src, configured, err := e.resolveSource(storeCtx, p)
	if err != nil {
		return err
	}

	entity := p.Entity
	if entity == "" {
		entity = mapper.EntityOrders
	}

	table, err := e.fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}

	// Map against the full row set for best heuristic coverage, even though
	// only rows at or after the resume offset are applied.
	mapping := e.mapper.Map(ctx, table.Headers, entity, table.Rows, p.Mapping)
	if mapping.Fields[mapping.UniqueKey] == "" {
		return apperr.Validation("no usable unique-key column in source").WithOp("ingest")
	}

	offset := 0
	if configured != nil {
		offset = resumeOffset(configured.LastProcessedRow, len(table.Rows))
		if offset == 0 && configured.LastProcessedRow > 0 {
			log.Info("source cursor out of range, reset to 0",
				"cursor", configured.LastProcessedRow, "rows", len(table.Rows))
			if err := e.stores.SetCursor(ctx, configured.ID, 0); err != nil {
				return err
			}
		}
	}

	rows := table.Rows[offset:]
	if p.Limit > 0 && p.Limit < len(rows) {
		rows = rows[:p.Limit]
	}
	if len(rows) == 0 {
		log.Debug("no rows past cursor", "cursor", offset)
		return nil
	}

	allowed, err := e.allowed.AllowedStatuses(ctx)
	if err != nil {
		return err
	}

	headerIndex := make(map[string]int, len(table.Headers))
	for i, h := range table.Headers {
		headerIndex[h] = i
	}

	lockKey := repository.AdvisoryKey("ingest", p.StoreID)
	cursorBlocked := false

	for chunk, bounds := range chunkRanges(len(rows), e.chunkSize) {
		err := e.runChunk(ctx, chunkInput{
			storeID:     p.StoreID,
			entity:      entity,
			mapping:     mapping,
			headerIndex: headerIndex,
			rows:        rows[bounds[0]:bounds[1]],
			rowBase:     offset + bounds[0],
			allowed:     allowed,
			lockKey:     lockKey,
		})
		if err != nil {
			// Contained: later chunks still run, but the cursor must not
			// move past unfinished rows. The next scheduled run retries them.
			cursorBlocked = true
			noteChunkFailure(log, p.StoreID, chunk, err)
			continue
		}
		if configured != nil && !cursorBlocked {
			if err := e.stores.SetCursor(ctx, configured.ID, offset+bounds[1]); err != nil {
				return err
			}
		}
	}

	return nil
}

// resolveSource picks the override source when supplied, otherwise the
// store's single enabled source. configured is non-nil only for the enabled
// source, whose cursor participates in the run.
func (e *Engine) resolveSource(storeCtx stores.StoreContext, p RunParams) (fetcher.Source, *stores.Source, error) {
	if p.Source != nil {
		return *p.Source, nil, nil
	}

	enabled := storeCtx.EnabledSource
	if enabled == nil {
		return fetcher.Source{}, nil, apperr.Precondition("store has no enabled source").WithOp("ingest")
	}

	src := fetcher.Source{Kind: fetcher.SourceKind(enabled.Kind)}
	if enabled.URL != nil {
		src.URL = *enabled.URL
	}
	if enabled.SheetGID != nil {
		src.SheetGID = *enabled.SheetGID
	}
	if enabled.Bucket != nil {
		src.Bucket = *enabled.Bucket
	}
	if enabled.ObjectKey != nil {
		src.ObjectKey = *enabled.ObjectKey
	}
	if enabled.Filename != nil {
		src.Filename = *enabled.Filename
	}
	if enabled.ContentType != nil {
		src.ContentType = *enabled.ContentType
	}
	return src, enabled, nil
}

// errStoreBusy marks a chunk skipped because another worker holds the store's
// ingest lock. Expected during overlapping runs, not a failure.
var errStoreBusy = errors.New("store busy, ingest lock held elsewhere")

// noteChunkFailure logs one contained chunk failure. Lock contention is a
// routine skip and stays at Debug; everything else is an error.
func noteChunkFailure(log *logger.Logger, storeID uuid.UUID, chunk int, err error) {
	if errors.Is(err, errStoreBusy) {
		log.Debug("store busy, chunk deferred", "chunk", chunk)
		return
	}
	log.ChunkError(storeID, chunk, err)
}

type chunkInput struct {
	storeID     uuid.UUID
	entity      mapper.Entity
	mapping     mapper.Mapping
	headerIndex map[string]int
	rows        [][]string
	rowBase     int
	allowed     status.AllowedSet
	lockKey     int64
}

// runChunk processes one chunk inside a single transaction. The advisory
// lock is non-blocking: a busy store means another worker is ingesting, and
// this chunk is skipped in favor of the next scheduled run.
func (e *Engine) runChunk(ctx context.Context, in chunkInput) error {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	acquired, err := e.repo.TryAdvisoryLock(ctx, tx, in.lockKey)
	if err != nil {
		return err
	}
	if !acquired {
		return errStoreBusy
	}

	for i, row := range in.rows {
		values := applyMapping(in.mapping, in.headerIndex, row)

		key := values[in.mapping.UniqueKey]
		if key == "" {
			e.log.RowSkipped(in.storeID, in.rowBase+i, "empty unique key")
			continue
		}

		if in.entity == mapper.EntityProducts {
			err = e.repo.UpsertProduct(ctx, tx, buildProduct(in.storeID, key, values))
		} else {
			upsert := e.buildOrder(ctx, in.storeID, key, values, in.allowed)
			err = e.repo.UpsertOrder(ctx, tx, upsert)
		}
		if err != nil {
			return fmt.Errorf("upsert row %d: %w", in.rowBase+i, err)
		}
	}

	return tx.Commit(ctx)
}

// applyMapping projects one source row onto canonical field names.
func applyMapping(m mapper.Mapping, headerIndex map[string]int, row []string) map[string]string {
	values := make(map[string]string, len(m.Fields))
	for field, header := range m.Fields {
		idx, ok := headerIndex[header]
		if !ok || idx >= len(row) {
			continue
		}
		values[field] = row[idx]
	}
	return values
}

func (e *Engine) buildOrder(ctx context.Context, storeID uuid.UUID, key string, values map[string]string, allowed status.AllowedSet) repository.OrderUpsert {
	up := repository.OrderUpsert{
		StoreID:     storeID,
		ExternalKey: key,
		Status:      e.normalizer.Normalize(ctx, values["status"], allowed),
		Raw:         values,
	}

	if amount, ok := ParseAmount(values["total_amount"]); ok {
		up.TotalAmount = &amount
	}
	if qty, ok := ParseQuantity(values["quantity"]); ok {
		up.Quantity = &qty
	}
	if t, ok := ParseDate(values["created_at"]); ok {
		up.OrderedAt = &t
	}
	if v := values["customer_name"]; v != "" {
		up.Customer = &v
	}
	if v := values["customer_phone"]; v != "" {
		normalized := phone.NormalizeE164(v)
		up.Phone = &normalized
	}
	if v := values["customer_address"]; v != "" {
		up.Address = &v
	}
	if v := values["city"]; v != "" {
		up.City = &v
	}
	if v := values["product_name"]; v != "" {
		up.ProductName = &v
	}
	return up
}

func buildProduct(storeID uuid.UUID, key string, values map[string]string) repository.ProductUpsert {
	up := repository.ProductUpsert{
		StoreID: storeID,
		SKU:     key,
		Raw:     values,
	}
	if v := values["name"]; v != "" {
		up.Name = &v
	}
	if price, ok := ParseAmount(values["price"]); ok {
		up.Price = &price
	}
	if stock, ok := ParseQuantity(values["stock"]); ok {
		up.Stock = &stock
	}
	if v := values["category"]; v != "" {
		up.Category = &v
	}
	return up
}

// resumeOffset computes where this run starts. A cursor beyond the current
// row count means the source shrank or changed; it self-heals to 0.
func resumeOffset(cursor, totalRows int) int {
	if cursor < 0 || cursor > totalRows {
		return 0
	}
	return cursor
}

// chunkRanges partitions n rows into [start, end) ranges of at most size.
func chunkRanges(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	ranges := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}
