package repositorycache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-datatable-engine/cache"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// CachedRepository decorates a base repository with entity read
// caching and listing cache invalidation on writes.
type CachedRepository[T any] struct {
	base       repository.Repository[T]
	manager    *cache.Manager
	listingCtx string
	ttl        time.Duration
}

// New creates a CachedRepository wrapping the base repository. The
// listing context names the cache key space invalidated on writes;
// when empty it is derived from the entity type name.
func New[T any](base repository.Repository[T], manager *cache.Manager, listingCtx string, ttl time.Duration) *CachedRepository[T] {
	if listingCtx == "" {
		var zero T
		listingCtx = toSnake(typeName(reflect.TypeOf(zero)))
	}
	return &CachedRepository[T]{
		base:       base,
		manager:    manager,
		listingCtx: listingCtx,
		ttl:        ttl,
	}
}

// ListingContext returns the listing cache context writes invalidate.
func (c *CachedRepository[T]) ListingContext() string { return c.listingCtx }

// Get retrieves a single record using the provided criteria. Criteria
// are closures without a stable serialization, so this read passes
// through uncached.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.Get(ctx, criteria...)
}

// GetByID retrieves a record by ID. Cached when no extra criteria are
// supplied.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return cache.GetOrFetch(ctx, c.manager, cache.TypeEntity, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id)
	}, c.listingCtx, "id", id)
}

// GetByIdentifier retrieves a record by identifier. Cached when no
// extra criteria are supplied.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	return cache.GetOrFetch(ctx, c.manager, cache.TypeEntity, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier)
	}, c.listingCtx, "identifier", identifier)
}

// List retrieves multiple records. Listing pages are cached by the
// query engine, not here; this read passes through.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.List(ctx, criteria...)
}

// Count returns the number of records matching the criteria.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// Create creates a new record and invalidates the entity's listing
// caches.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateListings(ctx)
	}
	return result, err
}

// CreateTx creates a new record within a transaction.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateListings(ctx)
	}
	return result, err
}

// CreateMany creates multiple records.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateListings(ctx)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction.
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateListings(ctx)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist. The
// call may have created a record, so listings are invalidated.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateListings(ctx)
	}
	return result, err
}

// GetOrCreateTx gets or creates a record within a transaction.
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateListings(ctx)
	}
	return result, err
}

// Update updates a record, dropping its cached reads and the entity's
// listing caches.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction.
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records.
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction.
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Upsert inserts or updates a record.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction.
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records.
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a
// transaction.
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Delete deletes a record.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction.
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria. The affected
// records are unknown, so the whole entity type is cleared.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateEntityType(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records within a transaction.
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateEntityType(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateEntityType(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a
// transaction.
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateEntityType(ctx)
	}
	return err
}

// ForceDelete force deletes a record, bypassing soft delete.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction.
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// GetTx retrieves a single record within a transaction, uncached.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID within a transaction, uncached.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records within a transaction, uncached.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx counts records within a transaction, uncached.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier within a
// transaction, uncached.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository.
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// invalidateListings sweeps the listing caches for this entity's
// context, any extra contexts attached to the call context, and the
// entity's cached statistics.
func (c *CachedRepository[T]) invalidateListings(ctx context.Context) {
	for _, listingCtx := range append([]string{c.listingCtx}, invalidationContextsFrom(ctx)...) {
		c.manager.InvalidateListing(ctx, listingCtx)
	}
	c.manager.Clear(ctx, cache.TypeStats)
}

// invalidateRecord drops the record's cached reads on top of the
// listing sweep.
func (c *CachedRepository[T]) invalidateRecord(ctx context.Context, record T) {
	if id, err := extractField(record, "ID", "Id"); err == nil {
		c.manager.Delete(ctx, cache.TypeEntity, c.listingCtx, "id", id)
	}
	if identifier, err := extractField(record, "Identifier", "Name", "Code"); err == nil {
		c.manager.Delete(ctx, cache.TypeEntity, c.listingCtx, "identifier", identifier)
	}
	c.invalidateListings(ctx)
}

func (c *CachedRepository[T]) invalidateRecords(ctx context.Context, records []T) {
	for _, record := range records {
		if id, err := extractField(record, "ID", "Id"); err == nil {
			c.manager.Delete(ctx, cache.TypeEntity, c.listingCtx, "id", id)
		}
	}
	c.invalidateListings(ctx)
}

// invalidateEntityType handles criteria-based writes where the
// affected records are unknown: every cached read for the entity goes.
func (c *CachedRepository[T]) invalidateEntityType(ctx context.Context) {
	c.manager.Invalidate(ctx, cache.TypeEntity, c.listingCtx)
	c.invalidateListings(ctx)
}

// extractField reads the first matching exported field from a record
// using reflection.
func extractField[T any](record T, names ...string) (string, error) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", fmt.Errorf("nil record")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record is not a struct")
	}

	for _, name := range names {
		field := v.FieldByName(name)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprintf("%v", field.Interface()), nil
		}
	}
	return "", fmt.Errorf("no field among %v found in record", names)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "entity"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "entity"
	}
	return t.Name()
}
