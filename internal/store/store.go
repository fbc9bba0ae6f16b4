// Package store is the tenant-scoped query layer. Every query it builds is
// filtered by the tenant in the context and hides soft-deleted rows unless
// the caller opts out explicitly.
package store

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// Columns that no update may write.
var protectedColumns = []string{"id", "uuid", "tenant_id", "created_at", "deleted_at"}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle, bound to a transaction inside Transaction.
func (s *Store) DB() *gorm.DB {
	return s.db
}

type options struct {
	skipTenant     bool
	includeDeleted bool
}

type Option func(*options)

// SkipTenantFilter bypasses the tenant predicate. Reserved for platform-admin
// handlers, the tenant table and bootstrap.
func SkipTenantFilter() Option {
	return func(o *options) { o.skipTenant = true }
}

// IncludeDeleted returns soft-deleted rows as well.
func IncludeDeleted() Option {
	return func(o *options) { o.includeDeleted = true }
}

func apply(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

// Query returns a builder for model scoped to the context's tenant.
func (s *Store) Query(ctx context.Context, model interface{}, opts ...Option) (*gorm.DB, error) {
	o := apply(opts)
	q := s.db.WithContext(ctx).Model(model)
	if o.includeDeleted {
		q = q.Unscoped()
	}
	if o.skipTenant {
		return q, nil
	}
	tenantID, err := tenancy.MustTenant(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("query without tenant context", zap.String("entity", Name(model)))
		return nil, err
	}
	return q.Where(clause.Eq{Column: column("tenant_id"), Value: tenantID}), nil
}

// Insert stamps the record with the context's tenant and creates it.
// Under SkipTenantFilter a tenant set by the caller is kept.
func (s *Store) Insert(ctx context.Context, e models.Entity, opts ...Option) error {
	o := apply(opts)
	b := e.GetBase()

	if o.skipTenant {
		if b.TenantID == 0 {
			tenantID, err := tenancy.MustTenant(ctx)
			if err != nil {
				return err
			}
			b.TenantID = tenantID
		}
	} else {
		tenantID, err := tenancy.MustTenant(ctx)
		if err != nil {
			logger.FromContext(ctx).Error("insert without tenant context", zap.String("entity", Name(e)))
			return err
		}
		if b.TenantID != 0 && b.TenantID != tenantID {
			return s.mismatch(ctx, e, "insert")
		}
		b.TenantID = tenantID
	}

	return apperr.FromDB(s.db.WithContext(ctx).Create(e).Error, Name(e), "create")
}

// Update writes every column of e except the protected ones. With fields,
// only those columns are written.
func (s *Store) Update(ctx context.Context, e models.Entity, fields ...string) error {
	tenantID, err := s.writeTenant(ctx, e, "update")
	if err != nil {
		return err
	}

	q := s.db.WithContext(ctx).Model(e).Where(clause.Eq{Column: column("tenant_id"), Value: tenantID})
	if len(fields) > 0 {
		q = q.Select(fields)
	} else {
		q = q.Select("*")
	}
	res := q.Omit(protectedColumns...).Updates(e)
	if res.Error != nil {
		return apperr.FromDB(res.Error, Name(e), "update")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(Name(e))
	}
	return nil
}

// SoftDelete marks the record deleted.
func (s *Store) SoftDelete(ctx context.Context, e models.Entity) error {
	tenantID, err := s.writeTenant(ctx, e, "delete")
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Where(clause.Eq{Column: column("tenant_id"), Value: tenantID}).Delete(e)
	if res.Error != nil {
		return apperr.FromDB(res.Error, Name(e), "delete")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(Name(e))
	}
	return nil
}

// FindByUUID loads dst by its external identifier within scope.
func (s *Store) FindByUUID(ctx context.Context, dst models.Entity, uuid string, opts ...Option) error {
	q, err := s.Query(ctx, dst, opts...)
	if err != nil {
		return err
	}
	err = q.Where(clause.Eq{Column: column("uuid"), Value: uuid}).First(dst).Error
	return apperr.FromDB(err, Name(dst), "load")
}

// List fills dst (a pointer to a slice of model) with one page, newest first.
// filter may add the caller's predicates.
func (s *Store) List(ctx context.Context, model, dst interface{}, page Page, filter func(*gorm.DB) *gorm.DB, opts ...Option) error {
	q, err := s.Query(ctx, model, opts...)
	if err != nil {
		return err
	}
	if filter != nil {
		q = filter(q)
	}
	page = page.Normalize()
	err = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: column("created_at"), Desc: true},
		{Column: column("id"), Desc: true},
	}}).Offset(page.Skip).Limit(page.Limit).Find(dst).Error
	return apperr.FromDB(err, Name(model), "list")
}

// Exists reports whether a row matching the condition is visible in scope.
func (s *Store) Exists(ctx context.Context, model interface{}, query interface{}, args ...interface{}) (bool, error) {
	q, err := s.Query(ctx, model)
	if err != nil {
		return false, err
	}
	var n int64
	if err := q.Where(query, args...).Count(&n).Error; err != nil {
		return false, apperr.FromDB(err, Name(model), "count")
	}
	return n > 0, nil
}

// Transaction runs fn with a store bound to one transaction. Any error,
// or a cancelled context, rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// writeTenant resolves the tenant a write runs in and checks the record
// belongs to it. Platform-admin writes under SkipTenantFilter are not
// routed here; they run in the record's own tenant via tenancy.Run.
func (s *Store) writeTenant(ctx context.Context, e models.Entity, op string) (uint, error) {
	tenantID, err := tenancy.MustTenant(ctx)
	if err != nil {
		logger.FromContext(ctx).Error(op+" without tenant context", zap.String("entity", Name(e)))
		return 0, err
	}
	if e.GetBase().TenantID != tenantID {
		return 0, s.mismatch(ctx, e, op)
	}
	return tenantID, nil
}

// mismatch logs the programming error without the record's tenant.
func (s *Store) mismatch(ctx context.Context, e models.Entity, op string) error {
	logger.FromContext(ctx).Error("tenant mismatch on write",
		zap.String("entity", Name(e)),
		zap.String("uuid", e.GetBase().UUID),
		zap.String("operation", op),
	)
	return apperr.TenantMismatch(Name(e))
}

// Name derives a readable entity name from the table name,
// e.g. "crm_sales_orders" becomes "sales_order".
func Name(model interface{}) string {
	type namer interface{ EntityType() string }
	if n, ok := model.(namer); ok {
		return n.EntityType()
	}
	type tabler interface{ TableName() string }
	t, ok := model.(tabler)
	if !ok {
		return "record"
	}
	name := t.TableName()
	if i := strings.Index(name, "_"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "s")
}
