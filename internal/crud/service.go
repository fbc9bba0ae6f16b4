// Package crud is the generic create/list/get/update/delete shape every
// business resource is built from.
package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/statemachine"
	"github.com/xelth-com/riveredgego/internal/store"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// Record is a pointer to a tenant-owned model.
type Record[T any] interface {
	*T
	models.Entity
}

// Definition configures one resource.
type Definition[T any] struct {
	EntityType string
	// CodeRule mints the business code when a create omits it.
	CodeRule string
	// InitialStatus is written through the state engine on create.
	InitialStatus models.Status
	// Filters maps query parameters to predicates.
	Filters map[string]Filter
	// Defaults prepares a fresh record before input is decoded onto it.
	Defaults func(rec *T)
	// Check runs inside the write transaction on create and update.
	Check func(ctx context.Context, tx *store.Store, rec *T) error
}

// Fields no patch may name.
var immutableFields = map[string]bool{
	"id": true, "uuid": true, "tenant_id": true, "created_at": true, "updated_at": true, "deleted_at": true,
}

type Service[T any, PT Record[T]] struct {
	def     Definition[T]
	store   *store.Store
	codes   *codegen.Generator
	engine  *statemachine.Engine
	now     func() time.Time
	columns map[string]string
}

// NewService builds a service. codes and engine may be nil for resources
// without business codes or lifecycle.
func NewService[T any, PT Record[T]](db *gorm.DB, codes *codegen.Generator, engine *statemachine.Engine, def Definition[T]) (*Service[T, PT], error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(PT(new(T))); err != nil {
		return nil, err
	}
	columns := make(map[string]string)
	for _, f := range stmt.Schema.Fields {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" || f.DBName == "" {
			continue
		}
		columns[name] = f.DBName
	}

	svc := &Service[T, PT]{def: def, store: store.New(db), codes: codes, engine: engine, now: time.Now, columns: columns}
	if def.CodeRule != "" && codes == nil {
		return nil, apperr.New(apperr.KindInternal, "%s mints codes but has no generator", def.EntityType)
	}
	if def.InitialStatus != "" {
		if engine == nil {
			return nil, apperr.New(apperr.KindInternal, "%s has a lifecycle but no state engine", def.EntityType)
		}
		if _, ok := any(svc.New()).(models.Stateful); !ok {
			return nil, apperr.New(apperr.KindInternal, "%s declares an initial status but has none", def.EntityType)
		}
	}
	return svc, nil
}

func (s *Service[T, PT]) EntityType() string { return s.def.EntityType }

// Stateful reports whether the resource has a lifecycle.
func (s *Service[T, PT]) Stateful() bool { return s.def.InitialStatus != "" }

// New returns an empty record with defaults applied.
func (s *Service[T, PT]) New() PT {
	rec := new(T)
	if s.def.Defaults != nil {
		s.def.Defaults(rec)
	}
	return PT(rec)
}

// Create validates rec, mints its code if missing, inserts it and records
// its initial status, all in one transaction.
func (s *Service[T, PT]) Create(ctx context.Context, rec PT) error {
	*rec.GetBase() = models.Base{}
	stateful, _ := any(rec).(models.Stateful)
	if s.def.InitialStatus != "" {
		stateful.SetStatus(s.def.InitialStatus)
	}
	if err := Struct(rec); err != nil {
		return err
	}

	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if s.def.Check != nil {
			if err := s.def.Check(ctx, tx, (*T)(rec)); err != nil {
				return err
			}
		}
		if err := s.mint(ctx, tx, rec); err != nil {
			return err
		}
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		if s.def.InitialStatus != "" {
			operator, _ := tenancy.PrincipalFrom(ctx)
			return s.engine.Initialize(tx.DB(), stateful, operator)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("record created",
		zap.String("entity", s.def.EntityType), zap.String("uuid", rec.GetBase().UUID))
	return nil
}

// maxMintAttempts bounds how many taken codes one create will skip.
const maxMintAttempts = 16

func (s *Service[T, PT]) mint(ctx context.Context, tx *store.Store, rec PT) error {
	coded, ok := any(rec).(models.Coded)
	if !ok || s.def.CodeRule == "" {
		return nil
	}
	if code := strings.TrimSpace(coded.BusinessCode()); code != "" {
		coded.SetBusinessCode(code)
		return nil
	}
	tenantID, err := tenancy.MustTenant(ctx)
	if err != nil {
		return err
	}
	// A code entered by hand may already hold a future counter value;
	// step past it so the advance commits with this insert.
	now := s.now()
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		code, err := s.codes.MintTx(tx.DB(), tenantID, s.def.CodeRule, now)
		if err != nil {
			return err
		}
		taken, err := tx.Exists(ctx, PT(new(T)), coded.CodeColumn()+" = ?", code)
		if err != nil {
			return err
		}
		if !taken {
			coded.SetBusinessCode(code)
			return nil
		}
	}
	return apperr.New(apperr.KindConflict, "%s: no free code after %d attempts", s.def.CodeRule, maxMintAttempts)
}

// List returns one page, newest first. Parameters other than skip and
// limit must be declared filters.
func (s *Service[T, PT]) List(ctx context.Context, params url.Values) ([]T, error) {
	page, err := store.ParsePage(params)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var exprs []clause.Expression
	for _, k := range keys {
		if k == "skip" || k == "limit" {
			continue
		}
		filter, ok := s.def.Filters[k]
		if !ok {
			return nil, apperr.Validation("unknown filter %q", k)
		}
		expr, err := filter(params.Get(k))
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}

	out := make([]T, 0)
	err = s.store.List(ctx, PT(new(T)), &out, page, func(q *gorm.DB) *gorm.DB {
		for _, e := range exprs {
			q = q.Where(e)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a record by uuid within the current tenant.
func (s *Service[T, PT]) Get(ctx context.Context, uuid string) (PT, error) {
	rec := PT(new(T))
	if err := s.store.FindByUUID(ctx, rec, uuid); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies the fields present in patch. Identity columns and the
// status cannot be patched.
func (s *Service[T, PT]) Update(ctx context.Context, uuid string, patch map[string]json.RawMessage) (PT, error) {
	if len(patch) == 0 {
		return nil, apperr.Validation("empty patch")
	}
	fields := make([]string, 0, len(patch))
	for name := range patch {
		if immutableFields[name] || (name == "status" && s.Stateful()) {
			return nil, fieldError(name, "cannot be changed")
		}
		column, ok := s.columns[name]
		if !ok {
			return nil, fieldError(name, "unknown field")
		}
		fields = append(fields, column)
	}
	sort.Strings(fields)

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "invalid patch")
	}

	var rec PT
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		rec = PT(new(T))
		if err := tx.FindByUUID(ctx, rec, uuid); err != nil {
			return err
		}
		if err := Decode(bytes.NewReader(raw), rec); err != nil {
			return err
		}
		if err := Struct(rec); err != nil {
			return err
		}
		if coded, ok := any(rec).(models.Coded); ok && strings.TrimSpace(coded.BusinessCode()) == "" {
			return fieldError(coded.CodeColumn(), "cannot be empty")
		}
		if s.def.Check != nil {
			if err := s.def.Check(ctx, tx, (*T)(rec)); err != nil {
				return err
			}
		}
		return tx.Update(ctx, rec, fields...)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete soft-deletes a record.
func (s *Service[T, PT]) Delete(ctx context.Context, uuid string) error {
	rec, err := s.Get(ctx, uuid)
	if err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, rec); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("record deleted",
		zap.String("entity", s.def.EntityType), zap.String("uuid", uuid))
	return nil
}

// TransitionRequest asks for a status change. FromState defaults to the
// record's current status.
type TransitionRequest struct {
	FromState         string `json:"from_state"`
	ToState           string `json:"to_state" validate:"required"`
	Reason            string `json:"reason" validate:"max=200"`
	Comment           string `json:"comment" validate:"max=2000"`
	RelatedEntityType string `json:"related_entity_type" validate:"max=50"`
	RelatedEntityUUID string `json:"related_entity_uuid" validate:"omitempty,uuid"`
}

// Transition changes a record's status through the state engine.
func (s *Service[T, PT]) Transition(ctx context.Context, uuid string, req TransitionRequest) (PT, error) {
	if !s.Stateful() {
		return nil, apperr.NotFound(s.def.EntityType + " lifecycle")
	}
	if err := Struct(req); err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}
	stateful := any(rec).(models.Stateful)
	from := req.FromState
	if from == "" {
		from = string(stateful.GetStatus())
	}
	opts := statemachine.Options{Reason: req.Reason, Comment: req.Comment}
	if req.RelatedEntityUUID != "" {
		opts.Related = &statemachine.Related{EntityType: req.RelatedEntityType, UUID: req.RelatedEntityUUID}
	}
	if err := s.engine.Transition(ctx, stateful, from, req.ToState, opts); err != nil {
		return nil, err
	}
	return rec, nil
}

// History lists a record's transitions, oldest first.
func (s *Service[T, PT]) History(ctx context.Context, uuid string) ([]models.TransitionLog, error) {
	if !s.Stateful() {
		return nil, apperr.NotFound(s.def.EntityType + " lifecycle")
	}
	rec, err := s.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}
	return s.engine.History(ctx, any(rec).(models.Stateful).EntityType(), uuid)
}

// Decode reads one JSON object onto dst, refusing unknown fields.
func Decode(r io.Reader, dst interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid body: %v", err)
	}
	if dec.More() {
		return apperr.Validation("invalid body: trailing data")
	}
	return nil
}
