package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind is the machine-readable error code carried on the wire.
type Kind string

const (
	KindValidation              Kind = "VALIDATION"
	KindAuthInvalid             Kind = "AUTH_INVALID"
	KindTenantForbidden         Kind = "TENANT_FORBIDDEN"
	KindPermissionDenied        Kind = "PERMISSION_DENIED"
	KindNotFound                Kind = "NOT_FOUND"
	KindConflict                Kind = "CONFLICT"
	KindTenantContextMissing    Kind = "TENANT_CONTEXT_MISSING"
	KindTenantMismatch          Kind = "TENANT_MISMATCH"
	KindCodeRuleNotFound        Kind = "CODE_RULE_NOT_FOUND"
	KindStatePreconditionFailed Kind = "STATE_PRECONDITION_FAILED"
	KindStateTransitionDenied   Kind = "STATE_TRANSITION_FORBIDDEN"
	KindInternal                Kind = "INTERNAL"
)

// Error is the single domain error type. Services return it unchanged and
// the HTTP boundary translates it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// NotFound never names the tenant the lookup ran in.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", entity)}
}

func TenantContextMissing() *Error {
	return &Error{Kind: KindTenantContextMissing, Message: "tenant context is not set"}
}

func TenantMismatch(entity string) *Error {
	return &Error{Kind: KindTenantMismatch, Message: fmt.Sprintf("%s belongs to another tenant", entity)}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindCodeRuleNotFound:
		return http.StatusBadRequest
	case KindAuthInvalid:
		return http.StatusUnauthorized
	case KindTenantForbidden, KindPermissionDenied, KindStateTransitionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindStatePreconditionFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsProgramming reports kinds that indicate a bug rather than bad input.
func IsProgramming(kind Kind) bool {
	return kind == KindTenantContextMissing || kind == KindTenantMismatch || kind == KindInternal
}

// FromDB translates persistence errors into domain errors. Record-not-found
// becomes NOT_FOUND for entity, unique violations become CONFLICT, anything
// else is wrapped as INTERNAL.
func FromDB(err error, entity, action string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(entity)
	}
	if IsUniqueViolation(err) {
		return Wrap(err, KindConflict, fmt.Sprintf("%s already exists", entity))
	}
	return Wrap(err, KindInternal, fmt.Sprintf("failed to %s %s", action, entity))
}

// IsUniqueViolation recognizes duplicate-key errors from postgres and sqlite.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
