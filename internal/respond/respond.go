// Package respond writes JSON bodies and maps errors to their wire shape.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/logger"
)

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Detail string      `json:"detail"`
	Code   apperr.Kind `json:"code"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// NoContent sends 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error sends err with the status of its kind. Server-side failures are
// logged with their cause and answered with a generic detail. Misses answer
// "not found" whether the row is absent or owned by another tenant.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	detail := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		detail = e.Message
	}
	if kind == apperr.KindNotFound {
		detail = "not found"
	}

	if status >= http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		if apperr.IsProgramming(kind) {
			log.Error("request failed", zap.String("kind", string(kind)), zap.String("path", r.URL.Path), zap.Error(err))
		} else {
			log.Warn("request failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		detail = "internal server error"
		kind = apperr.KindInternal
	}
	JSON(w, status, ErrorBody{Detail: detail, Code: kind})
}

// Fail sends an error built from kind and message.
func Fail(w http.ResponseWriter, r *http.Request, kind apperr.Kind, format string, args ...interface{}) {
	Error(w, r, apperr.New(kind, format, args...))
}
