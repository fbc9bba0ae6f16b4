package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/store"
)

// listTransitionLogs returns the tenant's audit trail, newest first,
// optionally narrowed to one entity type or record.
func (r *Router) listTransitionLogs(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	page, err := store.ParsePage(q)
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	entityType, entityUUID := q.Get("entity_type"), q.Get("entity_uuid")

	logs := make([]models.TransitionLog, 0)
	err = r.store.List(req.Context(), &models.TransitionLog{}, &logs, page, func(db *gorm.DB) *gorm.DB {
		if entityType != "" {
			db = db.Where("entity_type = ?", entityType)
		}
		if entityUUID != "" {
			db = db.Where("entity_uuid = ?", entityUUID)
		}
		return db
	})
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, logs)
}
