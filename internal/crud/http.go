package crud

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/riveredgego/internal/respond"
)

// Mount registers the resource's routes under prefix:
//
//	POST   /prefix                     create
//	GET    /prefix                     list
//	GET    /prefix/{uuid}              fetch
//	PUT    /prefix/{uuid}              partial update
//	DELETE /prefix/{uuid}              soft delete
//	POST   /prefix/{uuid}/transitions  status change (stateful resources)
//	GET    /prefix/{uuid}/transitions  status history (stateful resources)
func Mount[T any, PT Record[T]](r *mux.Router, prefix string, svc *Service[T, PT]) {
	h := &handler[T, PT]{svc: svc}
	r.HandleFunc(prefix, h.create).Methods(http.MethodPost)
	r.HandleFunc(prefix, h.list).Methods(http.MethodGet)
	r.HandleFunc(prefix+"/{uuid}", h.get).Methods(http.MethodGet)
	r.HandleFunc(prefix+"/{uuid}", h.update).Methods(http.MethodPut)
	r.HandleFunc(prefix+"/{uuid}", h.remove).Methods(http.MethodDelete)
	if svc.Stateful() {
		r.HandleFunc(prefix+"/{uuid}/transitions", h.transition).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/{uuid}/transitions", h.history).Methods(http.MethodGet)
	}
}

type handler[T any, PT Record[T]] struct {
	svc *Service[T, PT]
}

func (h *handler[T, PT]) create(w http.ResponseWriter, r *http.Request) {
	rec := h.svc.New()
	if err := Decode(r.Body, rec); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.svc.Create(r.Context(), rec); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

func (h *handler[T, PT]) list(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context(), r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, recs)
}

func (h *handler[T, PT]) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), mux.Vars(r)["uuid"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

func (h *handler[T, PT]) update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := Decode(r.Body, &patch); err != nil {
		respond.Error(w, r, err)
		return
	}
	rec, err := h.svc.Update(r.Context(), mux.Vars(r)["uuid"], patch)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

func (h *handler[T, PT]) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["uuid"]); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.NoContent(w)
}

func (h *handler[T, PT]) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := Decode(r.Body, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	rec, err := h.svc.Transition(r.Context(), mux.Vars(r)["uuid"], req)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

func (h *handler[T, PT]) history(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.History(r.Context(), mux.Vars(r)["uuid"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, logs)
}
