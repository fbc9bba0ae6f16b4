package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/buildinfo"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/crud"
	"github.com/xelth-com/riveredgego/internal/metrics"
	"github.com/xelth-com/riveredgego/internal/middleware"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/statemachine"
	"github.com/xelth-com/riveredgego/internal/store"
	"github.com/xelth-com/riveredgego/internal/websocket"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	DB        *gorm.DB
	Tokens    *auth.Tokens
	Directory *auth.Directory
	Codes     *codegen.Generator
	Engine    *statemachine.Engine
	Hub       *websocket.Hub
	Now       func() time.Time
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	deps     Deps
	store    *store.Store
	boundary *middleware.Boundary

	demands     *crud.Service[models.Demand, *models.Demand]
	salesOrders *crud.Service[models.SalesOrder, *models.SalesOrder]
	codeRules   *crud.Service[models.CodeRule, *models.CodeRule]
	rules       *crud.Service[models.TransitionRule, *models.TransitionRule]
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) (*Router, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := &Router{
		Router:   mux.NewRouter(),
		deps:     deps,
		store:    store.New(deps.DB),
		boundary: middleware.NewBoundary(deps.Tokens, deps.Directory, deps.Now),
	}
	if err := r.buildServices(); err != nil {
		return nil, err
	}

	r.Use(middleware.RequestID, middleware.Recover, metrics.Middleware, middleware.AccessLog)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respond.JSON(w, http.StatusNotFound, respond.ErrorBody{Detail: "not found", Code: "NOT_FOUND"})
	})

	// Public
	r.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", r.login).Methods(http.MethodPost)
	r.HandleFunc("/admin/auth/login", r.adminLogin).Methods(http.MethodPost)

	// Platform administration
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(r.boundary.PlatformAdmin)
	admin.HandleFunc("/tenants", r.listTenants).Methods(http.MethodGet)
	admin.HandleFunc("/tenants", r.createTenant).Methods(http.MethodPost)
	admin.HandleFunc("/tenants/reinitialize", r.reinitializeTenants).Methods(http.MethodPost)
	admin.HandleFunc("/tenants/{domain}", r.getTenant).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{domain}", r.updateTenant).Methods(http.MethodPut)
	admin.HandleFunc("/tenants/{domain}/users", r.createTenantUser).Methods(http.MethodPost)

	// Tenant endpoints
	api := r.NewRoute().Subrouter()
	api.Use(r.boundary.Tenant)
	api.HandleFunc("/auth/me", r.me).Methods(http.MethodGet)
	api.HandleFunc("/ws", r.serveWs).Methods(http.MethodGet)
	api.HandleFunc("/transition-logs", r.listTransitionLogs).Methods(http.MethodGet)
	api.HandleFunc("/code-rules/{uuid}/preview", r.previewCodeRule).Methods(http.MethodGet)
	api.HandleFunc("/code-rules/{uuid}/labels", r.printLabels).Methods(http.MethodPost)
	crud.Mount(api, "/demand", r.demands)
	crud.Mount(api, "/sales-orders", r.salesOrders)

	// Rule configuration: members read, administrators write
	rules := api.NewRoute().Subrouter()
	rules.Use(r.boundary.AdminWrites)
	rules.HandleFunc("/code-rules/import", r.importCodeRule).Methods(http.MethodPost)
	crud.Mount(rules, "/code-rules", r.codeRules)
	crud.Mount(rules, "/transition-rules", r.rules)

	return r, nil
}

// HealthResponse reports liveness and database reachability.
type HealthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: "ok", Build: buildinfo.Current(time.Now())}
	code := http.StatusOK
	if sqlDB, err := r.deps.DB.DB(); err != nil || sqlDB.PingContext(req.Context()) != nil {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respond.JSON(w, code, resp)
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	websocket.ServeWs(r.deps.Hub, w, req)
}
