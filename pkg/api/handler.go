// Package api exposes the portal and admin REST endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/voxlane/backoffice/pkg/audit"
	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/billing"
	"github.com/voxlane/backoffice/pkg/cache"
	"github.com/voxlane/backoffice/pkg/cleanup"
	"github.com/voxlane/backoffice/pkg/connexcs"
	"github.com/voxlane/backoffice/pkg/lcr"
	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/middleware"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/platformsync"
	"github.com/voxlane/backoffice/pkg/ratelimit"
	"github.com/voxlane/backoffice/pkg/rbac"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/tenancy"
	"github.com/voxlane/backoffice/pkg/tracing"
	"github.com/voxlane/backoffice/pkg/trash"
)

// PlatformStatus reports the softswitch connection
type PlatformStatus interface {
	Status(ctx context.Context) connexcs.Status
}

// Deps are the services behind the handlers. Store and Auth are required;
// the rest fall back to in-process defaults.
type Deps struct {
	Store      store.Store
	Auth       *auth.Service
	Audit      *audit.Service
	Trash      *trash.Service
	Billing    *billing.Service
	LCR        *lcr.Engine
	Sync       *platformsync.Service
	Platform   PlatformStatus
	Aggregates *cache.Aggregates
	Cleanup    *cleanup.Manager
	Tracer     *tracing.Provider
	Logger     *logging.Logger

	LoginLimiter *ratelimit.Limiter
	APILimiter   *ratelimit.Limiter
	CORSOrigins  []string
	Metrics      bool
	Version      string
}

// Handler serves the REST API
type Handler struct {
	store      store.Store
	auth       *auth.Service
	audit      *audit.Service
	trash      *trash.Service
	billing    *billing.Service
	lcr        *lcr.Engine
	sync       *platformsync.Service
	platform   PlatformStatus
	aggregates *cache.Aggregates
	cleanup    *cleanup.Manager
	tracer     *tracing.Provider
	logger     *logging.Logger

	loginLimiter *ratelimit.Limiter
	apiLimiter   *ratelimit.Limiter
	corsOrigins  []string
	metrics      bool
	version      string
	startedAt    time.Time
	now          func() time.Time
}

// NewHandler wires the handlers and registers the trash restorers
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.NewService(d.Store, d.Logger)
	}
	if d.Trash == nil {
		d.Trash = trash.NewService(d.Store, 0, d.Logger)
	}
	if d.Billing == nil {
		d.Billing = billing.NewService(d.Store, d.Logger)
	}
	if d.LCR == nil {
		d.LCR = lcr.NewEngine(d.Store)
	}
	if d.Sync == nil || d.Platform == nil {
		client := connexcs.NewClient(connexcs.Config{MockMode: true}, d.Logger)
		if d.Sync == nil {
			d.Sync = platformsync.NewService(d.Store, client, d.Audit, d.Logger)
		}
		if d.Platform == nil {
			d.Platform = client
		}
	}
	if d.Aggregates == nil {
		d.Aggregates = cache.NewAggregates(nil, 0, d.Logger)
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = ratelimit.PerMinute(10)
	}

	h := &Handler{
		store:        d.Store,
		auth:         d.Auth,
		audit:        d.Audit,
		trash:        d.Trash,
		billing:      d.Billing,
		lcr:          d.LCR,
		sync:         d.Sync,
		platform:     d.Platform,
		aggregates:   d.Aggregates,
		cleanup:      d.Cleanup,
		tracer:       d.Tracer,
		logger:       d.Logger.WithComponent("api"),
		loginLimiter: d.LoginLimiter,
		apiLimiter:   d.APILimiter,
		corsOrigins:  d.CORSOrigins,
		metrics:      d.Metrics,
		version:      d.Version,
		startedAt:    time.Now(),
		now:          time.Now,
	}
	h.registerRestorers()
	return h
}

// Trash returns the trash service the handlers discard into
func (h *Handler) Trash() *trash.Service {
	return h.trash
}

// Router builds the complete HTTP handler with middleware
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	var handler http.Handler = r
	handler = middleware.Logging(h.logger)(handler)
	handler = middleware.CORS(h.corsOrigins)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recover(h.logger)(handler)
	return handler
}

type perm = models.Permission

// guard wraps fn with a permission check
func guard(p perm, fn http.HandlerFunc) http.Handler {
	return rbac.RequirePermission(p)(fn)
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	if h.tracer != nil {
		r.Use(tracing.HTTPMiddleware(h.tracer))
	}
	r.Use(metrics.Middleware, audit.Middleware)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", h.Health).Methods("GET")
	if h.metrics {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.Handle("/login", h.loginLimiter.Middleware(ratelimit.IPKeyFunc)(http.HandlerFunc(h.Login))).Methods("POST")
	authRouter.HandleFunc("/logout", h.Logout).Methods("POST")
	authRouter.Handle("/me", h.auth.Middleware(http.HandlerFunc(h.Me))).Methods("GET")

	h.registerPortalRoutes(r.PathPrefix("/api/portal").Subrouter())
	h.registerAdminRoutes(r.PathPrefix("/api/admin").Subrouter())
}

func (h *Handler) authenticated(sr *mux.Router) {
	sr.Use(h.auth.Middleware)
	if h.apiLimiter != nil {
		sr.Use(h.apiLimiter.Middleware(ratelimit.PrincipalKeyFunc))
	}
}

func (h *Handler) registerPortalRoutes(p *mux.Router) {
	h.authenticated(p)
	p.Use(tenancy.RequireCustomer)

	read, write := models.PermPortalRead, models.PermPortalWrite

	p.Handle("/dashboard", guard(read, h.Dashboard)).Methods("GET")
	p.Handle("/sidebar-counts", guard(read, h.SidebarCounts)).Methods("GET")

	p.Handle("/billing/balance", guard(read, h.Balance)).Methods("GET")
	p.Handle("/billing/transactions", guard(read, h.Transactions)).Methods("GET")
	p.Handle("/billing/topup", guard(models.PermBillingWrite, h.TopUp)).Methods("POST")

	// Specific DID routes before parameterized ones
	p.Handle("/dids/available", guard(read, h.AvailableDIDs)).Methods("GET")
	p.Handle("/dids", guard(read, h.MyDIDs)).Methods("GET")
	p.Handle("/dids/{id}/purchase", guard(models.PermBillingWrite, h.PurchaseDID)).Methods("POST")
	p.Handle("/dids/{id}/release", guard(models.PermBillingWrite, h.ReleaseDID)).Methods("POST")
	p.Handle("/dids/{id}/destination", guard(write, h.SetDIDDestination)).Methods("PUT")

	p.Handle("/extensions", guard(read, h.ListExtensions)).Methods("GET")
	p.Handle("/extensions", guard(write, h.CreateExtension)).Methods("POST")
	p.Handle("/extensions/{id}", guard(read, h.GetExtension)).Methods("GET")
	p.Handle("/extensions/{id}", guard(write, h.UpdateExtension)).Methods("PUT")
	p.Handle("/extensions/{id}", guard(write, h.DeleteExtension)).Methods("DELETE")

	p.Handle("/ivr", guard(read, h.ListIVRMenus)).Methods("GET")
	p.Handle("/ivr", guard(write, h.CreateIVRMenu)).Methods("POST")
	p.Handle("/ivr/{id}", guard(read, h.GetIVRMenu)).Methods("GET")
	p.Handle("/ivr/{id}", guard(write, h.UpdateIVRMenu)).Methods("PUT")
	p.Handle("/ivr/{id}", guard(write, h.DeleteIVRMenu)).Methods("DELETE")

	p.Handle("/voice-agents", guard(read, h.ListVoiceAgents)).Methods("GET")
	p.Handle("/voice-agents", guard(write, h.CreateVoiceAgent)).Methods("POST")
	p.Handle("/voice-agents/{id}", guard(read, h.GetVoiceAgent)).Methods("GET")
	p.Handle("/voice-agents/{id}", guard(write, h.UpdateVoiceAgent)).Methods("PUT")
	p.Handle("/voice-agents/{id}", guard(write, h.DeleteVoiceAgent)).Methods("DELETE")

	p.Handle("/cdrs/export", guard(read, h.ExportCDRs)).Methods("GET")
	p.Handle("/cdrs", guard(read, h.MyCDRs)).Methods("GET")

	p.Handle("/kyc", guard(read, h.MyKYC)).Methods("GET")
	p.Handle("/kyc", guard(models.PermTeamManage, h.SubmitKYC)).Methods("POST")

	p.Handle("/users", guard(read, h.TeamUsers)).Methods("GET")
	p.Handle("/users", guard(models.PermTeamManage, h.CreateTeamUser)).Methods("POST")
}

func (h *Handler) registerAdminRoutes(a *mux.Router) {
	h.authenticated(a)
	a.Use(tenancy.RequireStaff)

	a.Handle("/customers", guard(models.PermCustomersRead, h.ListCustomers)).Methods("GET")
	a.Handle("/customers", guard(models.PermCustomersWrite, h.CreateCustomer)).Methods("POST")
	a.Handle("/customers/{id}", guard(models.PermCustomersRead, h.GetCustomer)).Methods("GET")
	a.Handle("/customers/{id}", guard(models.PermCustomersWrite, h.UpdateCustomer)).Methods("PATCH")
	a.Handle("/customers/{id}", guard(models.PermCustomersDelete, h.DeleteCustomer)).Methods("DELETE")
	a.Handle("/customers/{id}/suspend", guard(models.PermCustomersWrite, h.SuspendCustomer)).Methods("POST")
	a.Handle("/customers/{id}/activate", guard(models.PermCustomersWrite, h.ActivateCustomer)).Methods("POST")
	a.Handle("/customers/{id}/balance", guard(models.PermCustomersWrite, h.AdjustBalance)).Methods("POST")
	a.Handle("/customers/{id}/transactions", guard(models.PermCustomersRead, h.CustomerTransactions)).Methods("GET")
	a.Handle("/customers/{id}/sync", guard(models.PermCustomersWrite, h.SyncCustomer)).Methods("POST")

	a.Handle("/users", guard(models.PermCustomersRead, h.ListUsers)).Methods("GET")

	a.Handle("/carriers", guard(models.PermCatalogRead, h.ListCarriers)).Methods("GET")
	a.Handle("/carriers", guard(models.PermCatalogWrite, h.CreateCarrier)).Methods("POST")
	a.Handle("/carriers/{id}", guard(models.PermCatalogRead, h.GetCarrier)).Methods("GET")
	a.Handle("/carriers/{id}", guard(models.PermCatalogWrite, h.UpdateCarrier)).Methods("PUT")
	a.Handle("/carriers/{id}", guard(models.PermCatalogWrite, h.DeleteCarrier)).Methods("DELETE")
	a.Handle("/carriers/{id}/sync", guard(models.PermCatalogWrite, h.SyncCarrier)).Methods("POST")

	a.Handle("/rate-cards", guard(models.PermCatalogRead, h.ListRateCards)).Methods("GET")
	a.Handle("/rate-cards", guard(models.PermCatalogWrite, h.CreateRateCard)).Methods("POST")
	a.Handle("/rate-cards/{id}", guard(models.PermCatalogRead, h.GetRateCard)).Methods("GET")
	a.Handle("/rate-cards/{id}", guard(models.PermCatalogWrite, h.UpdateRateCard)).Methods("PUT")
	a.Handle("/rate-cards/{id}", guard(models.PermCatalogWrite, h.DeleteRateCard)).Methods("DELETE")
	a.Handle("/rate-cards/{id}/rates", guard(models.PermCatalogRead, h.ListRates)).Methods("GET")
	a.Handle("/rate-cards/{id}/rates", guard(models.PermCatalogWrite, h.ReplaceRates)).Methods("PUT")
	a.Handle("/rate-cards/{id}/sync", guard(models.PermCatalogWrite, h.SyncRateCard)).Methods("POST")

	a.Handle("/routes", guard(models.PermCatalogRead, h.ListRoutes)).Methods("GET")
	a.Handle("/routes", guard(models.PermCatalogWrite, h.CreateRoute)).Methods("POST")
	a.Handle("/routes/{id}", guard(models.PermCatalogRead, h.GetRoute)).Methods("GET")
	a.Handle("/routes/{id}", guard(models.PermCatalogWrite, h.UpdateRoute)).Methods("PUT")
	a.Handle("/routes/{id}", guard(models.PermCatalogWrite, h.DeleteRoute)).Methods("DELETE")
	a.Handle("/routes/{id}/sync", guard(models.PermCatalogWrite, h.SyncRoute)).Methods("POST")

	a.Handle("/dids", guard(models.PermCatalogRead, h.ListDIDs)).Methods("GET")
	a.Handle("/dids", guard(models.PermCatalogWrite, h.CreateDID)).Methods("POST")
	a.Handle("/dids/{id}", guard(models.PermCatalogRead, h.GetDID)).Methods("GET")
	a.Handle("/dids/{id}", guard(models.PermCatalogWrite, h.UpdateDID)).Methods("PUT")
	a.Handle("/dids/{id}", guard(models.PermCatalogWrite, h.DeleteDID)).Methods("DELETE")

	a.Handle("/kyc", guard(models.PermKYCReview, h.ListKYC)).Methods("GET")
	a.Handle("/kyc/{id}/review", guard(models.PermKYCReview, h.ReviewKYC)).Methods("POST")

	a.Handle("/cdrs", guard(models.PermCDRIngest, h.IngestCDR)).Methods("POST")
	a.Handle("/cdrs", guard(models.PermCustomersRead, h.ListCDRs)).Methods("GET")
	a.Handle("/lcr", guard(models.PermCatalogRead, h.LCRLookup)).Methods("GET")

	a.Handle("/audit", guard(models.PermAuditRead, h.ListAudit)).Methods("GET")

	a.Handle("/trash/sweep", guard(models.PermTrashPurge, h.SweepTrash)).Methods("POST")
	a.Handle("/trash", guard(models.PermTrashManage, h.ListTrash)).Methods("GET")
	a.Handle("/trash/{id}/restore", guard(models.PermTrashManage, h.RestoreTrash)).Methods("POST")
	a.Handle("/trash/{id}", guard(models.PermTrashPurge, h.PurgeTrash)).Methods("DELETE")

	a.Handle("/platform/sync", guard(models.PermPlatformSync, h.RunPlatformSync)).Methods("POST")
	a.Handle("/platform/sync/status", guard(models.PermSystemRead, h.PlatformSyncStatus)).Methods("GET")
	a.Handle("/platform/connexcs/status", guard(models.PermSystemRead, h.ConnexCSStatus)).Methods("GET")

	a.Handle("/stats", guard(models.PermSystemRead, h.Stats)).Methods("GET")
	a.Handle("/system", guard(models.PermSystemRead, h.SystemStatus)).Methods("GET")
	a.Handle("/system/cleanup", guard(models.PermTrashPurge, h.RunCleanup)).Methods("POST")
}
