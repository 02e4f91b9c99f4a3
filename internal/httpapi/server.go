// Package httpapi exposes the authentication and back-office management
// surface over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"authdesk.org/internal/audit"
	"authdesk.org/internal/auth"
	"authdesk.org/internal/obs"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the API dependencies and tunables.
type Options struct {
	Service    *auth.Service
	Admin      *auth.AdminService
	Guard      auth.Guard
	Audit      *audit.Log
	Logger     *slog.Logger
	ReadyProbe ReadyProbe
	Version    string

	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int64
}

// API is the HTTP layer.
type API struct {
	router     chi.Router
	svc        *auth.Service
	admin      *auth.AdminService
	guard      auth.Guard
	auditLog   *audit.Log
	logger     *slog.Logger
	readyProbe ReadyProbe
	version    string
}

// New wires middleware and routes. Guard requirements are declared here,
// once per route group, rather than checked ad hoc inside handlers.
func New(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{
		svc:        opts.Service,
		admin:      opts.Admin,
		guard:      opts.Guard,
		auditLog:   opts.Audit,
		logger:     logger,
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(a.logRequests)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	if opts.RateLimitRPS > 0 {
		r.Use(RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}
	r.Use(MaxBodyBytes(maxBody))
	r.Use(obs.Instrument)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReady)
	r.Get("/v1/info", a.handleInfo)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Post("/register", a.handleRegister)
		r.Post("/validate-token", a.handleValidateToken)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Get("/profile", a.handleProfile)
			r.Post("/invalidate-token", a.handleInvalidateToken)
		})
	})

	adminOnly := auth.Requirement{Roles: []auth.RoleKind{auth.RoleAdmin}}

	r.Route("/v1/users", func(r chi.Router) {
		r.Use(a.authenticate, a.require(adminOnly))
		r.Get("/", a.handleListUsers)
		r.Post("/", a.handleCreateUser)
		r.Get("/{id}", a.handleGetUser)
		r.Patch("/{id}", a.handleUpdateUser)
		r.Delete("/{id}", a.handleDeleteUser)
		r.Put("/{id}/active", a.handleSetUserActive)
		r.Post("/{id}/roles/{roleID}", a.handleAssignRole)
		r.Delete("/{id}/roles/{roleID}", a.handleRemoveRole)
	})

	r.Route("/v1/roles", func(r chi.Router) {
		r.Use(a.authenticate, a.require(adminOnly))
		r.Get("/", a.handleListRoles)
		r.Post("/", a.handleCreateRole)
		r.Get("/{id}", a.handleGetRole)
		r.Patch("/{id}", a.handleUpdateRole)
		r.Delete("/{id}", a.handleDeleteRole)
		r.Put("/{id}/permissions", a.handleSetPermissions)
		r.Post("/{id}/permissions/{perm}", a.handleAddPermission)
		r.Delete("/{id}/permissions/{perm}", a.handleRemovePermission)
	})

	a.router = r
	return a
}

// Handler returns the root handler for the server.
func (a *API) Handler() http.Handler { return a.router }
