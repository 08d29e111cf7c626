package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/voxlane/backoffice/pkg/audit"
	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/ratelimit"
	"github.com/voxlane/backoffice/pkg/rbac"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

// HealthResponse reports liveness and dependency health
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Platform string `json:"platform"`
	Uptime   string `json:"uptime"`
}

// Health handles health check requests. A failing cache degrades, a failing store fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Database: "ok",
		Cache:    "ok",
		Platform: "live",
		Uptime:   time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.sync.Status().Mock {
		resp.Platform = "mock"
	}
	status := http.StatusOK
	if err := h.aggregates.Ping(ctx); err != nil {
		resp.Cache = "unavailable"
		resp.Status = "degraded"
	}
	if err := h.store.HealthCheck(ctx); err != nil {
		h.logger.Error("Health check failed", map[string]interface{}{"error": err})
		resp.Database = "unavailable"
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Login exchanges credentials for a session token and cookie
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), req.Email, req.Password, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn("Failed login", map[string]interface{}{"email": req.Email, "ip": ratelimit.ClientIP(r)})
		}
		h.handleError(w, r, err)
		return
	}

	ctx := tenancy.WithPrincipal(r.Context(), &tenancy.Principal{
		UserID:     resp.User.ID,
		Email:      resp.User.Email,
		Role:       resp.User.Role,
		CustomerID: resp.User.CustomerID,
	})
	h.audit.Record(ctx, audit.Entry{
		Action:     audit.Action(models.EntityUser, "login"),
		EntityType: models.EntityUser,
		EntityID:   resp.User.ID,
	})

	http.SetCookie(w, h.auth.SessionCookie(resp.Token, resp.ExpiresAt))
	writeJSON(w, http.StatusOK, resp)
}

// Logout ends the current session. It succeeds without a session too.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	http.SetCookie(w, h.auth.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}

// MeResponse describes the caller
type MeResponse struct {
	Principal   *tenancy.Principal  `json:"principal"`
	Permissions []models.Permission `json:"permissions"`
	Customer    *models.Customer    `json:"customer,omitempty"`
}

// Me returns the authenticated principal with its permissions and customer
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := tenancy.GetPrincipal(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	resp := MeResponse{Principal: p, Permissions: rbac.Permissions(r.Context())}
	if p.CustomerID != "" {
		c, err := h.store.GetCustomer(r.Context(), p.CustomerID)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		resp.Customer = c
	}
	writeJSON(w, http.StatusOK, resp)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "Route not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
