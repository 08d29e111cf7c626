package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxlane/backoffice/pkg/cleanup"
	"github.com/voxlane/backoffice/pkg/connexcs"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/platformsync"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/sysinfo"
)

// ListKYC lists submissions, pending ones by default
func (h *Handler) ListKYC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.KYCStatus(q.Get("status"))
	switch status {
	case "":
		status = models.KYCStatusPending
	case "all":
		status = ""
	case models.KYCStatusPending, models.KYCStatusApproved, models.KYCStatusRejected:
	default:
		h.handleError(w, r, fieldError("status", "must be one of: pending, approved, rejected, all"))
		return
	}
	subs, err := h.store.ListKYC(r.Context(), status, q.Get("customer_id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, subs, len(subs))
}

// ReviewKYC approves or rejects a pending submission and updates the customer
func (h *Handler) ReviewKYC(w http.ResponseWriter, r *http.Request) {
	var req models.KYCReviewRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	sub, err := h.store.GetKYC(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if sub.Status != models.KYCStatusPending {
		h.handleError(w, r, fmt.Errorf("%w: submission was already reviewed", store.ErrConflict))
		return
	}

	now := h.now().UTC()
	before := *sub
	sub.Status = req.Decision
	sub.ReviewNote = req.Note
	sub.ReviewedBy = actor(r)
	sub.ReviewedAt = &now
	sub.UpdatedAt = now
	if err := h.store.UpdateKYC(ctx, sub); err != nil {
		h.handleError(w, r, err)
		return
	}

	cust, err := h.store.GetCustomer(ctx, sub.CustomerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Customer is in the trash; the review still stands
	case err != nil:
		h.handleError(w, r, err)
		return
	default:
		cust.KYCStatus = req.Decision
		cust.UpdatedAt = now
		if err := h.store.UpdateCustomer(ctx, cust); err != nil {
			h.handleError(w, r, err)
			return
		}
	}

	h.record(r, models.EntityKYC, "review", sub.ID, sub.CustomerID, before, sub)
	h.invalidate(ctx, sub.CustomerID)
	writeJSON(w, http.StatusOK, sub)
}

// IngestCDR rates and stores a call record pushed by the softswitch
func (h *Handler) IngestCDR(w http.ResponseWriter, r *http.Request) {
	var req models.CDRIngestRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	res, err := h.billing.IngestCDR(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.invalidate(r.Context(), res.CDR.CustomerID)
	writeJSON(w, http.StatusCreated, res)
}

// ListCDRs lists call records of all customers
func (h *Handler) ListCDRs(w http.ResponseWriter, r *http.Request) {
	f, err := cdrFilter(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	f.CustomerID = r.URL.Query().Get("customer_id")
	cdrs, total, err := h.store.ListCDRs(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, cdrs, total)
}

// LCRLookup ranks carriers for a number. The sell price comes from sell_card_id,
// else from the card of customer_id, else from every sell card.
func (h *Handler) LCRLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number := strings.TrimSpace(q.Get("number"))
	if number == "" {
		h.handleError(w, r, fieldError("number", "is required"))
		return
	}
	ctx := r.Context()
	sellCard := q.Get("sell_card_id")
	if sellCard == "" && q.Get("customer_id") != "" {
		cust, err := h.store.GetCustomer(ctx, q.Get("customer_id"))
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		sellCard = cust.RateCardID
	}
	res, err := h.lcr.Lookup(ctx, number, sellCard)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAudit lists audit entries, newest first
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.AuditFilter{
		CustomerID: q.Get("customer_id"),
		ActorID:    q.Get("actor_id"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Page:       pageFromQuery(r),
	}
	var err error
	if f.Since, err = parseTime("since", q.Get("since")); err != nil {
		h.handleError(w, r, err)
		return
	}
	if f.Until, err = parseTime("until", q.Get("until")); err != nil {
		h.handleError(w, r, err)
		return
	}
	logs, total, err := h.audit.List(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, logs, total)
}

// ListTrash lists restorable entities
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, total, err := h.trash.List(r.Context(), models.TrashFilter{
		EntityType: q.Get("entity_type"),
		CustomerID: q.Get("customer_id"),
		Page:       pageFromQuery(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, items, total)
}

// RestoreTrash re-creates a deleted entity
func (h *Handler) RestoreTrash(w http.ResponseWriter, r *http.Request) {
	item, err := h.trash.Restore(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityTrash, "restore", item.ID, item.CustomerID, nil, map[string]string{
		"entity_type": item.EntityType,
		"entity_id":   item.EntityID,
	})
	h.invalidate(r.Context(), item.CustomerID)
	writeJSON(w, http.StatusOK, item)
}

// PurgeTrash deletes a trash item for good
func (h *Handler) PurgeTrash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := h.trash.Get(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.trash.Purge(ctx, item.ID); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityTrash, "purge", item.ID, item.CustomerID, map[string]string{
		"entity_type": item.EntityType,
		"entity_id":   item.EntityID,
	}, nil)
	w.WriteHeader(http.StatusNoContent)
}

// SweepResponse reports a manual trash sweep
type SweepResponse struct {
	Purged int `json:"purged"`
}

// SweepTrash purges every expired trash item now
func (h *Handler) SweepTrash(w http.ResponseWriter, r *http.Request) {
	n, err := h.trash.Sweep(r.Context(), h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityTrash, "sweep", "", "", nil, SweepResponse{Purged: n})
	writeJSON(w, http.StatusOK, SweepResponse{Purged: n})
}

// RunPlatformSync mirrors every entity to the softswitch. With wait=true the
// report is returned when the run ends; otherwise the run continues in the background.
func (h *Handler) RunPlatformSync(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "wait") {
		run, err := h.sync.SyncAll(r.Context())
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		h.record(r, models.EntityPlatform, "sync", run.ID, "", nil, run)
		writeJSON(w, http.StatusOK, run)
		return
	}
	run, err := h.sync.Start()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityPlatform, "sync", run.ID, "", nil, map[string]string{"status": run.Status})
	writeJSON(w, http.StatusAccepted, run)
}

// PlatformSyncStatus reports the running or last full sync
func (h *Handler) PlatformSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Status())
}

// ConnexCSStatus pings the softswitch API
func (h *Handler) ConnexCSStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, h.platform.Status(ctx))
}

// Stats returns the admin dashboard figures
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.aggregates.Admin(r.Context(), func(ctx context.Context) (*models.AdminCounts, error) {
		return h.store.AdminCounts(ctx, startOfDay(h.now()))
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// SystemResponse is the admin system status page
type SystemResponse struct {
	Version  string                       `json:"version,omitempty"`
	Uptime   string                       `json:"uptime"`
	Database string                       `json:"database"`
	Cache    string                       `json:"cache"`
	Platform connexcs.Status              `json:"platform"`
	Sync     platformsync.Status          `json:"sync"`
	Cleanup  map[string]cleanup.TaskStats `json:"cleanup,omitempty"`
	System   sysinfo.Snapshot             `json:"system"`
}

// SystemStatus reports host resources and the health of every dependency
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp := SystemResponse{
		Version:  h.version,
		Uptime:   time.Since(h.startedAt).Round(time.Second).String(),
		Database: "ok",
		Cache:    "ok",
		Platform: h.platform.Status(ctx),
		Sync:     h.sync.Status(),
		System:   sysinfo.Collect(ctx),
	}
	if err := h.store.HealthCheck(ctx); err != nil {
		resp.Database = err.Error()
	}
	if err := h.aggregates.Ping(ctx); err != nil {
		resp.Cache = err.Error()
	}
	if h.cleanup != nil {
		resp.Cleanup = h.cleanup.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CleanupResponse reports a manual retention pass
type CleanupResponse struct {
	Deleted map[string]int `json:"deleted"`
}

// RunCleanup runs the retention tasks now
func (h *Handler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	if h.cleanup == nil {
		writeError(w, http.StatusServiceUnavailable, "cleanup_disabled", "Retention cleanup is not configured")
		return
	}
	deleted := h.cleanup.RunNow(r.Context())
	h.record(r, models.EntityPlatform, "cleanup", "", "", nil, deleted)
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}
