package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/voxlane/backoffice/pkg/audit"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

// customerID returns the customer the portal request acts for. RequireCustomer guarantees it.
func customerID(r *http.Request) string {
	id, _ := tenancy.GetCustomerID(r.Context())
	return id
}

func actor(r *http.Request) string {
	return tenancy.Actor(r.Context())
}

func (h *Handler) record(r *http.Request, entityType, verb, entityID, customerID string, before, after interface{}) {
	h.audit.Record(r.Context(), audit.Entry{
		Action:     audit.Action(entityType, verb),
		EntityType: entityType,
		EntityID:   entityID,
		CustomerID: customerID,
		Before:     before,
		After:      after,
	})
}

// discard moves a deleted entity to the trash and records the deletion.
// auditView replaces the snapshot in the audit entry when given.
func (h *Handler) discard(r *http.Request, entityType, entityID, customerID string, snapshot interface{}, auditView ...interface{}) *models.TrashItem {
	item, err := h.trash.Discard(r.Context(), entityType, entityID, customerID, snapshot, actor(r))
	if err != nil {
		// The row is already gone; losing the snapshot only loses restorability
		h.logger.Error("Failed to move entity to trash", map[string]interface{}{
			"entity_type": entityType,
			"entity_id":   entityID,
			"error":       err,
		})
	}
	before := snapshot
	if len(auditView) > 0 {
		before = auditView[0]
	}
	h.record(r, entityType, "delete", entityID, customerID, before, nil)
	return item
}

// deleted is the response of delete endpoints
type deleted struct {
	ID      string `json:"id"`
	TrashID string `json:"trash_id,omitempty"`
}

func deletedResponse(id string, item *models.TrashItem) deleted {
	d := deleted{ID: id}
	if item != nil {
		d.TrashID = item.ID
	}
	return d
}

func (h *Handler) invalidate(ctx context.Context, customerID string) {
	h.aggregates.InvalidateCustomer(ctx, customerID)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseTime accepts RFC3339 timestamps and plain dates
func parseTime(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &models.ValidationError{Fields: map[string]string{field: "must be an RFC3339 timestamp or YYYY-MM-DD date"}}
}

func cdrFilter(r *http.Request) (models.CDRFilter, error) {
	q := r.URL.Query()
	f := models.CDRFilter{
		Direction: q.Get("direction"),
		Number:    strings.TrimSpace(q.Get("number")),
		Page:      pageFromQuery(r),
	}
	if f.Direction != "" && f.Direction != "inbound" && f.Direction != "outbound" {
		return f, &models.ValidationError{Fields: map[string]string{"direction": "must be one of: inbound, outbound"}}
	}
	var err error
	if f.From, err = parseTime("from", q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", q.Get("to")); err != nil {
		return f, err
	}
	return f, nil
}

func fieldError(field, msg string) error {
	return &models.ValidationError{Fields: map[string]string{field: msg}}
}
