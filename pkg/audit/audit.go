// Package audit records who changed what. Recording is best effort and never fails the caller.
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/ratelimit"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

// Entry is one change to record. Before and After are marshalled to JSON.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	CustomerID string
	Before     interface{}
	After      interface{}
}

// Action builds a dot-namespaced action such as "customer.create"
func Action(entityType, verb string) string {
	return entityType + "." + verb
}

type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// Middleware captures the client address and user agent for later entries
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := clientInfo{ip: ratelimit.ClientIP(r), userAgent: r.UserAgent()}
		if len(info.userAgent) > 512 {
			info.userAgent = info.userAgent[:512]
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, info)))
	})
}

// Service writes and reads the audit log
type Service struct {
	store  store.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates an audit service
func NewService(s store.Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: s, logger: logger.WithComponent("audit"), now: time.Now}
}

// Record stores e with the caller taken from ctx. Failures are logged and counted.
func (s *Service) Record(ctx context.Context, e Entry) {
	log := &models.AuditLog{
		ID:         uuid.NewString(),
		CustomerID: e.CustomerID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     s.snapshot(e.Before),
		After:      s.snapshot(e.After),
		CreatedAt:  s.now().UTC(),
	}

	if p, err := tenancy.GetPrincipal(ctx); err == nil {
		log.ActorID = p.UserID
		log.ActorEmail = p.Email
		log.ActorRole = string(p.Role)
		if log.CustomerID == "" {
			log.CustomerID = p.CustomerID
		}
	} else {
		log.ActorEmail = "system"
	}
	if info, ok := ctx.Value(clientKey{}).(clientInfo); ok {
		log.IPAddress = info.ip
		log.UserAgent = info.userAgent
	}

	// The request may already be finished; the entry should still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.InsertAudit(writeCtx, log); err != nil {
		metrics.AuditWriteFailures.Inc()
		s.logger.Error("Failed to write audit entry", map[string]interface{}{
			"action":    e.Action,
			"entity_id": e.EntityID,
			"error":     err,
		})
	}
}

func (s *Service) snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode audit snapshot", map[string]interface{}{"error": err})
		return nil
	}
	return data
}

// List returns matching entries, newest first, and the total count
func (s *Service) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error) {
	f.Page = f.Page.Normalize()
	return s.store.ListAudit(ctx, f)
}

// Prune deletes entries older than retention and returns how many were removed
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-retention)
	n, err := s.store.DeleteAuditBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Pruned audit entries", map[string]interface{}{"deleted": n, "before": cutoff})
	}
	return n, nil
}
