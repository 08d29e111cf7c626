// Package platformsync pushes back-office entities to the softswitch and keeps their external ids.
package platformsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxlane/backoffice/pkg/audit"
	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// ErrSyncInProgress is returned when a full sync is already running
var ErrSyncInProgress = errors.New("platform sync already in progress")

// ErrUnknownKind is returned for entity kinds that are not mirrored
var ErrUnknownKind = errors.New("entity kind is not synced")

// DefaultConcurrency bounds parallel pushes during a full sync
const DefaultConcurrency = 4

// maxRunErrors caps the errors kept in a run report
const maxRunErrors = 100

// mirrorTimeout bounds one background mirror
const mirrorTimeout = 30 * time.Second

// Platform is the softswitch API used for mirroring
type Platform interface {
	Mock() bool
	UpsertCustomer(ctx context.Context, c *models.Customer) (int64, error)
	DeleteCustomer(ctx context.Context, externalID int64) error
	UpsertCarrier(ctx context.Context, c *models.Carrier) (int64, error)
	DeleteCarrier(ctx context.Context, externalID int64) error
	UpsertRateCard(ctx context.Context, rc *models.RateCard, rates []models.Rate, carrierExternalID int64) (int64, error)
	DeleteRateCard(ctx context.Context, externalID int64) error
	UpsertRoute(ctx context.Context, rt *models.Route, carrierExternalIDs []int64) (int64, error)
	DeleteRoute(ctx context.Context, externalID int64) error
}

// KindResult counts the outcome of one entity kind
type KindResult struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// RunError is one failed push
type RunError struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Run reports a full sync
type Run struct {
	ID         string                 `json:"id"`
	Status     string                 `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Results    map[string]*KindResult `json:"results"`
	Errors     []RunError             `json:"errors"`
	Truncated  bool                   `json:"errors_truncated,omitempty"`
}

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunCancelled = "cancelled"
)

func (r *Run) clone() *Run {
	cp := *r
	cp.Results = make(map[string]*KindResult, len(r.Results))
	for k, v := range r.Results {
		kr := *v
		cp.Results[k] = &kr
	}
	cp.Errors = append([]RunError{}, r.Errors...)
	return &cp
}

// Status is the sync state shown on the admin console
type Status struct {
	Running bool `json:"running"`
	Mock    bool `json:"mock"`
	LastRun *Run `json:"last_run,omitempty"`
}

// Service mirrors entities to the softswitch
type Service struct {
	store       store.Store
	platform    Platform
	audit       *audit.Service
	logger      *logging.Logger
	concurrency int
	now         func() time.Time

	running atomic.Bool
	mu      sync.Mutex
	current *Run
	last    *Run

	background sync.WaitGroup
}

// NewService creates a sync service. auditor may be nil.
func NewService(s store.Store, p Platform, auditor *audit.Service, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:       s,
		platform:    p,
		audit:       auditor,
		logger:      logger.WithComponent("platform-sync"),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
}

func (s *Service) record(ctx context.Context, kind, id string, externalID int64, err error) {
	metrics.SyncResults.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	if s.audit == nil {
		return
	}
	after := map[string]interface{}{"external_id": externalID, "mock": s.platform.Mock()}
	if err != nil {
		after["error"] = err.Error()
	}
	s.audit.Record(ctx, audit.Entry{
		Action:     audit.Action(models.EntityPlatform, "sync"),
		EntityType: kind,
		EntityID:   id,
		After:      after,
	})
}

func syncError(err error) string {
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}

// SyncCustomer pushes one customer and stores its external id
func (s *Service) SyncCustomer(ctx context.Context, id string) error {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	if c.RateCardID != "" {
		if err := s.ensureRateCard(ctx, c.RateCardID); err != nil {
			return err
		}
	}

	extID, pushErr := s.platform.UpsertCustomer(ctx, c)
	if pushErr != nil {
		c.SyncError = syncError(pushErr)
	} else {
		c.MarkSynced(extID, s.now().UTC())
	}
	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		return fmt.Errorf("failed to store sync state: %w", err)
	}
	s.record(ctx, models.EntityCustomer, id, extID, pushErr)
	return pushErr
}

// SyncCarrier pushes one carrier and stores its external id
func (s *Service) SyncCarrier(ctx context.Context, id string) error {
	c, err := s.store.GetCarrier(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.pushCarrier(ctx, c)
	return err
}

func (s *Service) pushCarrier(ctx context.Context, c *models.Carrier) (int64, error) {
	extID, pushErr := s.platform.UpsertCarrier(ctx, c)
	if pushErr != nil {
		c.SyncError = syncError(pushErr)
	} else {
		c.MarkSynced(extID, s.now().UTC())
	}
	if err := s.store.UpdateCarrier(ctx, c); err != nil {
		return 0, fmt.Errorf("failed to store sync state: %w", err)
	}
	s.record(ctx, models.EntityCarrier, c.ID, extID, pushErr)
	return extID, pushErr
}

// carrierExternalID returns the remote id of a carrier, pushing it first when it was never synced
func (s *Service) carrierExternalID(ctx context.Context, id string) (int64, error) {
	c, err := s.store.GetCarrier(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("carrier %s: %w", id, err)
	}
	if c.ExternalID != 0 {
		return c.ExternalID, nil
	}
	return s.pushCarrier(ctx, c)
}

// SyncRateCard pushes one rate card with all its rates
func (s *Service) SyncRateCard(ctx context.Context, id string) error {
	rc, err := s.store.GetRateCard(ctx, id)
	if err != nil {
		return err
	}
	rates, err := s.store.ListRates(ctx, id)
	if err != nil {
		return err
	}
	var carrierExt int64
	if rc.CarrierID != "" {
		if carrierExt, err = s.carrierExternalID(ctx, rc.CarrierID); err != nil {
			return err
		}
	}

	extID, pushErr := s.platform.UpsertRateCard(ctx, rc, rates, carrierExt)
	if pushErr != nil {
		rc.SyncError = syncError(pushErr)
	} else {
		rc.MarkSynced(extID, s.now().UTC())
	}
	if err := s.store.UpdateRateCard(ctx, rc); err != nil {
		return fmt.Errorf("failed to store sync state: %w", err)
	}
	s.record(ctx, models.EntityRateCard, id, extID, pushErr)
	return pushErr
}

func (s *Service) ensureRateCard(ctx context.Context, id string) error {
	rc, err := s.store.GetRateCard(ctx, id)
	if err != nil {
		return fmt.Errorf("rate card %s: %w", id, err)
	}
	if rc.ExternalID != 0 {
		return nil
	}
	return s.SyncRateCard(ctx, id)
}

// SyncRoute pushes one route. Carriers that were never synced are pushed first.
func (s *Service) SyncRoute(ctx context.Context, id string) error {
	rt, err := s.store.GetRoute(ctx, id)
	if err != nil {
		return err
	}
	carrierExt := make([]int64, 0, len(rt.CarrierIDs))
	for _, cid := range rt.CarrierIDs {
		ext, err := s.carrierExternalID(ctx, cid)
		if err != nil {
			return err
		}
		carrierExt = append(carrierExt, ext)
	}

	extID, pushErr := s.platform.UpsertRoute(ctx, rt, carrierExt)
	if pushErr != nil {
		rt.SyncError = syncError(pushErr)
	} else {
		rt.MarkSynced(extID, s.now().UTC())
	}
	if err := s.store.UpdateRoute(ctx, rt); err != nil {
		return fmt.Errorf("failed to store sync state: %w", err)
	}
	s.record(ctx, models.EntityRoute, id, extID, pushErr)
	return pushErr
}

// Sync pushes one entity of the given kind
func (s *Service) Sync(ctx context.Context, kind, id string) error {
	switch kind {
	case models.EntityCustomer:
		return s.SyncCustomer(ctx, id)
	case models.EntityCarrier:
		return s.SyncCarrier(ctx, id)
	case models.EntityRateCard:
		return s.SyncRateCard(ctx, id)
	case models.EntityRoute:
		return s.SyncRoute(ctx, id)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// Remove deletes the remote copy of an entity. Entities never synced are skipped.
func (s *Service) Remove(ctx context.Context, kind string, externalID int64) error {
	if externalID == 0 {
		return nil
	}
	switch kind {
	case models.EntityCustomer:
		return s.platform.DeleteCustomer(ctx, externalID)
	case models.EntityCarrier:
		return s.platform.DeleteCarrier(ctx, externalID)
	case models.EntityRateCard:
		return s.platform.DeleteRateCard(ctx, externalID)
	case models.EntityRoute:
		return s.platform.DeleteRoute(ctx, externalID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// MirrorAsync pushes an entity in the background. Failures are logged and kept on the entity.
func (s *Service) MirrorAsync(kind, id string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.Sync(ctx, kind, id); err != nil {
			s.logger.Warn("Background mirror failed", map[string]interface{}{"kind": kind, "id": id, "error": err})
		}
	}()
}

// RemoveAsync deletes the remote copy in the background
func (s *Service) RemoveAsync(kind string, externalID int64) {
	if externalID == 0 {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.Remove(ctx, kind, externalID); err != nil {
			s.logger.Warn("Background remote delete failed", map[string]interface{}{"kind": kind, "external_id": externalID, "error": err})
		}
	}()
}

// Wait blocks until background mirrors finish or ctx is done
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
