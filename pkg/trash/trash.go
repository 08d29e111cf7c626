// Package trash keeps snapshots of deleted entities so they can be restored until they expire.
package trash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// DefaultRetention is how long deleted entities stay restorable
const DefaultRetention = 30 * 24 * time.Hour

// sweepBatch bounds the items loaded per sweep round
const sweepBatch = 100

var (
	ErrExpired     = errors.New("trash item expired")
	ErrNoRestorer  = errors.New("entity type cannot be restored")
	ErrBadSnapshot = errors.New("trash snapshot is invalid")
)

// Restorer re-creates the entity held by a trash item
type Restorer func(ctx context.Context, item *models.TrashItem) error

// RestoreWith builds a Restorer that decodes the snapshot into T and passes it to create
func RestoreWith[T any](create func(ctx context.Context, v *T) error) Restorer {
	return func(ctx context.Context, item *models.TrashItem) error {
		var v T
		if err := json.Unmarshal(item.Snapshot, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		return create(ctx, &v)
	}
}

// Service moves deleted entities in and out of the trash
type Service struct {
	store     store.Store
	retention time.Duration
	logger    *logging.Logger
	now       func() time.Time

	mu        sync.RWMutex
	restorers map[string]Restorer
}

// NewService creates a trash service. A zero retention uses DefaultRetention.
func NewService(s store.Store, retention time.Duration, logger *logging.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     s,
		retention: retention,
		logger:    logger.WithComponent("trash"),
		now:       time.Now,
		restorers: make(map[string]Restorer),
	}
}

// Register sets the restorer for an entity type
func (s *Service) Register(entityType string, r Restorer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restorers[entityType] = r
}

// Retention returns the configured retention
func (s *Service) Retention() time.Duration {
	return s.retention
}

// labelOf picks a human-readable name out of a snapshot
func labelOf(snapshot []byte) string {
	var fields struct {
		Name   string `json:"name"`
		Number string `json:"number"`
		Email  string `json:"email"`
	}
	if json.Unmarshal(snapshot, &fields) != nil {
		return ""
	}
	switch {
	case fields.Name != "":
		return fields.Name
	case fields.Number != "":
		return fields.Number
	default:
		return fields.Email
	}
}

// Discard stores snapshot as a trash item for an entity that was just deleted
func (s *Service) Discard(ctx context.Context, entityType, entityID, customerID string, snapshot interface{}, actor string) (*models.TrashItem, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := s.now().UTC()
	item := &models.TrashItem{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		CustomerID: customerID,
		Label:      labelOf(data),
		Snapshot:   data,
		DeletedBy:  actor,
		DeletedAt:  now,
		ExpiresAt:  now.Add(s.retention),
	}
	if err := s.store.InsertTrash(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to store trash item: %w", err)
	}

	s.logger.Debug("Entity moved to trash", map[string]interface{}{
		"entity_type": entityType,
		"entity_id":   entityID,
		"trash_id":    item.ID,
	})
	return item, nil
}

// Get returns one trash item
func (s *Service) Get(ctx context.Context, id string) (*models.TrashItem, error) {
	return s.store.GetTrash(ctx, id)
}

// List returns trash items, most recently deleted first
func (s *Service) List(ctx context.Context, f models.TrashFilter) ([]*models.TrashItem, int, error) {
	f.Page = f.Page.Normalize()
	return s.store.ListTrash(ctx, f)
}

// Restore re-creates the entity and removes the trash item.
// A live row with the same identity yields store.ErrConflict and keeps the item.
func (s *Service) Restore(ctx context.Context, id string) (*models.TrashItem, error) {
	item, err := s.store.GetTrash(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Expired(s.now()) {
		return nil, ErrExpired
	}

	s.mu.RLock()
	restore, ok := s.restorers[item.EntityType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRestorer, item.EntityType)
	}

	if err := restore(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to restore %s %s: %w", item.EntityType, item.EntityID, err)
	}
	if err := s.store.DeleteTrash(ctx, item.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("entity restored but trash item remains: %w", err)
	}

	s.logger.Info("Entity restored from trash", map[string]interface{}{
		"entity_type": item.EntityType,
		"entity_id":   item.EntityID,
	})
	return item, nil
}

// Purge deletes a trash item for good
func (s *Service) Purge(ctx context.Context, id string) error {
	return s.store.DeleteTrash(ctx, id)
}

// Sweep purges every item whose expiry is at or before now and returns the count
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	for {
		items, err := s.store.ListExpiredTrash(ctx, now.UTC(), sweepBatch)
		if err != nil {
			return purged, fmt.Errorf("failed to list expired trash: %w", err)
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			if err := s.store.DeleteTrash(ctx, item.ID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return purged, fmt.Errorf("failed to purge trash item %s: %w", item.ID, err)
			}
			purged++
		}
		if len(items) < sweepBatch {
			break
		}
	}

	if purged > 0 {
		metrics.CleanupDeleted.WithLabelValues("trash").Add(float64(purged))
		s.logger.Info("Swept expired trash", map[string]interface{}{"purged": purged})
	}
	return purged, nil
}
