package trash

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

func newCarrier(t *testing.T, s store.Store, id string) *models.Carrier {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Carrier{ID: id, Name: "Carrier " + id, Host: "sip.example.com", Port: 5060, Protocol: "udp", Status: models.CarrierStatusActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateCarrier(context.Background(), c))
	return c
}

func newService(s store.Store) *Service {
	svc := NewService(s, time.Hour, nil)
	svc.Register(models.EntityCarrier, RestoreWith(func(ctx context.Context, c *models.Carrier) error {
		return s.CreateCarrier(ctx, c)
	}))
	return svc
}

func TestDiscardAndRestore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newService(s)

	c := newCarrier(t, s, "k1")
	require.NoError(t, s.DeleteCarrier(ctx, c.ID))

	item, err := svc.Discard(ctx, models.EntityCarrier, c.ID, "", c, "admin@voxlane.test")
	require.NoError(t, err)
	assert.Equal(t, "Carrier k1", item.Label)
	assert.WithinDuration(t, item.DeletedAt.Add(time.Hour), item.ExpiresAt, time.Second)

	restored, err := svc.Restore(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, restored.EntityID)

	got, err := s.GetCarrier(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Host, got.Host)

	_, err = s.GetTrash(ctx, item.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRestoreConflictKeepsItem(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newService(s)

	c := newCarrier(t, s, "k1")
	item, err := svc.Discard(ctx, models.EntityCarrier, c.ID, "", c, "admin")
	require.NoError(t, err)

	_, err = svc.Restore(ctx, item.ID)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.GetTrash(ctx, item.ID)
	assert.NoError(t, err)
}

func TestRestoreExpiredAndUnknownType(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newService(s)

	item, err := svc.Discard(ctx, models.EntityCarrier, "k9", "", map[string]string{"id": "k9"}, "admin")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Restore(ctx, item.ID)
	assert.ErrorIs(t, err, ErrExpired)

	svc.now = time.Now
	other, err := svc.Discard(ctx, models.EntityKYC, "x", "", map[string]string{}, "admin")
	require.NoError(t, err)
	_, err = svc.Restore(ctx, other.ID)
	assert.True(t, errors.Is(err, ErrNoRestorer))
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newService(s)

	base := time.Now()
	svc.now = func() time.Time { return base.Add(-2 * time.Hour) }
	for i := 0; i < sweepBatch+5; i++ {
		_, err := svc.Discard(ctx, models.EntityCarrier, fmt.Sprintf("old-%d", i), "", map[string]int{"i": i}, "admin")
		require.NoError(t, err)
	}
	svc.now = func() time.Time { return base }
	fresh, err := svc.Discard(ctx, models.EntityCarrier, "new", "", map[string]string{}, "admin")
	require.NoError(t, err)

	n, err := svc.Sweep(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, sweepBatch+5, n)

	items, total, err := svc.List(ctx, models.TrashFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, fresh.ID, items[0].ID)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newService(s)

	item, err := svc.Discard(ctx, models.EntityCarrier, "k1", "", map[string]string{"number": "+4420"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "+4420", item.Label)

	require.NoError(t, svc.Purge(ctx, item.ID))
	assert.ErrorIs(t, svc.Purge(ctx, item.ID), store.ErrNotFound)
}
