package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

type failingStore struct {
	store.Store
}

func (failingStore) InsertAudit(context.Context, *models.AuditLog) error {
	return errors.New("disk full")
}

func TestRecordCapturesActorAndClient(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewService(s, nil)

	var ctx context.Context
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/customers", nil)
	req.RemoteAddr = "203.0.113.9:5123"
	req.Header.Set("User-Agent", "portal-test")
	h.ServeHTTP(httptest.NewRecorder(), req)

	ctx = tenancy.WithPrincipal(ctx, &tenancy.Principal{UserID: "u1", Email: "admin@voxlane.test", Role: models.RoleAdmin})
	svc.Record(ctx, Entry{
		Action:     Action(models.EntityCustomer, "create"),
		EntityType: models.EntityCustomer,
		EntityID:   "c1",
		CustomerID: "c1",
		After:      map[string]string{"name": "Acme"},
	})

	logs, total, err := svc.List(context.Background(), models.AuditFilter{EntityID: "c1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	got := logs[0]
	assert.Equal(t, "customer.create", got.Action)
	assert.Equal(t, "u1", got.ActorID)
	assert.Equal(t, "admin", got.ActorRole)
	assert.Equal(t, "203.0.113.9", got.IPAddress)
	assert.Equal(t, "portal-test", got.UserAgent)
	assert.JSONEq(t, `{"name":"Acme"}`, string(got.After))
	assert.Nil(t, got.Before)
}

func TestRecordWithoutPrincipalIsSystem(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewService(s, nil)

	svc.Record(context.Background(), Entry{Action: "trash.sweep", EntityType: models.EntityTrash})

	logs, _, err := svc.List(context.Background(), models.AuditFilter{Action: "trash.sweep"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].ActorEmail)
}

func TestRecordIsBestEffort(t *testing.T) {
	svc := NewService(failingStore{Store: store.NewMemoryStore()}, nil)
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{Action: "did.purchase", EntityType: models.EntityDID})
	})
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewService(s, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Record(ctx, Entry{Action: "did.release", EntityType: models.EntityDID, EntityID: "d1"})

	_, total, err := svc.List(context.Background(), models.AuditFilter{EntityID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestPrune(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewService(s, nil)
	now := time.Now()

	svc.now = func() time.Time { return now.Add(-48 * time.Hour) }
	svc.Record(context.Background(), Entry{Action: "customer.update", EntityType: models.EntityCustomer})
	svc.now = func() time.Time { return now }
	svc.Record(context.Background(), Entry{Action: "customer.update", EntityType: models.EntityCustomer})

	n, err := svc.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, total, err := svc.List(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
