package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/voxlane/backoffice/pkg/audit"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/trash"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingTask struct {
	runs atomic.Int64
	err  error
}

func (c *countingTask) Sweep(context.Context, time.Time) (int, error) {
	c.runs.Add(1)
	return 2, c.err
}

func (c *countingTask) PurgeExpired(context.Context) (int, error) {
	c.runs.Add(1)
	return 1, c.err
}

func (c *countingTask) Vacuum(context.Context) error {
	c.runs.Add(1)
	return c.err
}

func TestLoopsRunAndStop(t *testing.T) {
	sweeper := &countingTask{}
	sessions := &countingTask{}
	cfg := Config{
		Enabled:              true,
		TrashSweepInterval:   5 * time.Millisecond,
		SessionPurgeInterval: 5 * time.Millisecond,
	}
	m := NewManager(cfg, sweeper, nil, sessions, nil, nil)
	m.Start()
	m.Start() // second Start is a no-op

	require.Eventually(t, func() bool {
		return sweeper.runs.Load() >= 2 && sessions.runs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	stats := m.Stats()
	assert.GreaterOrEqual(t, stats[TaskTrash].Runs, int64(2))
	assert.Equal(t, 2, stats[TaskTrash].LastDeleted)
	assert.Equal(t, stats[TaskSessions].Runs, stats[TaskSessions].TotalDeleted)
}

func TestDisabledManagerStartsNothing(t *testing.T) {
	sweeper := &countingTask{}
	m := NewManager(Config{TrashSweepInterval: time.Millisecond}, sweeper, nil, nil, nil, nil)
	m.Start()
	time.Sleep(10 * time.Millisecond)
	m.Stop()
	assert.Zero(t, sweeper.runs.Load())
}

func TestRunNowSkipsVacuum(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	trashSvc := trash.NewService(s, time.Hour, nil)
	auditSvc := audit.NewService(s, nil)
	db := &countingTask{}

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, s.InsertTrash(ctx, &models.TrashItem{
		ID: "t1", EntityType: models.EntityCarrier, EntityID: "k1", Label: "Alpha",
		Snapshot: []byte(`{}`), DeletedAt: old.Add(-time.Hour), ExpiresAt: old,
	}))
	require.NoError(t, s.InsertAudit(ctx, &models.AuditLog{
		ID: "a1", Action: "carrier.delete", EntityType: models.EntityCarrier, CreatedAt: old.Add(-400 * 24 * time.Hour),
	}))

	cfg := DefaultConfig()
	m := NewManager(cfg, trashSvc, auditSvc, nil, db, nil)
	got := m.RunNow(ctx)

	assert.Equal(t, map[string]int{TaskTrash: 1, TaskAudit: 1}, got)
	assert.Zero(t, db.runs.Load())

	m.VacuumNow(ctx)
	assert.Equal(t, int64(1), db.runs.Load())
	assert.Equal(t, int64(1), m.Stats()[TaskVacuum].Runs)
}

func TestTaskErrorRecorded(t *testing.T) {
	failing := &countingTask{err: errors.New("database is locked")}
	m := NewManager(DefaultConfig(), nil, nil, failing, nil, nil)
	m.RunNow(context.Background())

	st := m.Stats()[TaskSessions]
	assert.Equal(t, "database is locked", st.LastError)
	assert.Equal(t, int64(1), st.Runs)
}

func TestShutdownHonoursContext(t *testing.T) {
	m := NewManager(Config{Enabled: true, SessionPurgeInterval: time.Hour}, nil, nil, &countingTask{}, nil, nil)
	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}
