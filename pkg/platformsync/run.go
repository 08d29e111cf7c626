package platformsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
)

// Status returns the running flag and the latest run
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running.Load(), Mock: s.platform.Mock()}
	switch {
	case s.current != nil:
		st.LastRun = s.current.clone()
	case s.last != nil:
		st.LastRun = s.last.clone()
	}
	return st
}

func (s *Service) begin() (*Run, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	run := &Run{
		ID:        uuid.NewString(),
		Status:    RunRunning,
		StartedAt: s.now().UTC(),
		Results:   map[string]*KindResult{},
		Errors:    []RunError{},
	}
	for _, kind := range syncOrder {
		run.Results[kind] = &KindResult{}
	}
	s.mu.Lock()
	s.current = run
	s.mu.Unlock()
	return run, nil
}

// syncOrder pushes carriers before the cards and routes that reference them,
// and rate cards before the customers that use them
var syncOrder = []string{models.EntityCarrier, models.EntityRateCard, models.EntityRoute, models.EntityCustomer}

// SyncAll pushes every carrier, rate card, route and customer. Only one run may be active.
func (s *Service) SyncAll(ctx context.Context) (*Run, error) {
	run, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.execute(ctx, run)

	s.mu.Lock()
	defer s.mu.Unlock()
	return run.clone(), nil
}

// Start launches SyncAll in the background and returns the new run
func (s *Service) Start() (*Run, error) {
	run, err := s.begin()
	if err != nil {
		return nil, err
	}
	snapshot := run.clone()
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.execute(context.Background(), run)
	}()
	return snapshot, nil
}

func (s *Service) execute(ctx context.Context, run *Run) {
	start := time.Now()
	s.logger.Info("Platform sync started", map[string]interface{}{"run_id": run.ID, "mock": s.platform.Mock()})

	for _, kind := range syncOrder {
		if ctx.Err() != nil {
			break
		}
		ids, err := s.listIDs(ctx, kind)
		if err != nil {
			s.fail(run, kind, "", err)
			continue
		}
		s.syncKind(ctx, run, kind, ids)
	}

	finished := s.now().UTC()
	s.mu.Lock()
	run.FinishedAt = &finished
	switch {
	case ctx.Err() != nil:
		run.Status = RunCancelled
	case len(run.Errors) > 0 || run.Truncated:
		run.Status = RunPartial
	default:
		run.Status = RunCompleted
	}
	s.last = run
	s.current = nil
	s.mu.Unlock()
	s.running.Store(false)

	metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("Platform sync finished", map[string]interface{}{
		"run_id":      run.ID,
		"status":      run.Status,
		"errors":      len(run.Errors),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Service) syncKind(ctx context.Context, run *Run, kind string, ids []string) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := s.Sync(ctx, kind, id); err != nil {
				s.fail(run, kind, id, err)
				return nil
			}
			s.mu.Lock()
			run.Results[kind].OK++
			s.mu.Unlock()
			return nil
		})
	}
	// Failures are collected in the run report
	_ = g.Wait()
}

func (s *Service) fail(run *Run, kind, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		run.Results[kind].Failed++
	}
	if len(run.Errors) >= maxRunErrors {
		run.Truncated = true
		return
	}
	run.Errors = append(run.Errors, RunError{Kind: kind, ID: id, Error: syncError(err)})
}

func (s *Service) listIDs(ctx context.Context, kind string) ([]string, error) {
	var ids []string
	switch kind {
	case models.EntityCarrier:
		carriers, err := s.store.ListCarriers(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range carriers {
			ids = append(ids, c.ID)
		}
	case models.EntityRateCard:
		cards, err := s.store.ListRateCards(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, rc := range cards {
			ids = append(ids, rc.ID)
		}
	case models.EntityRoute:
		routes, err := s.store.ListRoutes(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range routes {
			ids = append(ids, r.ID)
		}
	case models.EntityCustomer:
		f := models.CustomerFilter{Page: models.Page{Limit: models.MaxPageLimit}}
		for {
			page, total, err := s.store.ListCustomers(ctx, f)
			if err != nil {
				return nil, err
			}
			for _, c := range page {
				if c.Status != models.CustomerStatusClosed {
					ids = append(ids, c.ID)
				}
			}
			f.Offset += len(page)
			if len(page) == 0 || f.Offset >= total {
				break
			}
		}
	default:
		return nil, errors.New("unknown kind " + kind)
	}
	return ids, nil
}

