package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/trash"
)

// registerRestorers teaches the trash how to re-create every discarded entity.
// Mirrored entities lose their softswitch id on delete and are pushed again.
func (h *Handler) registerRestorers() {
	h.trash.Register(models.EntityCustomer, trash.RestoreWith(h.restoreCustomer))
	h.trash.Register(models.EntityCarrier, trash.RestoreWith(h.restoreCarrier))
	h.trash.Register(models.EntityRateCard, trash.RestoreWith(h.restoreRateCard))
	h.trash.Register(models.EntityRoute, trash.RestoreWith(h.restoreRoute))
	h.trash.Register(models.EntityDID, trash.RestoreWith(h.restoreDID))
	h.trash.Register(models.EntityExtension, trash.RestoreWith(func(ctx context.Context, e *models.Extension) error {
		if err := h.requireOwner(ctx, e.CustomerID); err != nil {
			return err
		}
		return h.store.CreateExtension(ctx, e)
	}))
	h.trash.Register(models.EntityIVR, trash.RestoreWith(func(ctx context.Context, m *models.IVRMenu) error {
		if err := h.requireOwner(ctx, m.CustomerID); err != nil {
			return err
		}
		return h.store.CreateIVRMenu(ctx, m)
	}))
	h.trash.Register(models.EntityVoiceAgent, trash.RestoreWith(func(ctx context.Context, a *models.VoiceAgent) error {
		if err := h.requireOwner(ctx, a.CustomerID); err != nil {
			return err
		}
		return h.store.CreateVoiceAgent(ctx, a)
	}))
}

// requireOwner fails when the customer owning a PBX object is gone
func (h *Handler) requireOwner(ctx context.Context, cid string) error {
	_, err := h.store.GetCustomer(ctx, cid)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: customer %s no longer exists", store.ErrConflict, cid)
	}
	return err
}

func (h *Handler) restoreCustomer(ctx context.Context, c *models.Customer) error {
	if c.RateCardID != "" {
		if _, err := h.store.GetRateCard(ctx, c.RateCardID); errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("Restored customer loses missing rate card", map[string]interface{}{"customer_id": c.ID, "rate_card_id": c.RateCardID})
			c.RateCardID = ""
		} else if err != nil {
			return err
		}
	}
	c.SyncState = models.SyncState{}
	c.UpdatedAt = h.now().UTC()
	if err := h.store.CreateCustomer(ctx, c); err != nil {
		return err
	}
	h.invalidate(ctx, c.ID)
	h.sync.MirrorAsync(models.EntityCustomer, c.ID)
	return nil
}

func (h *Handler) restoreCarrier(ctx context.Context, c *models.Carrier) error {
	c.SyncState = models.SyncState{}
	c.UpdatedAt = h.now().UTC()
	if err := h.store.CreateCarrier(ctx, c); err != nil {
		return err
	}
	h.sync.MirrorAsync(models.EntityCarrier, c.ID)
	return nil
}

func (h *Handler) restoreRateCard(ctx context.Context, snap *rateCardSnapshot) error {
	rc := snap.RateCard
	if rc.Direction == models.DirectionBuy {
		if _, err := h.store.GetCarrier(ctx, rc.CarrierID); errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: carrier %s no longer exists", store.ErrConflict, rc.CarrierID)
		} else if err != nil {
			return err
		}
	}
	rc.SyncState = models.SyncState{}
	rc.RateCount = 0
	rc.UpdatedAt = h.now().UTC()
	if err := h.store.CreateRateCard(ctx, &rc); err != nil {
		return err
	}
	if len(snap.Rates) > 0 {
		if err := h.store.ReplaceRates(ctx, rc.ID, snap.Rates); err != nil {
			// Leave nothing half restored; the item stays in the trash
			if derr := h.store.DeleteRateCard(ctx, rc.ID); derr != nil {
				h.logger.Error("Failed to undo partial rate card restore", map[string]interface{}{"rate_card_id": rc.ID, "error": derr})
			}
			return err
		}
	}
	h.sync.MirrorAsync(models.EntityRateCard, rc.ID)
	return nil
}

func (h *Handler) restoreRoute(ctx context.Context, rt *models.Route) error {
	for _, id := range rt.CarrierIDs {
		if _, err := h.store.GetCarrier(ctx, id); errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: carrier %s no longer exists", store.ErrConflict, id)
		} else if err != nil {
			return err
		}
	}
	rt.SyncState = models.SyncState{}
	rt.UpdatedAt = h.now().UTC()
	if err := h.store.CreateRoute(ctx, rt); err != nil {
		return err
	}
	h.sync.MirrorAsync(models.EntityRoute, rt.ID)
	return nil
}

func (h *Handler) restoreDID(ctx context.Context, d *models.DID) error {
	d.CustomerID = ""
	d.AssignedAt = nil
	d.DestinationType = models.DestinationNone
	d.DestinationID = ""
	if d.Status == models.DIDStatusAssigned {
		d.Status = models.DIDStatusAvailable
	}
	d.UpdatedAt = h.now().UTC()
	if err := h.store.CreateDID(ctx, d); err != nil {
		return err
	}
	h.invalidate(ctx, "")
	return nil
}
