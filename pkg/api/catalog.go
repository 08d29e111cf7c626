package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// ListCarriers lists all carriers
func (h *Handler) ListCarriers(w http.ResponseWriter, r *http.Request) {
	carriers, err := h.store.ListCarriers(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, carriers, len(carriers))
}

// CreateCarrier adds an upstream carrier and mirrors it
func (h *Handler) CreateCarrier(w http.ResponseWriter, r *http.Request) {
	var req models.CarrierRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	now := h.now().UTC()
	c := &models.Carrier{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	req.Apply(c)
	if err := h.store.CreateCarrier(r.Context(), c); err != nil {
		h.handleError(w, r, nameConflict(err, "carrier"))
		return
	}
	h.record(r, models.EntityCarrier, "create", c.ID, "", nil, c)
	h.sync.MirrorAsync(models.EntityCarrier, c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// GetCarrier returns one carrier
func (h *Handler) GetCarrier(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCarrier(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateCarrier replaces a carrier's settings
func (h *Handler) UpdateCarrier(w http.ResponseWriter, r *http.Request) {
	var req models.CarrierRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	c, err := h.store.GetCarrier(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	before := *c
	req.Apply(c)
	c.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateCarrier(ctx, c); err != nil {
		h.handleError(w, r, nameConflict(err, "carrier"))
		return
	}
	h.record(r, models.EntityCarrier, "update", c.ID, "", before, c)
	h.sync.MirrorAsync(models.EntityCarrier, c.ID)
	writeJSON(w, http.StatusOK, c)
}

// DeleteCarrier moves a carrier to the trash. Carriers used by a buy card or a route are kept.
func (h *Handler) DeleteCarrier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.store.GetCarrier(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	routes, err := h.store.ListRoutes(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	for _, rt := range routes {
		for _, id := range rt.CarrierIDs {
			if id == c.ID {
				h.handleError(w, r, fmt.Errorf("%w: carrier is used by route %s", store.ErrConflict, rt.Name))
				return
			}
		}
	}
	if err := h.store.DeleteCarrier(ctx, c.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = fmt.Errorf("%w: carrier has buy rate cards", store.ErrConflict)
		}
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityCarrier, c.ID, "", c)
	h.sync.RemoveAsync(models.EntityCarrier, c.ExternalID)
	writeJSON(w, http.StatusOK, deletedResponse(c.ID, item))
}

// SyncCarrier pushes a carrier to the softswitch now
func (h *Handler) SyncCarrier(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := h.sync.SyncCarrier(r.Context(), id); err != nil {
		h.syncFailed(w, r, err)
		return
	}
	c, err := h.store.GetCarrier(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// rateCardSnapshot is the trash form of a rate card
type rateCardSnapshot struct {
	models.RateCard
	Rates []models.Rate `json:"rates"`
}

// checkBuyCarrier verifies the carrier of a buy card exists
func (h *Handler) checkBuyCarrier(ctx context.Context, req *models.RateCardRequest) error {
	if req.Direction != models.DirectionBuy {
		return nil
	}
	_, err := h.store.GetCarrier(ctx, req.CarrierID)
	if errors.Is(err, store.ErrNotFound) {
		return fieldError("carrier_id", "does not exist")
	}
	return err
}

// ListRateCards lists rate cards, optionally of one direction
func (h *Handler) ListRateCards(w http.ResponseWriter, r *http.Request) {
	direction := r.URL.Query().Get("direction")
	if direction != "" && direction != models.DirectionBuy && direction != models.DirectionSell {
		h.handleError(w, r, fieldError("direction", "must be one of: buy, sell"))
		return
	}
	cards, err := h.store.ListRateCards(r.Context(), direction)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, cards, len(cards))
}

// CreateRateCard creates an empty rate card
func (h *Handler) CreateRateCard(w http.ResponseWriter, r *http.Request) {
	var req models.RateCardRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	if err := h.checkBuyCarrier(ctx, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	req.Currency = strings.ToUpper(req.Currency)
	now := h.now().UTC()
	rc := &models.RateCard{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	req.Apply(rc)
	if err := h.store.CreateRateCard(ctx, rc); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityRateCard, "create", rc.ID, "", nil, rc)
	h.sync.MirrorAsync(models.EntityRateCard, rc.ID)
	writeJSON(w, http.StatusCreated, rc)
}

// GetRateCard returns one rate card without its rates
func (h *Handler) GetRateCard(w http.ResponseWriter, r *http.Request) {
	rc, err := h.store.GetRateCard(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// UpdateRateCard replaces rate card metadata. The direction is fixed at creation.
func (h *Handler) UpdateRateCard(w http.ResponseWriter, r *http.Request) {
	var req models.RateCardRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	rc, err := h.store.GetRateCard(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if req.Direction != rc.Direction {
		h.handleError(w, r, fieldError("direction", "cannot be changed"))
		return
	}
	if err := h.checkBuyCarrier(ctx, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	req.Currency = strings.ToUpper(req.Currency)
	before := *rc
	req.Apply(rc)
	rc.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateRateCard(ctx, rc); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityRateCard, "update", rc.ID, "", before, rc)
	h.sync.MirrorAsync(models.EntityRateCard, rc.ID)
	writeJSON(w, http.StatusOK, rc)
}

// DeleteRateCard moves a rate card and its rates to the trash
func (h *Handler) DeleteRateCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc, err := h.store.GetRateCard(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	rates, err := h.store.ListRates(ctx, rc.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteRateCard(ctx, rc.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = fmt.Errorf("%w: rate card is assigned to customers", store.ErrConflict)
		}
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityRateCard, rc.ID, "", rateCardSnapshot{RateCard: *rc, Rates: rates}, rc)
	h.sync.RemoveAsync(models.EntityRateCard, rc.ExternalID)
	writeJSON(w, http.StatusOK, deletedResponse(rc.ID, item))
}

// ListRates lists the rates of a card ordered by prefix
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := pathVar(r, "id")
	if _, err := h.store.GetRateCard(ctx, id); err != nil {
		h.handleError(w, r, err)
		return
	}
	rates, err := h.store.ListRates(ctx, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, rates, len(rates))
}

// ReplaceRates swaps the whole rate table of a card
func (h *Handler) ReplaceRates(w http.ResponseWriter, r *http.Request) {
	var req models.RatesRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	rc, err := h.store.GetRateCard(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	for i := range req.Rates {
		req.Rates[i].RateCardID = rc.ID
		req.Rates[i].Normalize()
	}
	if err := h.store.ReplaceRates(ctx, rc.ID, req.Rates); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityRateCard, "replace_rates", rc.ID, "", map[string]int{"rates": rc.RateCount}, map[string]int{"rates": len(req.Rates)})
	h.sync.MirrorAsync(models.EntityRateCard, rc.ID)
	listResponse(w, req.Rates, len(req.Rates))
}

// SyncRateCard pushes a rate card with its rates now
func (h *Handler) SyncRateCard(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := h.sync.SyncRateCard(r.Context(), id); err != nil {
		h.syncFailed(w, r, err)
		return
	}
	rc, err := h.store.GetRateCard(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// checkCarriers verifies every carrier of a route exists
func (h *Handler) checkCarriers(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := h.store.GetCarrier(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fieldError("carrier_ids", "unknown carrier "+id)
			}
			return err
		}
	}
	return nil
}

// ListRoutes lists all routes
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.store.ListRoutes(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, routes, len(routes))
}

// CreateRoute adds a route over existing carriers
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req models.RouteRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	if err := h.checkCarriers(ctx, req.CarrierIDs); err != nil {
		h.handleError(w, r, err)
		return
	}
	now := h.now().UTC()
	rt := &models.Route{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	req.Apply(rt)
	if err := h.store.CreateRoute(ctx, rt); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityRoute, "create", rt.ID, "", nil, rt)
	h.sync.MirrorAsync(models.EntityRoute, rt.ID)
	writeJSON(w, http.StatusCreated, rt)
}

// GetRoute returns one route
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := h.store.GetRoute(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// UpdateRoute replaces a route
func (h *Handler) UpdateRoute(w http.ResponseWriter, r *http.Request) {
	var req models.RouteRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	rt, err := h.store.GetRoute(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.checkCarriers(ctx, req.CarrierIDs); err != nil {
		h.handleError(w, r, err)
		return
	}
	before := *rt
	req.Apply(rt)
	rt.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateRoute(ctx, rt); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityRoute, "update", rt.ID, "", before, rt)
	h.sync.MirrorAsync(models.EntityRoute, rt.ID)
	writeJSON(w, http.StatusOK, rt)
}

// DeleteRoute moves a route to the trash
func (h *Handler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rt, err := h.store.GetRoute(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteRoute(ctx, rt.ID); err != nil {
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityRoute, rt.ID, "", rt)
	h.sync.RemoveAsync(models.EntityRoute, rt.ExternalID)
	writeJSON(w, http.StatusOK, deletedResponse(rt.ID, item))
}

// SyncRoute pushes a route, and any carrier it needs, now
func (h *Handler) SyncRoute(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := h.sync.SyncRoute(r.Context(), id); err != nil {
		h.syncFailed(w, r, err)
		return
	}
	rt, err := h.store.GetRoute(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// ListDIDs lists the number inventory across customers
func (h *Handler) ListDIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dids, total, err := h.store.ListDIDs(r.Context(), models.DIDFilter{
		Status:     q.Get("status"),
		CustomerID: q.Get("customer_id"),
		Country:    strings.ToUpper(q.Get("country")),
		Search:     q.Get("search"),
		Page:       pageFromQuery(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, dids, total)
}

// CreateDID adds a number to the inventory
func (h *Handler) CreateDID(w http.ResponseWriter, r *http.Request) {
	var req models.DIDRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	now := h.now().UTC()
	did := &models.DID{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	req.Apply(did)
	if err := h.store.CreateDID(r.Context(), did); err != nil {
		h.handleError(w, r, numberConflict(err))
		return
	}
	h.record(r, models.EntityDID, "create", did.ID, "", nil, did)
	h.invalidate(r.Context(), "")
	writeJSON(w, http.StatusCreated, did)
}

// GetDID returns one inventory number
func (h *Handler) GetDID(w http.ResponseWriter, r *http.Request) {
	did, err := h.store.GetDID(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, did)
}

// UpdateDID edits an inventory number. Assignment is changed only by purchase and release.
func (h *Handler) UpdateDID(w http.ResponseWriter, r *http.Request) {
	var req models.DIDRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	did, err := h.store.GetDID(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	before := *did
	req.Apply(did)
	did.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateDID(ctx, did); err != nil {
		h.handleError(w, r, numberConflict(err))
		return
	}
	h.record(r, models.EntityDID, "update", did.ID, did.CustomerID, before, did)
	h.invalidate(ctx, did.CustomerID)
	writeJSON(w, http.StatusOK, did)
}

// DeleteDID moves an unassigned number to the trash
func (h *Handler) DeleteDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := h.store.GetDID(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteDID(ctx, did.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = fmt.Errorf("%w: DID is assigned to a customer", store.ErrConflict)
		}
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityDID, did.ID, "", did)
	h.invalidate(ctx, "")
	writeJSON(w, http.StatusOK, deletedResponse(did.ID, item))
}

func nameConflict(err error, what string) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: a %s with this name already exists", store.ErrConflict, what)
	}
	return err
}

func numberConflict(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: number already exists", store.ErrConflict)
	}
	return err
}
