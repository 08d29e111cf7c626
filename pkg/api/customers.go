package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// accountNumberAttempts bounds retries on account number collisions
const accountNumberAttempts = 5

func newAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("VX%08d", n.Int64()+10000000), nil
}

func (h *Handler) uniqueAccountNumber(ctx context.Context) (string, error) {
	for i := 0; i < accountNumberAttempts; i++ {
		acct, err := newAccountNumber()
		if err != nil {
			return "", err
		}
		if _, err := h.store.GetCustomerByAccountNumber(ctx, acct); errors.Is(err, store.ErrNotFound) {
			return acct, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not allocate an account number")
}

// checkSellCard verifies a customer rate card exists and is a sell card
func (h *Handler) checkSellCard(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	rc, err := h.store.GetRateCard(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fieldError("rate_card_id", "does not exist")
	}
	if err != nil {
		return err
	}
	if rc.Direction != models.DirectionSell {
		return fieldError("rate_card_id", "must be a sell rate card")
	}
	return nil
}

// syncFailed reports a failed softswitch push. Local state is already saved.
func (h *Handler) syncFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.handleError(w, r, err)
		return
	}
	h.logger.Warn("Platform sync failed", map[string]interface{}{"path": r.URL.Path, "error": err})
	writeError(w, http.StatusBadGateway, "sync_failed", err.Error())
}

// ListCustomers lists customers with optional status and search filters
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customers, total, err := h.store.ListCustomers(r.Context(), models.CustomerFilter{
		Status: models.CustomerStatus(q.Get("status")),
		Search: q.Get("search"),
		Page:   pageFromQuery(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, customers, total)
}

// CustomerCreated is returned when a customer is created
type CustomerCreated struct {
	*models.Customer
	Owner *models.User `json:"owner,omitempty"`
}

// CreateCustomer creates a customer and, when a password is given, its owner login
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.CustomerRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Country = strings.ToUpper(req.Country)
	req.Currency = strings.ToUpper(req.Currency)
	if err := h.checkSellCard(ctx, req.RateCardID); err != nil {
		h.handleError(w, r, err)
		return
	}

	acct, err := h.uniqueAccountNumber(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	cust := models.NewCustomer(uuid.NewString(), acct, &req)
	if err := h.store.CreateCustomer(ctx, cust); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = fmt.Errorf("%w: email is already registered", store.ErrConflict)
		}
		h.handleError(w, r, err)
		return
	}

	resp := CustomerCreated{Customer: cust}
	if req.OwnerPassword != "" {
		name := req.OwnerName
		if name == "" {
			name = req.Name
		}
		owner, err := h.createUser(ctx, cust.ID, &models.UserRequest{
			Email:    req.Email,
			Password: req.OwnerPassword,
			FullName: name,
			Role:     models.RoleOwner,
		})
		if err != nil {
			if derr := h.store.DeleteCustomer(ctx, cust.ID); derr != nil {
				h.logger.Error("Failed to roll back customer", map[string]interface{}{"customer_id": cust.ID, "error": derr})
			}
			h.handleError(w, r, err)
			return
		}
		resp.Owner = owner
		h.record(r, models.EntityUser, "create", owner.ID, cust.ID, nil, owner)
	}

	h.record(r, models.EntityCustomer, "create", cust.ID, cust.ID, nil, cust)
	h.invalidate(ctx, "")
	h.sync.MirrorAsync(models.EntityCustomer, cust.ID)
	writeJSON(w, http.StatusCreated, resp)
}

// GetCustomer returns one customer
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	cust, err := h.store.GetCustomer(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

// UpdateCustomer applies a partial update. Balance and status have their own endpoints.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.CustomerUpdate
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	if req.RateCardID != nil {
		if err := h.checkSellCard(ctx, *req.RateCardID); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}

	cust, err := h.store.GetCustomer(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	before := *cust
	req.Apply(cust)
	cust.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateCustomer(ctx, cust); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityCustomer, "update", cust.ID, cust.ID, before, cust)
	h.invalidate(ctx, cust.ID)
	h.sync.MirrorAsync(models.EntityCustomer, cust.ID)
	writeJSON(w, http.StatusOK, cust)
}

// DeleteCustomer moves a customer to the trash. Customers holding numbers cannot be deleted.
// Their users stay in place and cannot sign in until the customer is restored.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cust, err := h.store.GetCustomer(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteCustomer(ctx, cust.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = fmt.Errorf("%w: customer still holds DIDs", store.ErrConflict)
		}
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityCustomer, cust.ID, cust.ID, cust)
	h.invalidate(ctx, cust.ID)
	h.sync.RemoveAsync(models.EntityCustomer, cust.ExternalID)
	writeJSON(w, http.StatusOK, deletedResponse(cust.ID, item))
}

// SuspendCustomer blocks logins and purchases of a customer
func (h *Handler) SuspendCustomer(w http.ResponseWriter, r *http.Request) {
	h.setCustomerStatus(w, r, models.CustomerStatusSuspended, "suspend")
}

// ActivateCustomer lifts a suspension
func (h *Handler) ActivateCustomer(w http.ResponseWriter, r *http.Request) {
	h.setCustomerStatus(w, r, models.CustomerStatusActive, "activate")
}

func (h *Handler) setCustomerStatus(w http.ResponseWriter, r *http.Request, status models.CustomerStatus, verb string) {
	ctx := r.Context()
	cust, err := h.store.GetCustomer(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if cust.Status == status {
		writeJSON(w, http.StatusOK, cust)
		return
	}
	before := *cust
	cust.Status = status
	cust.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateCustomer(ctx, cust); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityCustomer, verb, cust.ID, cust.ID, before, cust)
	h.invalidate(ctx, cust.ID)
	h.sync.MirrorAsync(models.EntityCustomer, cust.ID)
	writeJSON(w, http.StatusOK, cust)
}

// AdjustBalance applies an admin credit or debit with a reason
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req models.AdjustmentRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	id := pathVar(r, "id")
	txn, cust, err := h.billing.Adjust(r.Context(), id, req.Amount, req.Reason, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityCustomer, "adjust_balance", id, id, nil, txn)
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusCreated, LedgerResponse{Transaction: txn, Balance: cust.Balance})
}

// CustomerTransactions lists a customer's ledger
func (h *Handler) CustomerTransactions(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if _, err := h.store.GetCustomer(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	txns, total, err := h.billing.Transactions(r.Context(), id, pageFromQuery(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, txns, total)
}

// SyncCustomer pushes a customer to the softswitch now
func (h *Handler) SyncCustomer(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := h.sync.SyncCustomer(r.Context(), id); err != nil {
		h.syncFailed(w, r, err)
		return
	}
	cust, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

// ListUsers lists the users of one customer, or staff users when customer_id is empty
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, users, len(users))
}
