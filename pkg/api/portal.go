package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/cdrexport"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// Dashboard returns the portal home figures
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	counts, err := h.aggregates.Dashboard(r.Context(), cid, func(ctx context.Context) (*models.DashboardCounts, error) {
		return h.store.DashboardCounts(ctx, cid, startOfDay(h.now()))
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// SidebarCounts returns the navigation badge numbers
func (h *Handler) SidebarCounts(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	counts, err := h.aggregates.Sidebar(r.Context(), cid, func(ctx context.Context) (*models.SidebarCounts, error) {
		return h.store.SidebarCounts(ctx, cid)
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Balance returns the account funds
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.billing.Balance(r.Context(), customerID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// Transactions lists the caller's ledger
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	txns, total, err := h.billing.Transactions(r.Context(), customerID(r), pageFromQuery(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, txns, total)
}

// LedgerResponse is returned by endpoints that move money
type LedgerResponse struct {
	Transaction *models.Transaction `json:"transaction"`
	Balance     models.Money        `json:"balance"`
}

// TopUp credits a payment to the caller's account
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req models.TopUpRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	txn, cust, err := h.billing.TopUp(r.Context(), cid, req.Amount, req.Reference, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityCustomer, "topup", cid, cid, nil, txn)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusCreated, LedgerResponse{Transaction: txn, Balance: cust.Balance})
}

// AvailableDIDs lists numbers that can be purchased
func (h *Handler) AvailableDIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dids, total, err := h.store.ListDIDs(r.Context(), models.DIDFilter{
		Status:  models.DIDStatusAvailable,
		Country: q.Get("country"),
		Search:  q.Get("search"),
		Page:    pageFromQuery(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, dids, total)
}

// MyDIDs lists the caller's numbers
func (h *Handler) MyDIDs(w http.ResponseWriter, r *http.Request) {
	dids, total, err := h.store.ListDIDs(r.Context(), models.DIDFilter{
		CustomerID: customerID(r),
		Search:     r.URL.Query().Get("search"),
		Page:       pageFromQuery(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, dids, total)
}

// PurchaseResponse is the result of buying a number
type PurchaseResponse struct {
	DID         *models.DID         `json:"did"`
	Transaction *models.Transaction `json:"transaction"`
}

// PurchaseDID buys an available number for the caller
func (h *Handler) PurchaseDID(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	did, txn, err := h.billing.PurchaseDID(r.Context(), cid, pathVar(r, "id"), actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityDID, "purchase", did.ID, cid, nil, did)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusOK, PurchaseResponse{DID: did, Transaction: txn})
}

// ReleaseDID returns one of the caller's numbers to the inventory
func (h *Handler) ReleaseDID(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	did, err := h.store.ReleaseDID(r.Context(), pathVar(r, "id"), cid)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityDID, "release", did.ID, cid, nil, did)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusOK, did)
}

// SetDIDDestination points one of the caller's numbers at an extension, IVR, voice agent or SIP URI
func (h *Handler) SetDIDDestination(w http.ResponseWriter, r *http.Request) {
	var req models.DIDDestinationRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	cid := customerID(r)

	did, err := h.store.GetDID(ctx, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if did.CustomerID != cid {
		h.handleError(w, r, store.ErrNotFound)
		return
	}
	if err := h.checkDestination(ctx, cid, req.DestinationType, req.DestinationID); err != nil {
		h.handleError(w, r, err)
		return
	}

	before := *did
	did.DestinationType = req.DestinationType
	did.DestinationID = req.DestinationID
	did.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateDID(ctx, did); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityDID, "route", did.ID, cid, before, did)
	writeJSON(w, http.StatusOK, did)
}

// checkDestination verifies the target belongs to the customer
func (h *Handler) checkDestination(ctx context.Context, cid, kind, id string) error {
	var err error
	switch kind {
	case models.DestinationExtension:
		_, err = h.store.GetExtension(ctx, cid, id)
	case models.DestinationIVR:
		_, err = h.store.GetIVRMenu(ctx, cid, id)
	case models.DestinationVoiceAgent:
		_, err = h.store.GetVoiceAgent(ctx, cid, id)
	default:
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return fieldError("destination_id", "does not exist")
	}
	return err
}

// MyCDRs lists the caller's call records
func (h *Handler) MyCDRs(w http.ResponseWriter, r *http.Request) {
	f, err := cdrFilter(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	f.CustomerID = customerID(r)
	cdrs, total, err := h.store.ListCDRs(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, cdrs, total)
}

// ExportCDRs streams the caller's call records as CSV or JSON
func (h *Handler) ExportCDRs(w http.ResponseWriter, r *http.Request) {
	format, err := cdrexport.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.handleError(w, r, badRequestf("%v", err))
		return
	}
	f, err := cdrFilter(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	f.CustomerID = cid

	filename := fmt.Sprintf("cdrs-%s.%s", h.now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	n, err := cdrexport.Stream(r.Context(), h.store, f, w, format)
	if err != nil {
		// Headers are sent; the truncated body is all the client gets
		h.logger.Error("CDR export failed", map[string]interface{}{"customer_id": cid, "written": n, "error": err})
		return
	}
	h.logger.Info("CDR export", map[string]interface{}{"customer_id": cid, "rows": n, "format": string(format)})
}

// KYCResponse is the caller's verification state
type KYCResponse struct {
	Status      models.KYCStatus        `json:"status"`
	Submissions []*models.KYCSubmission `json:"submissions"`
}

// MyKYC returns the caller's KYC status and submissions
func (h *Handler) MyKYC(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	cust, err := h.store.GetCustomer(r.Context(), cid)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	subs, err := h.store.ListKYC(r.Context(), "", cid)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, KYCResponse{Status: cust.KYCStatus, Submissions: subs})
}

// SubmitKYC files a verification request. Only one may be pending, and approved accounts are final.
func (h *Handler) SubmitKYC(w http.ResponseWriter, r *http.Request) {
	var req models.KYCRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	ctx := r.Context()
	cid := customerID(r)

	cust, err := h.store.GetCustomer(ctx, cid)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	switch cust.KYCStatus {
	case models.KYCStatusPending:
		h.handleError(w, r, fmt.Errorf("%w: a KYC submission is already pending", store.ErrConflict))
		return
	case models.KYCStatusApproved:
		h.handleError(w, r, fmt.Errorf("%w: KYC is already approved", store.ErrConflict))
		return
	}

	now := h.now().UTC()
	sub := &models.KYCSubmission{
		ID:           uuid.NewString(),
		CustomerID:   cid,
		Status:       models.KYCStatusPending,
		LegalName:    req.LegalName,
		DocumentType: req.DocumentType,
		DocumentRef:  req.DocumentRef,
		Address:      req.Address,
		Country:      strings.ToUpper(req.Country),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateKYC(ctx, sub); err != nil {
		h.handleError(w, r, err)
		return
	}
	cust.KYCStatus = models.KYCStatusPending
	cust.UpdatedAt = now
	if err := h.store.UpdateCustomer(ctx, cust); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityKYC, "submit", sub.ID, cid, nil, sub)
	h.invalidate(ctx, "")
	writeJSON(w, http.StatusCreated, sub)
}

// TeamUsers lists the users of the caller's account
func (h *Handler) TeamUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context(), customerID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, users, len(users))
}

// CreateTeamUser adds an owner or member to the caller's account
func (h *Handler) CreateTeamUser(w http.ResponseWriter, r *http.Request) {
	var req models.UserRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if req.Role.IsStaff() {
		h.handleError(w, r, fieldError("role", "must be one of: owner, member"))
		return
	}
	cid := customerID(r)
	user, err := h.createUser(r.Context(), cid, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityUser, "create", user.ID, cid, nil, user)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) createUser(ctx context.Context, cid string, req *models.UserRequest) (*models.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	now := h.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		CustomerID:   cid,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         req.Role,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: email is already registered", store.ErrConflict)
		}
		return nil, err
	}
	return user, nil
}
