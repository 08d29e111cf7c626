package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/billing"
	"github.com/voxlane/backoffice/pkg/lcr"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/platformsync"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/trash"
)

// maxBodyBytes limits JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// badRequest marks malformed input that is not a validation failure
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...interface{}) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// handleError maps domain errors to HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	var breq *badRequest
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "Request validation failed", Fields: verr.Fields})
	case errors.As(err, &breq):
		writeError(w, http.StatusBadRequest, "invalid_request", breq.msg)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", conflictMessage(err))
	case errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient_funds", "Insufficient balance")
	case errors.Is(err, billing.ErrKYCRequired):
		writeError(w, http.StatusForbidden, "kyc_required", "An approved KYC submission is required for this number")
	case errors.Is(err, billing.ErrCustomerInactive), errors.Is(err, auth.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "account_suspended", "Account is suspended")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, billing.ErrInvalidAmount), errors.Is(err, lcr.ErrInvalidNumber), errors.Is(err, platformsync.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, billing.ErrUnknownCustomer):
		writeError(w, http.StatusUnprocessableEntity, "unknown_customer", err.Error())
	case errors.Is(err, trash.ErrExpired):
		writeError(w, http.StatusGone, "expired", "Trash item has expired")
	case errors.Is(err, trash.ErrNoRestorer), errors.Is(err, trash.ErrBadSnapshot):
		writeError(w, http.StatusUnprocessableEntity, "not_restorable", err.Error())
	case errors.Is(err, platformsync.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", "A platform sync is already running")
	default:
		h.logger.Error("Request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err,
		})
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func conflictMessage(err error) string {
	if msg := err.Error(); msg != store.ErrConflict.Error() {
		return msg
	}
	return "Resource conflicts with existing data"
}

// decode reads a JSON body into dst, rejecting unknown fields, then validates it
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequestf("Request body is empty")
		case errors.As(err, &maxErr):
			return badRequestf("Request body exceeds %d bytes", maxErr.Limit)
		default:
			return badRequestf("Invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequestf("Request body must contain a single JSON object")
	}
	return models.Validate(dst)
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// pageFromQuery reads limit and offset; Normalize clamps them
func pageFromQuery(r *http.Request) models.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return models.Page{Limit: limit, Offset: offset}.Normalize()
}

func listResponse[T any](w http.ResponseWriter, items []T, total int) {
	writeJSON(w, http.StatusOK, models.NewListResponse(items, total))
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return v
}
