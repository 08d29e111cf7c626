package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// IngestResult describes a stored call record and its ledger effect
type IngestResult struct {
	CDR         *models.CDR         `json:"cdr"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// resolveCustomer finds the account a call belongs to. Inbound calls without an
// explicit customer are matched through the dialed DID.
func (s *Service) resolveCustomer(ctx context.Context, req *models.CDRIngestRequest) (*models.Customer, error) {
	if req.CustomerID != "" {
		return s.store.GetCustomer(ctx, req.CustomerID)
	}
	if req.Direction != "inbound" {
		return nil, ErrUnknownCustomer
	}

	digits := models.NormalizeNumber(req.To)
	for _, number := range []string{strings.TrimSpace(req.To), "+" + digits} {
		did, err := s.store.GetDIDByNumber(ctx, number)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if did.CustomerID == "" {
			return nil, ErrUnknownCustomer
		}
		return s.store.GetCustomer(ctx, did.CustomerID)
	}
	return nil, ErrUnknownCustomer
}

// findRate returns the longest-prefix sell rate of the customer's card for number
func (s *Service) findRate(ctx context.Context, cust *models.Customer, number string) (*store.RateMatch, error) {
	if cust.RateCardID == "" {
		return nil, nil
	}
	prefixes := models.PrefixesOf(number)
	if len(prefixes) == 0 {
		return nil, nil
	}
	matches, err := s.store.FindRatesByPrefixes(ctx, store.RateQuery{
		Direction: models.DirectionSell,
		CardID:    cust.RateCardID,
		Prefixes:  prefixes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up rates: %w", err)
	}
	return LongestMatch(matches), nil
}

// IngestCDR rates a call record, charges the customer and stores the record.
// A charge refused for lack of funds still stores the record as unbilled.
// A call id that is already stored yields store.ErrConflict before any charge
// is posted. Losing a concurrent insert race reverses the charge instead.
func (s *Service) IngestCDR(ctx context.Context, req *models.CDRIngestRequest) (*IngestResult, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	exists, err := s.store.CDRExists(ctx, req.CallID)
	if err != nil {
		return nil, fmt.Errorf("failed to check call id: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: call %s is already recorded", store.ErrConflict, req.CallID)
	}

	cust, err := s.resolveCustomer(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownCustomer
		}
		return nil, err
	}

	cdr := &models.CDR{
		ID:          uuid.NewString(),
		CustomerID:  cust.ID,
		CallID:      req.CallID,
		Direction:   req.Direction,
		From:        req.From,
		To:          req.To,
		StartedAt:   req.StartedAt.UTC(),
		Duration:    req.Duration,
		Billsec:     req.Billsec,
		Disposition: req.Disposition,
		CreatedAt:   s.now().UTC(),
	}

	match, err := s.findRate(ctx, cust, req.To)
	if err != nil {
		return nil, err
	}
	if match == nil {
		cdr.BillingStatus = models.BillingStatusNoRate
	} else {
		cdr.Prefix = match.Rate.Prefix
		cdr.RatePerMin = match.Rate.RatePerMin
		cdr.Cost = RateCall(match.Rate, req.Billsec)
		cdr.BillingStatus = models.BillingStatusBilled
	}

	result := &IngestResult{CDR: cdr}
	if cdr.Cost > 0 {
		txn, _, err := s.Charge(ctx, cust.ID, cdr.Cost, models.TxnCharge, cdr.CallID,
			fmt.Sprintf("Call to %s (%ds)", cdr.To, cdr.Billsec), "system")
		switch {
		case err == nil:
			result.Transaction = txn
		case errors.Is(err, store.ErrInsufficientFunds):
			cdr.BillingStatus = models.BillingStatusUnbilled
			s.logger.Warn("Call left unbilled for lack of funds", map[string]interface{}{
				"customer_id": cust.ID,
				"call_id":     cdr.CallID,
				"cost":        cdr.Cost.String(),
			})
		default:
			return nil, err
		}
	}

	if err := s.store.InsertCDR(ctx, cdr); err != nil {
		if result.Transaction != nil {
			s.reverse(ctx, result.Transaction)
		}
		return nil, err
	}

	metrics.CDRsIngested.WithLabelValues(cdr.BillingStatus).Inc()
	return result, nil
}

// reverse credits back a charge whose call record could not be stored
func (s *Service) reverse(ctx context.Context, txn *models.Transaction) {
	_, _, err := s.apply(ctx, &models.Transaction{
		CustomerID:  txn.CustomerID,
		Kind:        models.TxnAdjustment,
		Amount:      -txn.Amount,
		Reference:   txn.Reference,
		Description: "Reversal of " + txn.ID,
		Actor:       "system",
	})
	if err != nil {
		s.logger.Error("Failed to reverse charge", map[string]interface{}{
			"transaction_id": txn.ID,
			"customer_id":    txn.CustomerID,
			"error":          err,
		})
	}
}
