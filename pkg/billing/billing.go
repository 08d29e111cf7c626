// Package billing moves money on customer ledgers and rates call records.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

var (
	ErrInvalidAmount    = errors.New("amount must not be zero")
	ErrCustomerInactive = errors.New("customer is not active")
	ErrKYCRequired      = errors.New("approved KYC is required for this number")
	ErrUnknownCustomer  = errors.New("call record cannot be matched to a customer")
)

// Service applies ledger transactions
type Service struct {
	store  store.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a billing service
func NewService(s store.Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: s, logger: logger.WithComponent("billing"), now: time.Now}
}

func (s *Service) apply(ctx context.Context, txn *models.Transaction) (*models.Transaction, *models.Customer, error) {
	txn.ID = uuid.NewString()
	txn.CreatedAt = s.now().UTC()

	cust, err := s.store.ApplyTransaction(ctx, txn)
	metrics.LedgerTransactions.WithLabelValues(txn.Kind, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("Ledger transaction applied", map[string]interface{}{
		"customer_id":   txn.CustomerID,
		"kind":          txn.Kind,
		"amount":        txn.Amount.String(),
		"balance_after": txn.BalanceAfter.String(),
	})
	return txn, cust, nil
}

// TopUp credits a customer payment
func (s *Service) TopUp(ctx context.Context, customerID string, amount models.Money, reference, actor string) (*models.Transaction, *models.Customer, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	return s.apply(ctx, &models.Transaction{
		CustomerID:  customerID,
		Kind:        models.TxnTopUp,
		Amount:      amount,
		Reference:   reference,
		Description: "Account top-up",
		Actor:       actor,
	})
}

// Adjust applies an admin credit (positive) or debit (negative). Adjustments ignore the credit limit.
func (s *Service) Adjust(ctx context.Context, customerID string, amount models.Money, reason, actor string) (*models.Transaction, *models.Customer, error) {
	if amount == 0 {
		return nil, nil, ErrInvalidAmount
	}
	return s.apply(ctx, &models.Transaction{
		CustomerID:  customerID,
		Kind:        models.TxnAdjustment,
		Amount:      amount,
		Description: reason,
		Actor:       actor,
	})
}

// Charge debits amount (given as a positive value) within the credit limit.
// It fails with store.ErrInsufficientFunds when the customer cannot cover it.
func (s *Service) Charge(ctx context.Context, customerID string, amount models.Money, kind, reference, description, actor string) (*models.Transaction, *models.Customer, error) {
	if amount < 0 {
		return nil, nil, ErrInvalidAmount
	}
	if kind == "" {
		kind = models.TxnCharge
	}
	return s.apply(ctx, &models.Transaction{
		CustomerID:  customerID,
		Kind:        kind,
		Amount:      -amount,
		Reference:   reference,
		Description: description,
		Actor:       actor,
	})
}

// Balance summarises the funds of a customer
func (s *Service) Balance(ctx context.Context, customerID string) (*models.BalanceResponse, error) {
	c, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceResponse{
		Balance:     c.Balance,
		CreditLimit: c.CreditLimit,
		Available:   c.Available(),
		Currency:    c.Currency,
	}, nil
}

// Transactions lists the ledger, newest first
func (s *Service) Transactions(ctx context.Context, customerID string, page models.Page) ([]*models.Transaction, int, error) {
	return s.store.ListTransactions(ctx, customerID, page.Normalize())
}

// PurchaseDID assigns an available number and charges setup plus the first month.
// The assignment is rolled back when the charge fails.
func (s *Service) PurchaseDID(ctx context.Context, customerID, didID, actor string) (*models.DID, *models.Transaction, error) {
	cust, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}
	if !cust.IsActive() {
		return nil, nil, ErrCustomerInactive
	}

	did, err := s.store.GetDID(ctx, didID)
	if err != nil {
		return nil, nil, err
	}
	if did.RequiresKYC && cust.KYCStatus != models.KYCStatusApproved {
		return nil, nil, ErrKYCRequired
	}

	assigned, err := s.store.AssignDID(ctx, didID, customerID, s.now().UTC())
	if err != nil {
		return nil, nil, err
	}

	price := assigned.SetupPrice + assigned.MonthlyPrice
	txn, _, err := s.Charge(ctx, customerID, price, models.TxnDIDPurchase, assigned.ID,
		fmt.Sprintf("DID %s (setup + first month)", assigned.Number), actor)
	if err != nil {
		if _, rerr := s.store.ReleaseDID(ctx, didID, customerID); rerr != nil {
			s.logger.Error("Failed to roll back DID assignment", map[string]interface{}{
				"did_id":      didID,
				"customer_id": customerID,
				"error":       rerr,
			})
		}
		return nil, nil, err
	}
	return assigned, txn, nil
}
