package models

import (
	"time"
)

// Transaction kinds
const (
	TxnTopUp       = "topup"
	TxnAdjustment  = "adjustment"
	TxnCharge      = "charge"
	TxnDIDPurchase = "did_purchase"
)

// Transaction is one ledger row. Amount is signed; charges are negative.
type Transaction struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	Kind         string    `json:"kind"`
	Amount       Money     `json:"amount"`
	BalanceAfter Money     `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	Description  string    `json:"description,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsDebit reports whether the transaction takes money away and must respect the credit limit
func (t *Transaction) IsDebit() bool {
	return t.Amount < 0 && (t.Kind == TxnCharge || t.Kind == TxnDIDPurchase)
}

// TopUpRequest is a customer payment
type TopUpRequest struct {
	Amount    Money  `json:"amount" validate:"gt=0,lte=100000000000"`
	Reference string `json:"reference,omitempty" validate:"max=128"`
}

// AdjustmentRequest is an admin credit (positive) or debit (negative)
type AdjustmentRequest struct {
	Amount Money  `json:"amount" validate:"ne=0,gte=-100000000000,lte=100000000000"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// BalanceResponse summarises the account funds
type BalanceResponse struct {
	Balance     Money  `json:"balance"`
	CreditLimit Money  `json:"credit_limit"`
	Available   Money  `json:"available"`
	Currency    string `json:"currency"`
}
