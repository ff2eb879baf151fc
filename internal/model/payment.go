package model

import "time"

// Payment statuses. A row is written once per webhook event and never updated.
const (
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// ProviderPaddle is the only payment provider wired today.
const ProviderPaddle = "paddle"

// Payment is one entry of the append-only billing ledger.
// Amount is in the currency's minor unit (cents for USD).
type Payment struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	PlanType      string    `json:"plan_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// PlanUpgrade is everything the billing repository needs to move a user to
// the pro plan and record the payment in one transaction.
type PlanUpgrade struct {
	UserID         string
	CustomerID     string
	SubscriptionID string
	Payment        *Payment
}
