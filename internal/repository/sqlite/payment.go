package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

var _ repository.PaymentRepository = (*PaymentDB)(nil)

// PaymentDB owns the payments ledger and the plan columns of profiles.
type PaymentDB struct {
	conn *sql.DB
}

// ApplyUpgrade moves the user to the pro plan and appends the payment row.
//
// ORDER MATTERS:
// The payment INSERT runs first. If the provider retried an event we already
// processed, the unique (provider, transaction_id, status) index rejects it,
// the transaction rolls back, and the profile is never touched twice.
func (s *PaymentDB) ApplyUpgrade(ctx context.Context, upgrade *model.PlanUpgrade) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning upgrade: %w", err)
	}
	defer tx.Rollback()

	if upgrade.Payment != nil {
		upgrade.Payment.UserID = upgrade.UserID
		if err := insertPayment(ctx, tx, upgrade.Payment); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE profiles
		 SET plan_type = ?, plan_status = ?, snippet_limit = ?, boilerplate_limit = ?,
		     payment_customer_id = CASE WHEN ? = '' THEN payment_customer_id ELSE ? END,
		     payment_subscription_id = CASE WHEN ? = '' THEN payment_subscription_id ELSE ? END,
		     updated_at = ?
		 WHERE user_id = ?`,
		model.PlanPro, model.PlanStatusActive, model.UnlimitedLimit, model.UnlimitedLimit,
		upgrade.CustomerID, upgrade.CustomerID,
		upgrade.SubscriptionID, upgrade.SubscriptionID,
		time.Now().UTC(), upgrade.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upgrading profile %s: %w", upgrade.UserID, err)
	}
	if err := requireRow(result, "profile", upgrade.UserID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing upgrade: %w", err)
	}
	return nil
}

// RecordPayment appends a ledger row on its own, e.g. for a failed charge.
func (s *PaymentDB) RecordPayment(ctx context.Context, payment *model.Payment) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning payment insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertPayment(ctx, tx, payment); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing payment: %w", err)
	}
	return nil
}

// ListPayments returns the user's ledger, newest first.
func (s *PaymentDB) ListPayments(ctx context.Context, userID string) ([]model.Payment, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, provider, transaction_id, amount, currency, status, plan_type, created_at
		 FROM payments WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing payments: %w", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Provider, &p.TransactionID,
			&p.Amount, &p.Currency, &p.Status, &p.PlanType, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating payments: %w", err)
	}
	return payments, nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	p.ID = xid.New().String()
	p.CreatedAt = time.Now().UTC()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, provider, transaction_id, amount, currency, status, plan_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Provider, p.TransactionID, p.Amount, p.Currency, p.Status, p.PlanType, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("payment", p.TransactionID)
		}
		return fmt.Errorf("sqlite: recording payment: %w", err)
	}
	return nil
}
