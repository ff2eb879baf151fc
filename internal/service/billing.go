package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/mailer"
	"github.com/sakif/snippet-vault/internal/metrics"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/paddle"
	"github.com/sakif/snippet-vault/internal/repository"
)

// Webhook outcomes, also used as the metrics "result" label.
const (
	WebhookProcessed        = "processed"
	WebhookDuplicate        = "duplicate"
	WebhookIgnored          = "ignored"
	WebhookMissingUser      = "missing_user"
	WebhookInvalidSignature = "invalid_signature"
	WebhookMalformed        = "malformed"
	WebhookFailed           = "failed"
)

// BillingConfig is the Paddle part of the server configuration.
type BillingConfig struct {
	PriceID     string
	ClientToken string
	Environment string
	// InsecureSkipSignature lets unsigned or mis-signed webhooks through.
	// Sandbox debugging only; config validation refuses it in production.
	InsecureSkipSignature bool
}

// BillingService turns Paddle webhooks into plan changes and serves the
// settings the front end needs to open a checkout.
//
// WEBHOOK FLOW:
//
//	verify signature ──✗──▶ 401 (provider retries; a real secret fixes it)
//	      │✓
//	parse event ──✗──▶ 400
//	      │
//	transaction.completed     → ApplyUpgrade (profile → pro + ledger row, one tx)
//	transaction.payment_failed→ RecordPayment (ledger row only)
//	anything else             → 200, ignored
//
// A retry of an already-applied event hits the payments unique index and is
// reported as a duplicate with 200, so Paddle stops retrying. Any other
// persistence failure is returned, the handler answers 500, and Paddle
// retries later. Email goes out only after the transaction committed and
// its failure never changes the response.
type BillingService struct {
	verifier *paddle.Verifier
	payments repository.PaymentRepository
	users    repository.UserRepository
	profiles repository.ProfileRepository
	mail     mailer.Mailer
	cfg      BillingConfig
	logger   *slog.Logger
}

func NewBillingService(
	verifier *paddle.Verifier,
	payments repository.PaymentRepository,
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	mail mailer.Mailer,
	cfg BillingConfig,
	logger *slog.Logger,
) *BillingService {
	return &BillingService{
		verifier: verifier,
		payments: payments,
		users:    users,
		profiles: profiles,
		mail:     mail,
		cfg:      cfg,
		logger:   logger,
	}
}

// WebhookResult says what happened to one notification.
type WebhookResult struct {
	EventType string
	Outcome   string
}

// HandleWebhook verifies and applies one Paddle notification. body must be
// the raw request bytes: the signature covers them exactly.
func (s *BillingService) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) (*WebhookResult, error) {
	if err := s.verifier.Verify(body, signatureHeader); err != nil {
		if !s.cfg.InsecureSkipSignature {
			metrics.RecordWebhookEvent("", WebhookInvalidSignature)
			s.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
			return nil, apperror.Unauthorized("invalid webhook signature")
		}
		s.logger.Warn("webhook signature invalid, processing anyway (insecure_skip_signature)",
			slog.String("error", err.Error()),
		)
	}

	event, err := paddle.ParseEvent(body)
	if err != nil {
		metrics.RecordWebhookEvent("", WebhookMalformed)
		return nil, apperror.ValidationFailed("body", "malformed webhook payload")
	}

	var outcome string
	switch event.EventType {
	case paddle.EventTransactionCompleted:
		outcome, err = s.transactionCompleted(ctx, event)
	case paddle.EventTransactionPaymentFailed:
		outcome, err = s.transactionFailed(ctx, event)
	default:
		s.logger.Info("webhook event ignored",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		outcome = WebhookIgnored
	}

	if err != nil {
		metrics.RecordWebhookEvent(event.EventType, WebhookFailed)
		return nil, err
	}

	metrics.RecordWebhookEvent(event.EventType, outcome)
	return &WebhookResult{EventType: event.EventType, Outcome: outcome}, nil
}

func (s *BillingService) transactionCompleted(ctx context.Context, event *paddle.Event) (string, error) {
	txn, user, outcome, err := s.resolve(ctx, event)
	if user == nil {
		return outcome, err
	}

	upgrade := &model.PlanUpgrade{
		UserID:         user.ID,
		CustomerID:     txn.CustomerID,
		SubscriptionID: txn.SubscriptionID,
		Payment:        s.payment(user.ID, txn, model.PaymentCompleted),
	}
	if err := s.payments.ApplyUpgrade(ctx, upgrade); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("webhook already processed",
				slog.String("transaction_id", txn.ID),
				slog.String("user_id", user.ID),
			)
			return WebhookDuplicate, nil
		}
		s.logger.Error("applying plan upgrade failed",
			slog.String("transaction_id", txn.ID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("service/billing: applying upgrade: %w", err)
	}

	s.logger.Info("user upgraded to pro",
		slog.String("user_id", user.ID),
		slog.String("transaction_id", txn.ID),
	)

	s.notifyUpgrade(ctx, user)
	return WebhookProcessed, nil
}

func (s *BillingService) transactionFailed(ctx context.Context, event *paddle.Event) (string, error) {
	txn, user, outcome, err := s.resolve(ctx, event)
	if user == nil {
		return outcome, err
	}

	if err := s.payments.RecordPayment(ctx, s.payment(user.ID, txn, model.PaymentFailed)); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return WebhookDuplicate, nil
		}
		return "", fmt.Errorf("service/billing: recording failed payment: %w", err)
	}

	s.logger.Warn("payment failed",
		slog.String("user_id", user.ID),
		slog.String("transaction_id", txn.ID),
	)
	return WebhookProcessed, nil
}

// resolve decodes the transaction and loads its user. A nil user with a nil
// error means "acknowledge and stop": retrying would never succeed.
func (s *BillingService) resolve(ctx context.Context, event *paddle.Event) (*paddle.Transaction, *model.User, string, error) {
	txn, err := event.Transaction()
	if err != nil {
		s.logger.Error("webhook transaction undecodable",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil, nil, WebhookMalformed, nil
	}

	userID := txn.UserID()
	if userID == "" {
		s.logger.Error("webhook transaction has no user id",
			slog.String("event_id", event.EventID),
			slog.String("transaction_id", txn.ID),
		)
		return nil, nil, WebhookMissingUser, nil
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("webhook user does not exist",
				slog.String("user_id", userID),
				slog.String("transaction_id", txn.ID),
			)
			return nil, nil, WebhookMissingUser, nil
		}
		return nil, nil, "", fmt.Errorf("service/billing: loading user %s: %w", userID, err)
	}
	return txn, user, "", nil
}

func (s *BillingService) payment(userID string, txn *paddle.Transaction, status string) *model.Payment {
	return &model.Payment{
		UserID:        userID,
		Provider:      model.ProviderPaddle,
		TransactionID: txn.ID,
		Amount:        txn.Amount(),
		Currency:      txn.CurrencyCode,
		Status:        status,
		PlanType:      model.PlanPro,
	}
}

func (s *BillingService) notifyUpgrade(ctx context.Context, user *model.User) {
	if s.mail == nil || user.Email == "" {
		return
	}
	name := ""
	if profile, err := s.profiles.GetProfile(ctx, user.ID); err == nil {
		name = profile.FullName
	}
	if err := s.mail.SendPlanUpgraded(ctx, user.Email, name); err != nil {
		s.logger.Warn("upgrade email failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// CheckoutSettings is what Paddle.js needs to open an overlay checkout for
// this user. custom_data.user_id comes back in the webhook.
type CheckoutSettings struct {
	Enabled       bool              `json:"enabled"`
	Environment   string            `json:"environment"`
	ClientToken   string            `json:"clientToken,omitempty"`
	PriceID       string            `json:"priceId,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomData    map[string]string `json:"customData"`
	Plan          string            `json:"plan"`
}

func (s *BillingService) CheckoutSettings(ctx context.Context, userID string) (*CheckoutSettings, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &CheckoutSettings{
		Enabled:       s.cfg.PriceID != "" && s.cfg.ClientToken != "" && !profile.IsPro(),
		Environment:   s.cfg.Environment,
		ClientToken:   s.cfg.ClientToken,
		PriceID:       s.cfg.PriceID,
		CustomerEmail: user.Email,
		CustomData:    map[string]string{"user_id": userID},
		Plan:          profile.PlanType,
	}, nil
}

// ListPayments returns the caller's ledger, newest first.
func (s *BillingService) ListPayments(ctx context.Context, userID string) ([]model.Payment, error) {
	payments, err := s.payments.ListPayments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return payments, nil
}
