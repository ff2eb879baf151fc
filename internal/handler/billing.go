package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/paddle"
	"github.com/sakif/snippet-vault/internal/service"
)

// maxWebhookBody bounds a Paddle notification. Real ones are a few KB.
const maxWebhookBody = 256 << 10

// BillingHandler serves checkout settings, payment history and the Paddle
// webhook.
type BillingHandler struct {
	billing *service.BillingService
	logger  *slog.Logger
}

func NewBillingHandler(billing *service.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger}
}

// HandleCheckout: GET /api/billing/checkout
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	settings, err := h.billing.CheckoutSettings(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandlePayments: GET /api/billing/payments
func (h *BillingHandler) HandlePayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	payments, err := h.billing.ListPayments(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// HandleWebhook: POST /api/webhooks/paddle
//
// RESPONSE CONTRACT (Paddle retries anything that is not 2xx):
//
//	200 {"received":true}  handled, duplicate, ignored, or permanently unusable
//	400                    body is not a Paddle event
//	401                    signature missing or wrong
//	500                    database failure, please retry
//
// The body is read raw: the signature is computed over the exact bytes.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("body", "webhook body too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("body", "could not read webhook body"))
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), body, r.Header.Get(paddle.SignatureHeader))
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("webhook handled",
		slog.String("event_type", result.EventType),
		slog.String("outcome", result.Outcome),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
