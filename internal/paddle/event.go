package paddle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Event types this application acts on. Anything else is acknowledged and
// ignored.
const (
	EventTransactionCompleted     = "transaction.completed"
	EventTransactionPaymentFailed = "transaction.payment_failed"
)

// Event is the notification envelope. Data is kept raw and decoded per
// event type.
type Event struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	NotificationID string          `json:"notification_id"`
	Data           json.RawMessage `json:"data"`
}

// Transaction is the subset of Paddle's transaction entity we read.
type Transaction struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CurrencyCode   string         `json:"currency_code"`
	CustomData     map[string]any `json:"custom_data"`
	Details        struct {
		Totals struct {
			// Paddle sends amounts as strings in the lowest denomination.
			Total      string `json:"total"`
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
	} `json:"details"`
}

// ParseEvent decodes the envelope.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("paddle: decoding event: %w", err)
	}
	if ev.EventType == "" {
		return nil, fmt.Errorf("paddle: event has no event_type")
	}
	return &ev, nil
}

// Transaction decodes Data as a transaction entity.
func (e *Event) Transaction() (*Transaction, error) {
	var txn Transaction
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("paddle: event %s has no data", e.EventID)
	}
	if err := json.Unmarshal(e.Data, &txn); err != nil {
		return nil, fmt.Errorf("paddle: decoding transaction: %w", err)
	}
	return &txn, nil
}

// UserID returns the application user id attached at checkout through
// custom_data. Both "user_id" and "userId" are accepted.
func (t *Transaction) UserID() string {
	for _, key := range []string{"user_id", "userId"} {
		if v, ok := t.CustomData[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// Amount returns the charged amount in minor units. grand_total is
// preferred; total is the fallback. Unparseable values yield 0.
func (t *Transaction) Amount() int64 {
	for _, raw := range []string{t.Details.Totals.GrandTotal, t.Details.Totals.Total} {
		if raw == "" {
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
