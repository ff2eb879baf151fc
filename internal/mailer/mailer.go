// Package mailer sends transactional email.
//
// Callers treat every send as best-effort: the plan upgrade or signup that
// triggered it is already committed, so a mail failure is logged and
// swallowed by the caller, never returned to the client.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sakif/snippet-vault/internal/metrics"
)

// Mailer is the narrow contract the services depend on.
type Mailer interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendPlanUpgraded(ctx context.Context, to, name string) error
}

// ErrProviderRejected is returned when the provider answers with a 4xx/5xx.
var ErrProviderRejected = errors.New("mailer: provider rejected message")

// sender is the part of *sendgrid.Client we call. Tests substitute it.
type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers mail through the SendGrid v3 API behind a circuit
// breaker, so a provider outage fails fast instead of stalling webhooks.
type SendGrid struct {
	client  sender
	from    *mail.Email
	siteURL string
	breaker *gobreaker.CircuitBreaker[*rest.Response]
	logger  *slog.Logger
}

const breakerName = "sendgrid"

// NewSendGrid builds the production mailer.
func NewSendGrid(apiKey, fromName, fromAddress, siteURL string, logger *slog.Logger) *SendGrid {
	return newSendGrid(sendgrid.NewSendClient(apiKey), fromName, fromAddress, siteURL, logger)
}

func newSendGrid(client sender, fromName, fromAddress, siteURL string, logger *slog.Logger) *SendGrid {
	return &SendGrid{
		client:  client,
		from:    mail.NewEmail(fromName, fromAddress),
		siteURL: siteURL,
		breaker: metrics.NewBreaker[*rest.Response](breakerName, logger),
		logger:  logger,
	}
}

func (m *SendGrid) SendWelcome(ctx context.Context, to, name string) error {
	subject := "Welcome to Snippet Vault"
	plain := fmt.Sprintf("Hi %s,\n\nYour account is ready. Start saving snippets at %s/dashboard.\n",
		displayName(name), m.siteURL)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Your account is ready. <a href=\"%s/dashboard\">Start saving snippets</a>.</p>",
		displayName(name), m.siteURL)
	return m.send(ctx, to, name, subject, plain, html)
}

func (m *SendGrid) SendPlanUpgraded(ctx context.Context, to, name string) error {
	subject := "You're on Snippet Vault Pro"
	plain := fmt.Sprintf("Hi %s,\n\nThanks for upgrading. Your snippet and boilerplate limits are gone.\n\n%s/dashboard\n",
		displayName(name), m.siteURL)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Thanks for upgrading. Your snippet and boilerplate limits are gone.</p><p><a href=\"%s/dashboard\">Open your dashboard</a></p>",
		displayName(name), m.siteURL)
	return m.send(ctx, to, name, subject, plain, html)
}

func (m *SendGrid) send(ctx context.Context, to, name, subject, plain, html string) error {
	if to == "" {
		return fmt.Errorf("mailer: no recipient address")
	}

	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail(name, to), plain, html)

	resp, err := m.breaker.Execute(func() (*rest.Response, error) {
		resp, err := m.client.SendWithContext(ctx, message)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return resp, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
		}
		return resp, nil
	})
	metrics.RecordBreakerResult(breakerName, err)
	if err != nil {
		return fmt.Errorf("mailer: sending %q: %w", subject, err)
	}

	m.logger.Debug("email sent",
		slog.String("subject", subject),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// Noop is used when no API key is configured. It only logs.
type Noop struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SendWelcome(_ context.Context, to, _ string) error {
	n.logger.Info("email disabled, skipping welcome mail", slog.String("to", to))
	return nil
}

func (n *Noop) SendPlanUpgraded(_ context.Context, to, _ string) error {
	n.logger.Info("email disabled, skipping plan upgraded mail", slog.String("to", to))
	return nil
}
