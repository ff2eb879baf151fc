package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/cache"
	"github.com/sakif/snippet-vault/internal/mailer"
	"github.com/sakif/snippet-vault/internal/paddle"
	"github.com/sakif/snippet-vault/internal/repository/sqlite"
	"github.com/sakif/snippet-vault/internal/service"
)

const (
	testSiteURL       = "https://vault.test"
	testWebhookSecret = "pdl_ntfset_handler"
)

// harness wires the real services over an in-memory SQLite database, the
// same way server.New does, minus Redis and the object store.
type harness struct {
	db       *sqlite.DB
	tokens   *auth.TokenService
	auth     *service.AuthService
	profiles *service.ProfileService
	plans    *service.PlanService
	snippets *service.SnippetService
	shares   *service.ShareService
	billing  *service.BillingService
	logger   *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenService("handler-test-secret-0123", time.Hour)
	require.NoError(t, err)

	users := db.Users()
	snippetStore := db.Snippets()
	publicCache := cache.NewPublicSnippetCache(nil, time.Minute, logger)
	mail := mailer.NewNoop(logger)

	plans := service.NewPlanService(users, snippetStore, db.Boilerplates(), logger)

	return &harness{
		db:       db,
		tokens:   tokens,
		auth:     service.NewAuthService(users, tokens, auth.NewPasswordServiceForTest(4), mail, service.PlanLimits{Snippets: 2, Boilerplates: 1}, logger),
		profiles: service.NewProfileService(users, logger),
		plans:    plans,
		snippets: service.NewSnippetService(snippetStore, db.Folders(), plans, publicCache, logger),
		shares:   service.NewShareService(snippetStore, users, publicCache, testSiteURL, logger),
		billing: service.NewBillingService(
			paddle.NewVerifier(testWebhookSecret, 5*time.Minute),
			db.Payments(), users, users, mail,
			service.BillingConfig{Environment: "sandbox"},
			logger,
		),
		logger: logger,
	}
}

// signup registers an account and returns its id.
func (h *harness) signup(t *testing.T, email string) string {
	t.Helper()
	res, err := h.auth.Register(context.Background(), email, "correct horse battery", "")
	require.NoError(t, err)
	return res.User.ID
}

func (h *harness) createSnippet(t *testing.T, userID, title string) string {
	t.Helper()
	code := "fmt.Println(\"hi\")"
	snippet, err := h.snippets.Create(context.Background(), userID, service.SnippetInput{
		Title:    title,
		Code:     &code,
		Language: "Go",
	})
	require.NoError(t, err)
	return snippet.ID
}

// jsonRequest builds a request whose context already carries userID, as if
// it had passed auth.RequireAuth. An empty userID leaves it anonymous.
func jsonRequest(method, target, userID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
