// Package handler contains the HTTP request handlers.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements http.Handler. Most of
// ours are methods with the http.HandlerFunc signature, grouped into one
// struct per area (snippets, sharing, billing, ...) that holds its injected
// services.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path, query, body, cookies)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers contain no business logic; they are the glue between HTTP and
// the services.
package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames are parsed once at startup, each paired with base.html.
var pageNames = []string{"login", "dashboard", "share", "not_found"}

// PageHandler renders the few server-side pages: the public share page at
// the short link, the dashboard and the login form.
//
// TEMPLATE COMPOSITION:
// base.html defines the page shell with {{template "content" .}}; each page
// file defines "content" (and optionally "meta"/"nav"). Every page gets its
// own parsed set so the definitions don't collide.
type PageHandler struct {
	pages         map[string]*template.Template
	shares        *service.ShareService
	snippets      *service.SnippetService
	plans         *service.PlanService
	profiles      *service.ProfileService
	githubEnabled bool
	logger        *slog.Logger
}

func NewPageHandler(
	shares *service.ShareService,
	snippets *service.SnippetService,
	plans *service.PlanService,
	profiles *service.ProfileService,
	githubEnabled bool,
	logger *slog.Logger,
) (*PageHandler, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &PageHandler{
		pages:         pages,
		shares:        shares,
		snippets:      snippets,
		plans:         plans,
		profiles:      profiles,
		githubEnabled: githubEnabled,
		logger:        logger,
	}, nil
}

// HandleHome sends visitors to their dashboard (which redirects to /login
// when there is no session).
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogin renders the sign-in form.
//
// HTTP: GET /login?next=/somewhere
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login", map[string]any{
		"Title":         "Sign in · Snippet Vault",
		"Next":          safeNext(r.URL.Query().Get("next")),
		"Denied":        r.URL.Query().Get("auth") == "denied",
		"GitHubEnabled": h.githubEnabled,
	})
}

// HandleDashboard renders the signed-in user's snippet list and plan usage.
//
// HTTP: GET /dashboard (RequirePageAuth)
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	plan, err := h.plans.Status(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	snippets, err := h.snippets.List(r.Context(), userID, model.SnippetFilter{})
	if err != nil {
		h.fail(w, err)
		return
	}

	h.render(w, http.StatusOK, "dashboard", map[string]any{
		"Title":    "Dashboard · Snippet Vault",
		"Profile":  profile,
		"Plan":     plan,
		"Snippets": snippets,
	})
}

// HandleShare renders a public snippet at its short link.
//
// HTTP: GET /s/{publicId}
//
// Same strict read as the JSON endpoint: a private or unknown id renders
// the 404 page with status 404 and none of the snippet's content.
func (h *PageHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	view, err := h.shares.GetPublic(r.Context(), r.PathValue("publicId"))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			h.render(w, http.StatusNotFound, "not_found", map[string]any{"Title": "Not found · Snippet Vault"})
			return
		}
		h.fail(w, err)
		return
	}

	h.render(w, http.StatusOK, "share", map[string]any{
		"Title":   view.Title + " · Snippet Vault",
		"Snippet": view,
	})
}

// render executes into a buffer first so a template error can still become
// a clean 500 instead of a half-written page.
func (h *PageHandler) render(w http.ResponseWriter, status int, page string, data map[string]any) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *PageHandler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("page failed", slog.String("error", err.Error()))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
