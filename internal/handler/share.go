package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-vault/internal/service"
)

// ShareHandler exposes the share state machine over HTTP.
//
//	POST   /api/snippets/{id}/share        (owner)  private → public
//	DELETE /api/snippets/{id}/share        (owner)  public → private
//	GET    /api/snippets/public/{publicId} (anyone) strict public read
//	GET    /api/public-snippet/{publicId}  (anyone) same, legacy path
type ShareHandler struct {
	shares *service.ShareService
	logger *slog.Logger
}

func NewShareHandler(shares *service.ShareService, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{shares: shares, logger: logger}
}

type shareResponse struct {
	PublicURL string `json:"public_url"`
	PublicID  string `json:"public_id"`
	IsPublic  bool   `json:"is_public"`
}

// HandleShare makes the snippet public. Calling it again returns the same
// link.
func (h *ShareHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	snippet, err := h.shares.Share(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := shareResponse{IsPublic: snippet.IsPublic}
	if snippet.PublicID != nil {
		resp.PublicID = *snippet.PublicID
		resp.PublicURL = h.shares.PublicURL(*snippet.PublicID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUnshare hides the snippet but keeps its public id for later.
func (h *ShareHandler) HandleUnshare(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if _, err := h.shares.Unshare(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleGetPublic serves a shared snippet to anonymous readers. A private
// snippet is a 404 with no content in the body.
func (h *ShareHandler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	view, err := h.shares.GetPublic(r.Context(), r.PathValue("publicId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
