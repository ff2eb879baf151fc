package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/service"
)

// SnippetHandler manages CRUD operations for code snippets.
//
// Each handler struct "owns" one area of functionality. This one parses
// snippet requests, calls SnippetService, and writes JSON. Ownership,
// validation rules and quota all live in the service.
type SnippetHandler struct {
	snippets *service.SnippetService
	shares   *service.ShareService
	logger   *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, shares *service.ShareService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, shares: shares, logger: logger}
}

// snippetRequest is the body of POST and PUT /api/snippets.
//
// Tag rules catch the obvious shape problems early; the service re-checks
// everything (including the code-or-files rule) because it is also called
// from places other than HTTP.
type snippetRequest struct {
	Title       string                 `json:"title" validate:"notblank,max=200"`
	Description string                 `json:"description" validate:"max=2000"`
	Code        *string                `json:"code"`
	Language    string                 `json:"language" validate:"notblank,max=40"`
	Tags        []string               `json:"tags" validate:"max=20"`
	Files       []model.FileDescriptor `json:"files" validate:"max=50"`
	FolderID    *string                `json:"folder_id"`
	IsFavorite  bool                   `json:"is_favorite"`
	IsPublic    bool                   `json:"is_public"`
}

func (req *snippetRequest) input() service.SnippetInput {
	return service.SnippetInput{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Language:    req.Language,
		Tags:        req.Tags,
		Files:       req.Files,
		FolderID:    req.FolderID,
		IsFavorite:  req.IsFavorite,
	}
}

// HandleList returns the caller's snippets.
//
// HTTP: GET /api/snippets?folder_id=&tag=&language=&favorites=true&q=&limit=&offset=
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := model.SnippetFilter{
		FolderID:      q.Get("folder_id"),
		Tag:           q.Get("tag"),
		Language:      q.Get("language"),
		FavoritesOnly: q.Get("favorites") == "true",
		Query:         q.Get("q"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	snippets, err := h.snippets.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleGetByID returns one snippet.
//
// HTTP: GET /api/snippets/{id}
// Someone else's snippet is a 404, never a 403: existence is not confirmed
// to non-owners.
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	snippet, err := h.snippets.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {title, description?, code?, language, tags?, files?, folder_id?, is_public?}
//
//	400 invalid body, no code and no files, unknown folder
//	403 {"error":"limit_reached","code":"LIMIT_REACHED"} when the plan is full
//	200 the created snippet
//
// is_public=true shares the snippet right after it is created. If that
// share fails the snippet still exists: the response is 200 with the
// private snippet plus "share_error", and the client can retry through
// POST /api/snippets/{id}/share.
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := createdSnippet{Snippet: snippet}
	if req.IsPublic {
		shared, err := h.shares.Share(r.Context(), userID, snippet.ID)
		if err != nil {
			h.logger.Error("sharing new snippet failed",
				slog.String("id", snippet.ID),
				slog.String("error", err.Error()),
			)
			resp.ShareError = "snippet was saved but could not be shared; try sharing it again"
		} else {
			resp.Snippet = shared
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// createdSnippet is the snippet JSON with an optional share failure note.
type createdSnippet struct {
	*model.Snippet
	ShareError string `json:"share_error,omitempty"`
}

// HandleUpdate replaces a snippet's content.
//
// HTTP: PUT /api/snippets/{id}
// Sharing state is not part of the body; use the /share endpoints.
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), userID, r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id} → 204 No Content
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.snippets.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleToggleFavorite flips the favorite flag.
//
// HTTP: POST /api/snippets/{id}/favorite
func (h *SnippetHandler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	snippet, err := h.snippets.ToggleFavorite(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}
