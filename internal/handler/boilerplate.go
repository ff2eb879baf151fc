package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/service"
)

// BoilerplateHandler serves /api/boilerplates. Same shape as the snippet
// routes, with a languages set and its own quota.
type BoilerplateHandler struct {
	boilerplates *service.BoilerplateService
	logger       *slog.Logger
}

func NewBoilerplateHandler(boilerplates *service.BoilerplateService, logger *slog.Logger) *BoilerplateHandler {
	return &BoilerplateHandler{boilerplates: boilerplates, logger: logger}
}

type boilerplateRequest struct {
	Title       string                 `json:"title" validate:"notblank,max=200"`
	Description string                 `json:"description" validate:"max=2000"`
	Code        *string                `json:"code"`
	Languages   []string               `json:"languages" validate:"min=1,max=20"`
	Tags        []string               `json:"tags" validate:"max=20"`
	Files       []model.FileDescriptor `json:"files" validate:"max=50"`
	IsFavorite  bool                   `json:"is_favorite"`
}

func (req *boilerplateRequest) input() service.BoilerplateInput {
	return service.BoilerplateInput{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Languages:   req.Languages,
		Tags:        req.Tags,
		Files:       req.Files,
		IsFavorite:  req.IsFavorite,
	}
}

// HandleList: GET /api/boilerplates?limit=&offset=
func (h *BoilerplateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.boilerplates.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGetByID: GET /api/boilerplates/{id}
func (h *BoilerplateHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	b, err := h.boilerplates.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleCreate: POST /api/boilerplates (403 LIMIT_REACHED when full)
func (h *BoilerplateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req boilerplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	b, err := h.boilerplates.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleUpdate: PUT /api/boilerplates/{id}
func (h *BoilerplateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req boilerplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	b, err := h.boilerplates.Update(r.Context(), userID, r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleDelete: DELETE /api/boilerplates/{id} → 204
func (h *BoilerplateHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.boilerplates.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleToggleFavorite: POST /api/boilerplates/{id}/favorite
func (h *BoilerplateHandler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	b, err := h.boilerplates.ToggleFavorite(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
