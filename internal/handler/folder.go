package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-vault/internal/service"
)

type FolderHandler struct {
	folders *service.FolderService
	logger  *slog.Logger
}

func NewFolderHandler(folders *service.FolderService, logger *slog.Logger) *FolderHandler {
	return &FolderHandler{folders: folders, logger: logger}
}

type folderRequest struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

func (req *folderRequest) input() service.FolderInput {
	return service.FolderInput{Name: req.Name, Description: req.Description, Color: req.Color}
}

// HandleList: GET /api/folders (each with its snippet_count)
func (h *FolderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	folders, err := h.folders.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// HandleCreate: POST /api/folders
func (h *FolderHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req folderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	folder, err := h.folders.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// HandleUpdate: PUT /api/folders/{id}
func (h *FolderHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req folderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	folder, err := h.folders.Update(r.Context(), userID, r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// HandleDelete: DELETE /api/folders/{id}. The folder's snippets survive
// with folder_id = null.
func (h *FolderHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.folders.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
