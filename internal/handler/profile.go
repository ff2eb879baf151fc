package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-vault/internal/service"
)

// ProfileHandler serves the settings page data and the plan summary.
type ProfileHandler struct {
	profiles *service.ProfileService
	plans    *service.PlanService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, plans *service.PlanService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, plans: plans, logger: logger}
}

type profileRequest struct {
	FullName  string `json:"full_name" validate:"max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,http_url"`
	Bio       string `json:"bio" validate:"max=500"`
}

// HandleGet: GET /api/profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdate: PUT /api/profile. Plan fields are not writable here; only
// the payment webhook changes them.
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.profiles.Update(r.Context(), userID, service.ProfileInput{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandlePlan: GET /api/user/plan
//
//	{"plan":"free","snippetCount":3,"snippetLimit":50,"canCreateSnippet":true,...}
func (h *ProfileHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.plans.Status(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
