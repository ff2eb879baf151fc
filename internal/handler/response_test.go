package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/storage"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantError string
	}{
		{"validation", apperror.ValidationFailed("title", "title is required"), http.StatusBadRequest, "validation_error"},
		{"unauthorized", apperror.Unauthorized("nope"), http.StatusUnauthorized, "unauthorized"},
		{"limit", apperror.LimitReached("snippet", 50), http.StatusForbidden, "limit_reached"},
		{"not found", apperror.NotFound("snippet", "abc"), http.StatusNotFound, "not_found"},
		{"conflict", apperror.Conflict("user email", "a@b.c"), http.StatusConflict, "conflict"},
		{"wrapped not found", fmt.Errorf("service: %w", apperror.NotFound("folder", "f1")), http.StatusNotFound, "not_found"},
		{"storage off", fmt.Errorf("uploading: %w", storage.ErrNotConfigured), http.StatusServiceUnavailable, "unavailable"},
		{"internal", errors.New("sqlite: database is locked at /var/lib/vault.db"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotContains(t, body.Message, "/var/lib")
		})
	}
}

func TestWriteError_LimitCarriesCode(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, apperror.LimitReached("boilerplate", 20))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeLimitReached, body.Code)
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}
	body := `{"title":"` + strings.Repeat("a", maxJSONBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rr := httptest.NewRecorder()

	err := decodeJSON(rr, req, &dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                     "/dashboard",
		"/snippets/abc":        "/snippets/abc",
		"https://evil.example": "/dashboard",
		"//evil.example":       "/dashboard",
		`/\evil.example`:       "/dashboard",
		"dashboard":            "/dashboard",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), in)
	}
}
