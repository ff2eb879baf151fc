package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		sentinel error
		message  string
		field    string
		code     string
	}{
		{"missing snippet", NotFound("snippet", "cq5v2r0k"), ErrNotFound, "snippet not found with id cq5v2r0k", "", ""},
		{"bad folder color", ValidationFailed("color", "color must be a hex value"), ErrValidation, "color must be a hex value", "color", ""},
		{"taken email", Conflict("user email", "ada@example.com"), ErrConflict, "user email conflict with id ada@example.com", "", ""},
		{"foreign folder", Forbidden("folder belongs to another user"), ErrForbidden, "folder belongs to another user", "", ""},
		{"no session", Unauthorized("sign in required"), ErrUnauthorized, "sign in required", "", ""},
		{"free plan full", LimitReached("snippet", 50), ErrLimitReached, "snippet limit of 50 reached, upgrade to create more", "", CodeLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if got := tt.err.Error(); got != tt.message {
				t.Errorf("Error() = %q, want %q", got, tt.message)
			}
			if tt.err.Field != tt.field {
				t.Errorf("Field = %q, want %q", tt.err.Field, tt.field)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
		})
	}
}

// A plan limit is its own kind; handlers must not confuse it with a plain
// permission failure or a validation error.
func TestLimitReachedIsDistinct(t *testing.T) {
	err := LimitReached("boilerplate", 20)
	for _, other := range []error{ErrForbidden, ErrValidation, ErrNotFound} {
		if errors.Is(err, other) {
			t.Errorf("LimitReached matched %v", other)
		}
	}
}

// Services wrap domain errors with context; the sentinel and the AppError
// details must survive that.
func TestWrappedLookup(t *testing.T) {
	wrapped := fmt.Errorf("service/snippet: create: %w", LimitReached("snippet", 3))

	if !errors.Is(wrapped, ErrLimitReached) {
		t.Fatal("sentinel lost through fmt.Errorf wrapping")
	}

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As could not find the *AppError")
	}
	if appErr.Code != CodeLimitReached {
		t.Errorf("Code = %q, want %q", appErr.Code, CodeLimitReached)
	}
	if appErr.Unwrap() != ErrLimitReached {
		t.Errorf("Unwrap() = %v, want ErrLimitReached", appErr.Unwrap())
	}
}
