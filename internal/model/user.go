// Package model defines the data structures used throughout the application.
package model

import "time"

// Plan types and statuses.
const (
	PlanFree = "free"
	PlanPro  = "pro"

	PlanStatusActive = "active"
)

// Default plan limits. UnlimitedLimit is the sentinel stored for pro users;
// it is large enough that no count comparison ever fails on it.
const (
	DefaultSnippetLimit     = 50
	DefaultBoilerplateLimit = 20
	UnlimitedLimit          = 1_000_000_000
)

// User represents a registered account (the identity half).
//
// A user signs in either with email + password or with GitHub OAuth. GitHubID
// is nil for password-only accounts; the UNIQUE constraint on github_id still
// allows many NULLs in SQLite.
//
// PasswordHash is never serialized (json:"-").
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	Login        string    `json:"login"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the mutable half of an account: display data plus the plan.
// Exactly one profile exists per user; it is created in the same
// transaction as the user row.
type Profile struct {
	UserID                string    `json:"user_id"`
	FullName              string    `json:"full_name"`
	AvatarURL             string    `json:"avatar_url"`
	Bio                   string    `json:"bio"`
	PlanType              string    `json:"plan_type"`
	PlanStatus            string    `json:"plan_status"`
	SnippetLimit          int       `json:"snippet_limit"`
	BoilerplateLimit      int       `json:"boilerplate_limit"`
	PaymentCustomerID     string    `json:"payment_customer_id,omitempty"`
	PaymentSubscriptionID string    `json:"payment_subscription_id,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsPro reports whether the profile is on the paid plan.
func (p *Profile) IsPro() bool {
	return p.PlanType == PlanPro
}

// NewFreeProfile returns the profile every new account starts with.
func NewFreeProfile(userID, fullName, avatarURL string) *Profile {
	return &Profile{
		UserID:           userID,
		FullName:         fullName,
		AvatarURL:        avatarURL,
		PlanType:         PlanFree,
		PlanStatus:       PlanStatusActive,
		SnippetLimit:     DefaultSnippetLimit,
		BoilerplateLimit: DefaultBoilerplateLimit,
	}
}

// Author returns the public author card for this profile.
func (p *Profile) Author() PublicAuthor {
	return PublicAuthor{FullName: p.FullName, AvatarURL: p.AvatarURL, Bio: p.Bio}
}
