// Package model defines the data structures stored in the key-value store and
// exchanged over the API. Every struct here is persisted as JSON, so the json
// tags ARE the storage format: renaming a tag breaks existing records.
package model

import "strings"

// Role controls access to the admin surface.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserProfile is the durable identity record for a person, stored at user:{id}.
//
// ID is authoritative. Email is the natural key used for deduplication: at most
// one profile per normalized email is intended, but the store cannot enforce
// that, so the maintenance toolkit repairs violations after the fact.
//
// IDs come from two places:
//   - the OAuth provider's subject id on first login (e.g. "104233519218312345678")
//   - the admin "create user" action, which generates "user-<xid>"
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the profile carries the admin role.
func (u UserProfile) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail lowercases and trims an email so it can be used as a key.
// "  Alice@Example.COM " and "alice@example.com" must map to the same pointer.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExternalIdentity is what the OAuth provider tells us on each login.
// It contains facts only; the identity resolver decides what to do with them.
type ExternalIdentity struct {
	Subject string // provider-scoped user id ("sub")
	Email   string
	Name    string
	Picture string
}
