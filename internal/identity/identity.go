// Package identity defines the user key used throughout the messaging core.
// A user is identified solely by a normalized email string; there is no
// separate numeric id in this subsystem.
package identity

import (
	"errors"
	"strings"
)

// ErrEmptyIdentity indicates a blank or whitespace-only email.
var ErrEmptyIdentity = errors.New("identity: email is required")

// Identity is a normalized (lower-cased, trimmed) email string.
type Identity string

// Normalize lower-cases and trims an email for use as an identity key.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// New validates and normalizes a raw email into an Identity.
func New(email string) (Identity, error) {
	normalized := Normalize(email)
	if normalized == "" {
		return "", ErrEmptyIdentity
	}
	return Identity(normalized), nil
}

// String returns the normalized email.
func (i Identity) String() string {
	return string(i)
}

// Matches reports whether other normalizes to the same identity. Used for
// participant matching and self-message suppression.
func (i Identity) Matches(other string) bool {
	return string(i) != "" && Normalize(other) == string(i)
}
