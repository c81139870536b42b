package auth

import "github.com/golang-jwt/jwt/v5"

// Claims mirror the session tokens minted by the identity provider.
// The subject (sub) is the user id; everything else is optional.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	// Role is the provider-level role (e.g. "authenticated"), not the dashboard role.
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
}

// UserMetadata is the free-form profile block the identity provider attaches to a user.
type UserMetadata struct {
	Name      string `json:"name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Identity is the authenticated caller as seen by handlers and services.
type Identity struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
}

func (c Claims) Identity() Identity {
	return Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		FirstName: c.UserMetadata.FirstName,
		LastName:  c.UserMetadata.LastName,
	}
}
