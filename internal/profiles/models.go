package profiles

import "time"

// Profile is the dashboard-side record of an authenticated user.
// It is created lazily on first authenticated access and never deleted here.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	FirstName string    `json:"firstName,omitempty" db:"first_name"`
	LastName  string    `json:"lastName,omitempty" db:"last_name"`
	AvatarURL string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Patch carries optional profile changes. Nil fields are left untouched.
type Patch struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	AvatarURL *string `json:"avatarUrl" binding:"omitempty,url"`
	Active    *bool   `json:"active"`
}

func (p Patch) apply(to *Profile) {
	if p.FirstName != nil {
		to.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		to.LastName = *p.LastName
	}
	if p.AvatarURL != nil {
		to.AvatarURL = *p.AvatarURL
	}
	if p.Active != nil {
		to.Active = *p.Active
	}
}
