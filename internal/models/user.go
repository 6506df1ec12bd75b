package models

import (
	"fmt"
	"time"
)

// User represents one authenticated Spotify identity and its OAuth token triple.
//
// The spotify_id is unique across all identities. A user is created on the
// first successful OAuth callback for an unseen spotify_id and updated on
// every subsequent callback or token refresh; the core never deletes users.
type User struct {
	id             string
	sequence       int
	spotifyID      string
	displayName    string
	email          string
	profileURL     string
	accessToken    string
	refreshToken   string
	tokenExpiresAt time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewUser creates a new User for the given external identity.
func NewUser(sequence int, spotifyID, displayName string) *User {
	now := time.Now()
	return &User{
		sequence:    sequence,
		spotifyID:   spotifyID,
		displayName: displayName,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (u *User) ID() string                { return u.id }
func (u *User) Sequence() int             { return u.sequence }
func (u *User) SpotifyID() string         { return u.spotifyID }
func (u *User) DisplayName() string       { return u.displayName }
func (u *User) Email() string             { return u.email }
func (u *User) ProfileURL() string        { return u.profileURL }
func (u *User) AccessToken() string       { return u.accessToken }
func (u *User) RefreshToken() string      { return u.refreshToken }
func (u *User) TokenExpiresAt() time.Time { return u.tokenExpiresAt }
func (u *User) CreatedAt() time.Time      { return u.createdAt }
func (u *User) UpdatedAt() time.Time      { return u.updatedAt }

func (u *User) SetID(id string)                 { u.id = id }
func (u *User) SetSequence(sequence int)        { u.sequence = sequence }
func (u *User) SetDisplayName(name string)      { u.displayName = name }
func (u *User) SetEmail(email string)           { u.email = email }
func (u *User) SetProfileURL(url string)        { u.profileURL = url }
func (u *User) SetCreatedAt(t time.Time)        { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)        { u.updatedAt = t }

// SetTokens replaces the access token and absolute expiry. The refresh token
// is replaced only when non-empty; providers may omit it on refresh.
func (u *User) SetTokens(accessToken, refreshToken string, expiresAt time.Time) {
	u.accessToken = accessToken
	if refreshToken != "" {
		u.refreshToken = refreshToken
	}
	u.tokenExpiresAt = expiresAt
	u.updatedAt = time.Now()
}

// TokenValid reports whether the stored access token is still usable.
// The expiry instant itself counts as expired.
func (u *User) TokenValid(now time.Time) bool {
	return u.accessToken != "" && u.tokenExpiresAt.After(now)
}

// Validate checks required fields.
func (u *User) Validate() error {
	if u.spotifyID == "" {
		return fmt.Errorf("user spotify_id is required")
	}
	if u.displayName == "" {
		return fmt.Errorf("user display_name is required")
	}
	return nil
}

// Map returns the JSON projection of the user. Tokens are never projected.
func (u *User) Map() map[string]any {
	return map[string]any{
		"id":           u.id,
		"spotify_id":   u.spotifyID,
		"display_name": u.displayName,
		"email":        u.email,
		"profile_url":  u.profileURL,
		"created_at":   u.createdAt.Format(time.RFC3339),
	}
}
