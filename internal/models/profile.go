package models

import (
	"strings"
	"unicode/utf8"
)

// Roles a profile can carry.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Profile is the display data of a user, owned by the surrounding application.
type Profile struct {
	ID        int64   `db:"id" json:"id"`
	Username  string  `db:"username" json:"username"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	AvatarURL *string `db:"profile_image" json:"avatar_url"`
	Role      string  `db:"role" json:"role"`
	IsActive  bool    `db:"is_active" json:"is_active"`
}

// DisplayName is "First Last" when both names are known, otherwise the username.
func (p Profile) DisplayName() string {
	first, last := strings.TrimSpace(p.FirstName), strings.TrimSpace(p.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	return p.Username
}

// Initials is the avatar fallback.
func (p Profile) Initials() string {
	first, last := strings.TrimSpace(p.FirstName), strings.TrimSpace(p.LastName)
	if first != "" && last != "" {
		return strings.ToUpper(firstRunes(first, 1) + firstRunes(last, 1))
	}
	return strings.ToUpper(firstRunes(p.Username, 2))
}

// IsAdmin reports whether the profile has the admin role.
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// UserSummary is the public part of a profile embedded in API responses.
type UserSummary struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Initials    string  `json:"initials"`
}

// Summary builds the API view of the profile.
func (p Profile) Summary() UserSummary {
	return UserSummary{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName(),
		AvatarURL:   p.AvatarURL,
		Initials:    p.Initials(),
	}
}
