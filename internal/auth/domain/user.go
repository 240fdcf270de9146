package domain

import (
	"strings"
	"time"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInvited   UserStatus = "invited"
	UserStatusSuspended UserStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInvited, UserStatusSuspended:
		return true
	}
	return false
}

// PlanFree is the plan every signup starts on.
const PlanFree = "free"

type User struct {
	ID              string
	Email           string // normalised, unique
	Status          UserStatus
	PasswordHash    string // argon2id PHC
	Roles           []string
	Plan            string
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u *User) IsSuspended() bool { return u.Status == UserStatusSuspended }

func (u *User) EmailVerified() bool { return u.EmailVerifiedAt != nil }

// NormalizeEmail trims and lower-cases an address. Every lookup and insert
// goes through it so the unique index sees one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
