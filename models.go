package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleStudent is the default role for registered accounts
	RoleStudent UserRole = "student"
	// RoleFaculty can moderate content and suspend accounts
	RoleFaculty UserRole = "faculty"
	// RoleSuperAdmin has full administrative access
	RoleSuperAdmin UserRole = "super_admin"
)

// UserStanding is the derived lifecycle state of an account
type UserStanding string

const (
	// UserStandingPending means the account was registered but the
	// verification code was never consumed
	UserStandingPending UserStanding = "pending"
	// UserStandingActive means the account can authenticate
	UserStandingActive UserStanding = "active"
	// UserStandingSuspended means moderation disabled the account
	UserStandingSuspended UserStanding = "suspended"
)

// Challenge is a single-use secret with an optional expiry. Both fields
// are written and cleared together; an empty value means no challenge is
// open regardless of the expiry column.
type Challenge struct {
	Value     string     `bun:"value" json:"value,omitempty"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// IsOpen reports whether a challenge is stored, expired or not.
func (c Challenge) IsOpen() bool {
	return c.Value != ""
}

// IsExpired reports whether the challenge window has closed at the given
// instant. A challenge without an expiry never expires.
func (c Challenge) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string         `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"password_hash,omitempty"`
	Enabled        bool           `bun:"enabled" json:"enabled,omitempty"`
	Verification   Challenge      `bun:"embed:verification_" json:"verification,omitempty"`
	Reset          Challenge      `bun:"embed:reset_" json:"reset,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	SuspendedAt    *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Standing derives the lifecycle state from the persisted columns. An
// enabled account is active. A disabled account with a suspension
// timestamp was pulled by moderation; otherwise it simply never finished
// verification.
func (u *User) Standing() UserStanding {
	if u.Enabled {
		return UserStandingActive
	}
	if u.SuspendedAt != nil {
		return UserStandingSuspended
	}
	return UserStandingPending
}

// AddMetadata will append information to a metadata attribute
// TODO: make a trigger to merge metadata in database!
// https://stackoverflow.com/a/42954907/125083
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]interface{})
	}
	u.Metadata[key] = val
	return u
}

// standingAuthError maps a derived standing to the error surfaced at
// login time. Pending and suspended accounts report identically so a
// caller cannot distinguish the two.
func standingAuthError(standing UserStanding) error {
	switch standing {
	case UserStandingActive:
		return nil
	default:
		return ErrAccountDisabled
	}
}
