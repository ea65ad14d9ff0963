package credentials

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClaimType names a secret bearing claim attached to an account.
type ClaimType string

const (
	// ClaimEmailConfirmation carries the activation token issued at creation
	ClaimEmailConfirmation ClaimType = "email-confirmation-token"
	// ClaimTemporaryPassword carries the recovery and unlock token
	ClaimTemporaryPassword ClaimType = "temporary-password-token"
)

// Claim is a typed value attached to an account. At most one claim of each
// type exists per account.
type Claim struct {
	Type  ClaimType `json:"type"`
	Value string    `json:"value"`
}

// MaxLockoutEnd marks a lockout that only an unlock flow can lift.
var MaxLockoutEnd = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Account is the persisted identity
type Account struct {
	bun.BaseModel     `bun:"table:accounts,alias:acc"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username          string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName         string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName          string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Phone             string     `bun:"phone_number" json:"phone_number,omitempty"`
	EmailConfirmed    bool       `bun:"email_confirmed,notnull" json:"email_confirmed"`
	PasswordHash      string     `bun:"password_hash" json:"-"`
	SecurityStamp     string     `bun:"security_stamp" json:"-"`
	IsActive          bool       `bun:"is_active,notnull" json:"is_active"`
	IsDeleted         bool       `bun:"is_deleted,notnull" json:"is_deleted"`
	IsSystemGenerated bool       `bun:"is_system_generated,notnull" json:"is_system_generated"`
	AccessFailedCount int        `bun:"access_failed_count,notnull" json:"access_failed_count"`
	LockoutEnd        *time.Time `bun:"lockout_end,nullzero" json:"lockout_end,omitempty"`
	LastLoggedInAt    *time.Time `bun:"last_logged_in_at,nullzero" json:"last_logged_in_at,omitempty"`
	Version           int64      `bun:"version,notnull" json:"version"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword reports whether a password hash is set.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// FullName joins first and last name
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.LockoutEnd = cloneTime(a.LockoutEnd)
	c.LastLoggedInAt = cloneTime(a.LastLoggedInAt)
	c.CreatedAt = cloneTime(a.CreatedAt)
	c.UpdatedAt = cloneTime(a.UpdatedAt)
	return &c
}

// Role groups accounts for authorization
type Role struct {
	bun.BaseModel     `bun:"table:roles,alias:rol"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name              string     `bun:"name,notnull,unique" json:"name"`
	Description       string     `bun:"description" json:"description,omitempty"`
	IsActive          bool       `bun:"is_active,notnull" json:"is_active"`
	IsDeleted         bool       `bun:"is_deleted,notnull" json:"is_deleted"`
	IsSystemGenerated bool       `bun:"is_system_generated,notnull" json:"is_system_generated"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Clone returns a copy of the role.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	c.CreatedAt = cloneTime(r.CreatedAt)
	return &c
}

// PasswordHistoryEntry records a password hash an account has used
type PasswordHistoryEntry struct {
	bun.BaseModel `bun:"table:password_history,alias:pwh"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
