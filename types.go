package credentials

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialStore persists accounts, their claims and lockout state.
// Implementations must make claim writes unique per (account, type) and
// the failed attempt counter atomic.
type CredentialStore interface {
	// FindByIdentifier matches the username first and falls back to the
	// email of a non deleted account.
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByEmails(ctx context.Context, emails ...string) ([]*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	// Update persists profile fields guarded by Account.Version.
	Update(ctx context.Context, account *Account) (*Account, error)
	Delete(ctx context.Context, id uuid.UUID) error

	GetClaims(ctx context.Context, id uuid.UUID) ([]Claim, error)
	SetClaim(ctx context.Context, id uuid.UUID, claim Claim) error
	RemoveClaim(ctx context.Context, id uuid.UUID, claimType ClaimType) error

	IncrementFailedCount(ctx context.Context, id uuid.UUID) (int, error)
	ResetFailedCount(ctx context.Context, id uuid.UUID) error
	SetLockoutEnd(ctx context.Context, id uuid.UUID, end *time.Time) error
	TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	GenerateEmailConfirmationProviderToken(ctx context.Context, id uuid.UUID) (string, error)
	GeneratePasswordResetProviderToken(ctx context.Context, id uuid.UUID) (string, error)
	ConfirmEmailWithProviderToken(ctx context.Context, id uuid.UUID, token string) error
	ResetPasswordWithProviderToken(ctx context.Context, id uuid.UUID, token, passwordHash string) error
	AddPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	RemovePassword(ctx context.Context, id uuid.UUID) error
}

// RoleStore manages roles and account memberships.
type RoleStore interface {
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	FindRoleByID(ctx context.Context, id uuid.UUID) (*Role, error)
	CreateRole(ctx context.Context, role *Role) (*Role, error)
	AddToRole(ctx context.Context, accountID uuid.UUID, roleName string) error
	RemoveFromRoles(ctx context.Context, accountID uuid.UUID, roleNames ...string) error
	RolesFor(ctx context.Context, accountID uuid.UUID) ([]string, error)
	IsInRole(ctx context.Context, accountID uuid.UUID, roleName string) (bool, error)
}

// PasswordHistory keeps the hashes an account has used.
type PasswordHistory interface {
	RecordPassword(ctx context.Context, accountID uuid.UUID, passwordHash string) error
}

// RepositoryManager exposes the stores used by the lifecycle components.
type RepositoryManager interface {
	Accounts() CredentialStore
	Roles() RoleStore
	PasswordHistory() PasswordHistory
}

// TransactionRunner is implemented by repositories that can run a unit of
// work atomically. The stores handed to fn are bound to the transaction.
type TransactionRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, accounts CredentialStore, roles RoleStore) error) error
}

// Committer is implemented by repositories that buffer writes until an
// explicit commit.
type Committer interface {
	Commit(ctx context.Context) error
}

// Notifier delivers the out of band messages carrying one time secrets.
type Notifier interface {
	SendAccountCreated(ctx context.Context, account *Account, secret string) error
	SendPasswordRecovery(ctx context.Context, account *Account, secret string) error
	SendAccountUnlock(ctx context.Context, account *Account, secret string) error
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns ErrMismatchedHashAndPassword when password does not
	// match hash.
	Compare(password, hash string) error
}

// PasswordPolicy checks a candidate password, returning a
// *PasswordPolicyError listing every violated rule.
type PasswordPolicy interface {
	Validate(password string) error
}

// AccountLocker serializes mutations of a single account.
type AccountLocker interface {
	Lock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
}
