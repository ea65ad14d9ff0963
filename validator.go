package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AuthenticationValidator decides login outcomes and owns the failed attempt
// counter and lockout.
type AuthenticationValidator struct {
	repo   RepositoryManager
	unlock *AccountUnlock
	rt     *runtime
}

// NewAuthenticationValidator creates a validator. notifier receives the
// unlock link when an account gets locked.
func NewAuthenticationValidator(repo RepositoryManager, notifier Notifier, cfg Config, opts ...Option) *AuthenticationValidator {
	return &AuthenticationValidator{
		repo:   repo,
		unlock: NewAccountUnlock(repo, notifier, cfg, opts...),
		rt:     newRuntime("credentials.validator", cfg, opts),
	}
}

// Validate checks identifier and password. Rejections come back as a
// LoginOutcome; the error is reserved for infrastructure failures.
func (v *AuthenticationValidator) Validate(ctx context.Context, identifier, password string) (LoginOutcome, error) {
	select {
	case <-ctx.Done():
		return LoginOutcome{}, cancelled(ctx, "login validation")
	default:
		return v.validate(ctx, identifier, password)
	}
}

func (v *AuthenticationValidator) validate(ctx context.Context, identifier, password string) (LoginOutcome, error) {
	ctx, cancel := v.rt.withTimeout(ctx)
	defer cancel()

	accounts := v.repo.Accounts()

	account, err := accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			v.rt.logger.Debug("login attempt for unknown identifier", "identifier", identifier)
			v.recordFailure(ctx, nil, LoginInvalidCredentials)
			return loginRejected(LoginInvalidCredentials), nil
		}
		return LoginOutcome{}, wrapInternal(err, "failed to find account during login")
	}

	if account.IsDeleted {
		v.recordFailure(ctx, account, LoginInvalidCredentials)
		return loginRejected(LoginInvalidCredentials), nil
	}

	now := v.rt.now()

	if v.rt.lockout.WindowLapsed(account, now) {
		if err := v.resetWindow(ctx, accounts, account); err != nil {
			return LoginOutcome{}, err
		}
	}

	if v.rt.lockout.IsLockedOut(account, now) {
		v.recordFailure(ctx, account, LoginLockedOut)
		return loginRejected(LoginLockedOut), nil
	}

	if err := v.rt.hasher.Compare(password, account.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			v.rt.logger.Warn("password hash could not be compared", "account_id", account.ID.String(), "error", err)
		}
		return v.registerFailure(ctx, accounts, account, now)
	}

	if account.AccessFailedCount > 0 {
		if err := accounts.ResetFailedCount(ctx, account.ID); err != nil {
			v.rt.logger.Error("failed to reset failed login count", "account_id", account.ID.String(), "error", err)
		}
		account.AccessFailedCount = 0
	}

	outcome, err := v.checkStatus(ctx, account)
	if err != nil || !outcome.Succeeded() {
		return outcome, err
	}

	if err := accounts.TrackLogin(ctx, account.ID, now); err != nil {
		v.rt.logger.Error("failed to track successful login", "account_id", account.ID.String(), "error", err)
	} else {
		account.LastLoggedInAt = &now
	}

	v.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     userActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return outcome, nil
}

// ValidateByID re-checks an already authenticated account, e.g. before a
// session refresh. The password and the failure counter are not involved.
func (v *AuthenticationValidator) ValidateByID(ctx context.Context, id uuid.UUID) (LoginOutcome, error) {
	select {
	case <-ctx.Done():
		return LoginOutcome{}, cancelled(ctx, "account validation")
	default:
	}

	ctx, cancel := v.rt.withTimeout(ctx)
	defer cancel()

	account, err := v.repo.Accounts().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return loginRejected(LoginInvalidCredentials), nil
		}
		return LoginOutcome{}, wrapInternal(err, "failed to find account during validation")
	}

	if account.IsDeleted {
		return loginRejected(LoginInvalidCredentials), nil
	}

	if v.rt.lockout.IsLockedOut(account, v.rt.now()) {
		return loginRejected(LoginLockedOut), nil
	}

	return v.checkStatus(ctx, account)
}

// ChangePassword replaces the password of a signed in account. Locked,
// unconfirmed and inactive accounts are refused before the current password
// is checked. A wrong current password is not counted as a failed login.
func (v *AuthenticationValidator) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password change")
	default:
	}

	ctx, cancel := v.rt.withTimeout(ctx)
	defer cancel()

	accounts := v.repo.Accounts()

	account, err := accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return wrapInternal(err, "failed to find account for password change")
	}

	if account.IsDeleted {
		return ErrInvalidCredentials
	}

	switch {
	case v.rt.lockout.IsLockedOut(account, v.rt.now()):
		return ErrLockedOut
	case !account.EmailConfirmed:
		return ErrEmailNotConfirmed
	case !account.IsActive:
		return ErrInactive
	}

	if err := v.rt.hasher.Compare(current, account.PasswordHash); err != nil {
		return ErrCurrentPasswordIncorrect
	}

	if err := v.rt.policy.Validate(next); err != nil {
		return err
	}

	hash, err := v.rt.hasher.Hash(next)
	if err != nil {
		return wrapInternal(err, "failed to hash password")
	}

	unlock, err := v.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	token, err := accounts.GeneratePasswordResetProviderToken(ctx, account.ID)
	if err != nil {
		return wrapInternal(err, "failed to generate provider token")
	}

	if err := accounts.ResetPasswordWithProviderToken(ctx, account.ID, token, hash); err != nil {
		return wrapInternal(err, "failed to change password")
	}

	if err := v.repo.PasswordHistory().RecordPassword(ctx, account.ID, hash); err != nil {
		v.rt.logger.Error("failed to record password history", "account_id", account.ID.String(), "error", err)
	}

	v.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     userActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}

func (v *AuthenticationValidator) checkStatus(ctx context.Context, account *Account) (LoginOutcome, error) {
	if !account.EmailConfirmed {
		v.recordFailure(ctx, account, LoginEmailNotConfirmed)
		return loginRejected(LoginEmailNotConfirmed), nil
	}

	if !account.IsActive {
		v.recordFailure(ctx, account, LoginInactive)
		return loginRejected(LoginInactive), nil
	}

	roles, err := v.repo.Roles().RolesFor(ctx, account.ID)
	if err != nil {
		return LoginOutcome{}, wrapInternal(err, "failed to load account roles")
	}

	return LoginOutcome{Status: LoginSucceeded, Account: account, Roles: roles}, nil
}

func (v *AuthenticationValidator) resetWindow(ctx context.Context, accounts CredentialStore, account *Account) error {
	unlock, err := v.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := accounts.FindByID(ctx, account.ID)
	if err != nil {
		return wrapInternal(err, "failed to reload account before window reset")
	}

	// a concurrent failure may have opened a new lockout meanwhile
	if !v.rt.lockout.WindowLapsed(current, v.rt.now()) {
		account.AccessFailedCount = current.AccessFailedCount
		account.LockoutEnd = current.LockoutEnd
		return nil
	}

	if err := accounts.ResetFailedCount(ctx, account.ID); err != nil {
		return wrapInternal(err, "failed to reset failed login count")
	}

	if err := accounts.SetLockoutEnd(ctx, account.ID, nil); err != nil {
		return wrapInternal(err, "failed to clear lockout")
	}

	account.AccessFailedCount = 0
	account.LockoutEnd = nil
	return nil
}

func (v *AuthenticationValidator) registerFailure(ctx context.Context, accounts CredentialStore, account *Account, now time.Time) (LoginOutcome, error) {
	unlock, err := v.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return LoginOutcome{}, err
	}
	defer unlock()

	count, err := accounts.IncrementFailedCount(ctx, account.ID)
	if err != nil {
		return LoginOutcome{}, wrapInternal(err, "failed to track login attempt")
	}

	if !v.rt.lockout.Reached(count) {
		v.recordFailure(ctx, account, LoginInvalidCredentials)
		return loginRejected(LoginInvalidCredentials), nil
	}

	current, err := accounts.FindByID(ctx, account.ID)
	if err != nil {
		return LoginOutcome{}, wrapInternal(err, "failed to reload account after failed login")
	}

	// a concurrent attempt already locked the account and sent the link
	if v.rt.lockout.IsLockedOut(current, now) {
		return loginRejected(LoginLockedOut), nil
	}

	end := v.rt.lockout.LockoutEnd(now)
	if err := accounts.SetLockoutEnd(ctx, account.ID, &end); err != nil {
		return LoginOutcome{}, wrapInternal(err, "failed to lock account")
	}
	current.LockoutEnd = &end

	if err := v.unlock.issueUnlockToken(ctx, accounts, current); err != nil {
		v.rt.logger.Error("failed to issue unlock token", "account_id", account.ID.String(), "error", err)
	}

	v.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountLockedOut,
		Actor:     userActor(account.ID.String()),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"failed_attempts": count,
			"lockout_end":     end,
		},
	})

	return loginRejected(LoginLockedOut), nil
}

func (v *AuthenticationValidator) recordFailure(ctx context.Context, account *Account, status LoginStatus) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "anonymous"},
		Metadata:  map[string]any{"reason": status.String()},
	}
	if account != nil {
		event.AccountID = account.ID.String()
		event.Actor = userActor(account.ID.String())
	}
	v.rt.record(ctx, event)
}
