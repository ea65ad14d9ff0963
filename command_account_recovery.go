package credentials

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// AccountRecovery handles forgot password requests and completes them,
// which is also how locked accounts get unlocked.
type AccountRecovery struct {
	repo     RepositoryManager
	notifier Notifier
	rt       *runtime
}

// NewAccountRecovery creates the recovery workflow
func NewAccountRecovery(repo RepositoryManager, notifier Notifier, cfg Config, opts ...Option) *AccountRecovery {
	rt := newRuntime("credentials.recovery", cfg, opts)
	return &AccountRecovery{
		repo:     repo,
		notifier: normalizeNotifier(notifier, rt.logger),
		rt:       rt,
	}
}

// Initiate sends a recovery link to a confirmed account.
func (r *AccountRecovery) Initiate(ctx context.Context, identifier string) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password recovery request")
	default:
		return r.initiate(ctx, identifier)
	}
}

func (r *AccountRecovery) initiate(ctx context.Context, identifier string) error {
	ctx, cancel := r.rt.withTimeout(ctx)
	defer cancel()

	accounts := r.repo.Accounts()

	account, err := accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			r.rt.logger.Info("password recovery requested for unknown account", "identifier", identifier)
			return ErrRecoveryNotFound
		}
		return wrapInternal(err, "failed to find account for recovery")
	}

	if account.IsDeleted {
		r.rt.logger.Info("password recovery requested for deleted account", "identifier", identifier)
		return ErrRecoveryNotFound
	}

	if !account.EmailConfirmed {
		return ErrEmailNotConfirmed
	}

	unlock, err := r.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	secret, err := r.rt.issueClaim(ctx, accounts, account, ClaimTemporaryPassword)
	if err != nil {
		return err
	}

	r.rt.notify("password_recovery", account, func() error {
		return r.notifier.SendPasswordRecovery(ctx, account, secret)
	})

	r.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventRecoveryRequested,
		Actor:     userActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}

// Verify reports whether secret matches a live recovery claim without
// consuming it.
func (r *AccountRecovery) Verify(ctx context.Context, accountID uuid.UUID, secret string) error {
	ctx, cancel := r.rt.withTimeout(ctx)
	defer cancel()
	return r.rt.verifyClaim(ctx, r.repo.Accounts(), accountID, ClaimTemporaryPassword, secret)
}

// Complete sets newPassword when secret matches a live recovery claim.
// Any lockout is lifted. Every token problem yields ErrInvalidOrExpiredToken.
func (r *AccountRecovery) Complete(ctx context.Context, accountID uuid.UUID, secret, newPassword string) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password recovery")
	default:
		return r.complete(ctx, accountID, secret, newPassword)
	}
}

func (r *AccountRecovery) complete(ctx context.Context, accountID uuid.UUID, secret, newPassword string) error {
	ctx, cancel := r.rt.withTimeout(ctx)
	defer cancel()

	accounts := r.repo.Accounts()

	account, err := accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return wrapInternal(err, "failed to find account for recovery")
	}

	if account.IsDeleted {
		return ErrInvalidOrExpiredToken
	}

	unlock, err := r.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	token, err := r.rt.loadToken(ctx, accounts, account.ID, ClaimTemporaryPassword)
	if err != nil {
		return err
	}

	switch r.rt.codec.Validate(token, secret) {
	case TokenValid:
	case TokenExpired:
		if err := accounts.RemoveClaim(ctx, account.ID, ClaimTemporaryPassword); err != nil {
			r.rt.logger.Error("failed to remove expired recovery claim", "account_id", account.ID.String(), "error", err)
		}
		return ErrInvalidOrExpiredToken
	default:
		return ErrInvalidOrExpiredToken
	}

	if err := r.rt.policy.Validate(newPassword); err != nil {
		return err
	}

	hash, err := r.rt.hasher.Hash(newPassword)
	if err != nil {
		return wrapInternal(err, "failed to hash password")
	}

	if err := accounts.ResetPasswordWithProviderToken(ctx, account.ID, token.ProviderToken, hash); err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			return ErrInvalidOrExpiredToken
		}
		return wrapInternal(err, "failed to reset password")
	}

	if account.LockoutEnd != nil || account.AccessFailedCount > 0 {
		if err := accounts.SetLockoutEnd(ctx, account.ID, nil); err != nil {
			return wrapInternal(err, "failed to clear lockout")
		}
		if err := accounts.ResetFailedCount(ctx, account.ID); err != nil {
			return wrapInternal(err, "failed to reset failed login count")
		}
	}

	if err := r.repo.PasswordHistory().RecordPassword(ctx, account.ID, hash); err != nil {
		r.rt.logger.Error("failed to record password history", "account_id", account.ID.String(), "error", err)
	}

	if err := accounts.RemoveClaim(ctx, account.ID, ClaimTemporaryPassword); err != nil {
		return wrapInternal(err, "failed to consume recovery claim")
	}

	r.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     userActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}
