package credentials

import (
	"context"
	"errors"
)

// AccountUnlock issues the temporary password claim that lifts a lockout.
// A lockout only ends through a completed recovery.
type AccountUnlock struct {
	repo     RepositoryManager
	notifier Notifier
	rt       *runtime
}

// NewAccountUnlock creates the unlock workflow
func NewAccountUnlock(repo RepositoryManager, notifier Notifier, cfg Config, opts ...Option) *AccountUnlock {
	rt := newRuntime("credentials.unlock", cfg, opts)
	return &AccountUnlock{
		repo:     repo,
		notifier: normalizeNotifier(notifier, rt.logger),
		rt:       rt,
	}
}

// GenerateUnlockLink locks the account until explicitly reset and sends a
// fresh unlock link. Unknown identifiers are reported, this path is admin
// or system triggered.
func (u *AccountUnlock) GenerateUnlockLink(ctx context.Context, identifier string) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "unlock link generation")
	default:
		return u.generateUnlockLink(ctx, identifier)
	}
}

func (u *AccountUnlock) generateUnlockLink(ctx context.Context, identifier string) error {
	ctx, cancel := u.rt.withTimeout(ctx)
	defer cancel()

	accounts := u.repo.Accounts()

	account, err := accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			u.rt.logger.Error("unlock requested for unknown account", "identifier", identifier)
			return ErrAccountNotFound
		}
		return wrapInternal(err, "failed to find account for unlock")
	}

	unlock, err := u.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	end := MaxLockoutEnd
	if err := accounts.SetLockoutEnd(ctx, account.ID, &end); err != nil {
		return wrapInternal(err, "failed to lock account")
	}
	account.LockoutEnd = &end

	return u.issueUnlockToken(ctx, accounts, account)
}

// IssueUnlockToken replaces the account's temporary password claim and
// notifies the user. It does not touch the lockout itself.
func (u *AccountUnlock) IssueUnlockToken(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}

	ctx, cancel := u.rt.withTimeout(ctx)
	defer cancel()

	unlock, err := u.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	return u.issueUnlockToken(ctx, u.repo.Accounts(), account)
}

// issueUnlockToken expects the caller to hold the account lock.
func (u *AccountUnlock) issueUnlockToken(ctx context.Context, accounts CredentialStore, account *Account) error {
	secret, err := u.rt.issueClaim(ctx, accounts, account, ClaimTemporaryPassword)
	if err != nil {
		return err
	}

	u.rt.notify("account_unlock", account, func() error {
		return u.notifier.SendAccountUnlock(ctx, account, secret)
	})

	u.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventUnlockIssued,
		Actor:     systemActor(),
		AccountID: account.ID.String(),
	})

	return nil
}
