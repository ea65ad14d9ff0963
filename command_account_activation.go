package credentials

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// AccountActivation confirms the email of a provisioned account and sets
// its first password.
type AccountActivation struct {
	repo     RepositoryManager
	notifier Notifier
	rt       *runtime
}

// NewAccountActivation creates the activation workflow
func NewAccountActivation(repo RepositoryManager, notifier Notifier, cfg Config, opts ...Option) *AccountActivation {
	rt := newRuntime("credentials.activation", cfg, opts)
	return &AccountActivation{
		repo:     repo,
		notifier: normalizeNotifier(notifier, rt.logger),
		rt:       rt,
	}
}

// Verify reports whether secret matches a live activation claim without
// consuming it.
func (a *AccountActivation) Verify(ctx context.Context, accountID uuid.UUID, secret string) error {
	ctx, cancel := a.rt.withTimeout(ctx)
	defer cancel()
	return a.rt.verifyClaim(ctx, a.repo.Accounts(), accountID, ClaimEmailConfirmation, secret)
}

// Complete confirms the email and stores password. Until the claim is
// consumed the call can be retried after a partial failure.
func (a *AccountActivation) Complete(ctx context.Context, accountID uuid.UUID, secret, password string) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "account activation")
	default:
		return a.complete(ctx, accountID, secret, password)
	}
}

func (a *AccountActivation) complete(ctx context.Context, accountID uuid.UUID, secret, password string) error {
	ctx, cancel := a.rt.withTimeout(ctx)
	defer cancel()

	accounts := a.repo.Accounts()

	account, err := accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return wrapInternal(err, "failed to find account for activation")
	}

	if account.IsDeleted {
		return ErrInvalidOrExpiredToken
	}

	unlock, err := a.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	token, err := a.rt.loadToken(ctx, accounts, account.ID, ClaimEmailConfirmation)
	if err != nil {
		return err
	}

	if a.rt.codec.Validate(token, secret) != TokenValid {
		return ErrInvalidOrExpiredToken
	}

	if err := a.rt.policy.Validate(password); err != nil {
		return err
	}

	hash, err := a.rt.hasher.Hash(password)
	if err != nil {
		return wrapInternal(err, "failed to hash password")
	}

	if !account.EmailConfirmed {
		if err := accounts.ConfirmEmailWithProviderToken(ctx, account.ID, token.ProviderToken); err != nil {
			if errors.Is(err, ErrInvalidOrExpiredToken) {
				return ErrInvalidOrExpiredToken
			}
			return wrapInternal(err, "failed to confirm email")
		}
	}

	// a previous attempt may have stored a password before failing
	if err := accounts.RemovePassword(ctx, account.ID); err != nil {
		return wrapInternal(err, "failed to clear previous password")
	}

	if err := accounts.AddPassword(ctx, account.ID, hash); err != nil {
		return wrapInternal(err, "failed to set password")
	}

	if err := a.repo.PasswordHistory().RecordPassword(ctx, account.ID, hash); err != nil {
		a.rt.logger.Error("failed to record password history", "account_id", account.ID.String(), "error", err)
	}

	if err := accounts.RemoveClaim(ctx, account.ID, ClaimEmailConfirmation); err != nil {
		return wrapInternal(err, "failed to consume activation claim")
	}

	a.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountActivated,
		Actor:     userActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}

// Resend issues a new activation link to every unconfirmed account among
// emails and returns how many were sent.
func (a *AccountActivation) Resend(ctx context.Context, emails ...string) (int, error) {
	select {
	case <-ctx.Done():
		return 0, cancelled(ctx, "activation resend")
	default:
		return a.resend(ctx, emails)
	}
}

func (a *AccountActivation) resend(ctx context.Context, emails []string) (int, error) {
	ctx, cancel := a.rt.withTimeout(ctx)
	defer cancel()

	accounts := a.repo.Accounts()

	found, err := accounts.FindByEmails(ctx, emails...)
	if err != nil {
		return 0, wrapInternal(err, "failed to find accounts for activation resend")
	}

	if len(found) == 0 {
		return 0, ErrInvalidEmails
	}

	sent := 0
	for _, account := range found {
		if account.EmailConfirmed || account.IsDeleted {
			a.rt.logger.Info("skipping activation resend", "account_id", account.ID.String(), "confirmed", account.EmailConfirmed)
			continue
		}

		if err := a.reissue(ctx, accounts, account); err != nil {
			return sent, err
		}
		sent++
	}

	return sent, nil
}

func (a *AccountActivation) reissue(ctx context.Context, accounts CredentialStore, account *Account) error {
	unlock, err := a.rt.locker.Lock(ctx, account.ID)
	if err != nil {
		return err
	}
	defer unlock()

	secret, err := a.rt.issueClaim(ctx, accounts, account, ClaimEmailConfirmation)
	if err != nil {
		return err
	}

	a.rt.notify("account_created", account, func() error {
		return a.notifier.SendAccountCreated(ctx, account, secret)
	})

	a.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventActivationResent,
		Actor:     systemActor(),
		AccountID: account.ID.String(),
	})

	return nil
}
