package credentials

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// issueClaim replaces the claim of claimType on account with a freshly
// encoded token and returns the secret to deliver. Callers hold the account
// lock.
func (r *runtime) issueClaim(ctx context.Context, accounts CredentialStore, account *Account, claimType ClaimType) (string, error) {
	var (
		providerToken string
		err           error
	)

	switch claimType {
	case ClaimEmailConfirmation:
		providerToken, err = accounts.GenerateEmailConfirmationProviderToken(ctx, account.ID)
	default:
		providerToken, err = accounts.GeneratePasswordResetProviderToken(ctx, account.ID)
	}
	if err != nil {
		return "", wrapInternal(err, "failed to generate provider token")
	}

	token, value, err := r.codec.Issue(providerToken)
	if err != nil {
		return "", wrapInternal(err, "failed to encode token")
	}

	if err := accounts.RemoveClaim(ctx, account.ID, claimType); err != nil {
		return "", wrapInternal(err, "failed to remove previous claim")
	}

	if err := accounts.SetClaim(ctx, account.ID, Claim{Type: claimType, Value: value}); err != nil {
		return "", wrapInternal(err, "failed to store claim")
	}

	return token.Secret, nil
}

// loadToken finds and decodes the claim of claimType. Missing and
// undecodable claims both surface as ErrInvalidOrExpiredToken.
func (r *runtime) loadToken(ctx context.Context, accounts CredentialStore, id uuid.UUID, claimType ClaimType) (Token, error) {
	claims, err := accounts.GetClaims(ctx, id)
	if err != nil {
		return Token{}, wrapInternal(err, "failed to load account claims")
	}

	for _, claim := range claims {
		if claim.Type != claimType {
			continue
		}
		token, err := r.codec.Parse(claim.Value)
		if err != nil {
			r.logger.Warn("stored claim could not be decoded", "claim", string(claimType), "account_id", id.String(), "error", err)
			return Token{}, ErrInvalidOrExpiredToken
		}
		return token, nil
	}

	return Token{}, ErrInvalidOrExpiredToken
}

// notify runs a notifier call, logging instead of failing.
func (r *runtime) notify(kind string, account *Account, send func() error) {
	if err := send(); err != nil {
		r.logger.Error("notification failed", "notification", kind, "account_id", account.ID.String(), "error", err)
	}
}

// verifyClaim checks secret against the claim without consuming it.
func (r *runtime) verifyClaim(ctx context.Context, accounts CredentialStore, id uuid.UUID, claimType ClaimType, secret string) error {
	account, err := accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return wrapInternal(err, "failed to find account for claim")
	}
	if account.IsDeleted {
		return ErrInvalidOrExpiredToken
	}

	token, err := r.loadToken(ctx, accounts, id, claimType)
	if err != nil {
		return err
	}
	if r.codec.Validate(token, secret) != TokenValid {
		return ErrInvalidOrExpiredToken
	}
	return nil
}
