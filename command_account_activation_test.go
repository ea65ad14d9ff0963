package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provisioned(t *testing.T, f *fixture, email string) *credentials.Account {
	t.Helper()
	if _, err := f.store.FindRoleByName(context.Background(), "Member"); err != nil {
		f.role(t, "Member")
	}
	account, err := f.manager.Provisioning().CreateUser(context.Background(), credentials.NewAccount{
		Email:     email,
		FirstName: "New",
		LastName:  "Member",
	}, "Member")
	require.NoError(t, err)
	return account
}

func TestActivationComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := provisioned(t, f, "nina@example.com")
	secret := f.notifier.LastSecret(t, "SendAccountCreated")

	require.NoError(t, f.manager.Activation().Verify(ctx, account.ID, secret))
	require.NoError(t, f.manager.Activation().Complete(ctx, account.ID, secret, strongPassword))

	reloaded := f.reload(t, account)
	assert.True(t, reloaded.EmailConfirmed)
	assert.True(t, reloaded.HasPassword())

	_, ok := f.claim(t, account, credentials.ClaimEmailConfirmation)
	assert.False(t, ok)
	assert.Len(t, f.store.History(account.ID), 1)
	assert.Equal(t, 1, f.sink.count(credentials.ActivityEventAccountActivated))

	outcome, err := f.manager.Validator().Validate(ctx, "nina", strongPassword)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	assert.Equal(t, []string{"Member"}, outcome.Roles)

	err = f.manager.Activation().Complete(ctx, account.ID, secret, "Second-Attempt-22")
	assert.ErrorIs(t, err, credentials.ErrInvalidOrExpiredToken)
}

func TestActivationBeforeCompleteRejectsLogin(t *testing.T) {
	f := newFixture(t)
	provisioned(t, f, "omar@example.com")

	outcome, err := f.manager.Validator().Validate(context.Background(), "omar", "")
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
}

func TestActivationCompleteRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := provisioned(t, f, "pia@example.com")
	secret := f.notifier.LastSecret(t, "SendAccountCreated")

	assert.ErrorIs(t, f.manager.Activation().Verify(ctx, account.ID, "nope"), credentials.ErrInvalidOrExpiredToken)
	assert.ErrorIs(t, f.manager.Activation().Complete(ctx, account.ID, "nope", strongPassword), credentials.ErrInvalidOrExpiredToken)

	err := f.manager.Activation().Complete(ctx, account.ID, secret, "weak")
	assert.True(t, credentials.IsPasswordPolicyError(err))
	assert.False(t, f.reload(t, account).EmailConfirmed)

	f.clock.Advance(12*time.Hour + time.Second)
	assert.ErrorIs(t, f.manager.Activation().Complete(ctx, account.ID, secret, strongPassword), credentials.ErrInvalidOrExpiredToken)
}

func TestActivationCompleteRetriesAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := provisioned(t, f, "quinn@example.com")
	secret := f.notifier.LastSecret(t, "SendAccountCreated")

	// simulate an attempt that confirmed the email and stored a password
	// but stopped before consuming the claim
	value, ok := f.claim(t, account, credentials.ClaimEmailConfirmation)
	require.True(t, ok)
	token, err := credentials.NewTokenCodec(f.cfg).Parse(value)
	require.NoError(t, err)
	require.NoError(t, f.store.ConfirmEmailWithProviderToken(ctx, account.ID, token.ProviderToken))

	hash, err := f.hasher.Hash("Interrupted-Pass-1")
	require.NoError(t, err)
	require.NoError(t, f.store.AddPassword(ctx, account.ID, hash))

	require.NoError(t, f.manager.Activation().Complete(ctx, account.ID, secret, strongPassword))

	outcome, err := f.manager.Validator().Validate(ctx, "quinn", strongPassword)
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
}

func TestActivationResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := provisioned(t, f, "rita@example.com")
	first := f.notifier.LastSecret(t, "SendAccountCreated")
	f.account(t, "sam", strongPassword)
	f.account(t, "tom", "", unconfirmed, deleted)

	sent, err := f.manager.Activation().Resend(ctx, "rita@example.com", "sam@example.com", "tom@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	second := f.notifier.LastSecret(t, "SendAccountCreated")
	assert.NotEqual(t, first, second)
	assert.Len(t, f.notifier.Secrets("SendAccountCreated"), 2)
	assert.Equal(t, 1, f.sink.count(credentials.ActivityEventActivationResent))

	assert.ErrorIs(t, f.manager.Activation().Verify(ctx, pending.ID, first), credentials.ErrInvalidOrExpiredToken)
	assert.NoError(t, f.manager.Activation().Complete(ctx, pending.ID, second, strongPassword))
}

func TestActivationResendUnknownEmails(t *testing.T) {
	f := newFixture(t)

	sent, err := f.manager.Activation().Resend(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, credentials.ErrInvalidEmails)
	assert.Zero(t, sent)
}

func TestActivationCompleteRejectsDeletedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.account(t, "root", strongPassword)
	account := provisioned(t, f, "wes@example.com")
	secret := f.notifier.LastSecret(t, "SendAccountCreated")

	require.NoError(t, f.manager.Provisioning().DeleteUsers(ctx, admin.ID, account.ID))

	assert.ErrorIs(t, f.manager.Activation().Verify(ctx, account.ID, secret), credentials.ErrInvalidOrExpiredToken)
	err := f.manager.Activation().Complete(ctx, account.ID, secret, strongPassword)
	assert.ErrorIs(t, err, credentials.ErrInvalidOrExpiredToken)

	reloaded := f.reload(t, account)
	assert.False(t, reloaded.EmailConfirmed)
	assert.False(t, reloaded.HasPassword())
}
