package credentials_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/memstore"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadlineStore honours ctx on the calls provisioning makes and never
// finishes a role assignment before the deadline.
type deadlineStore struct {
	*memstore.Store
}

func (s *deadlineStore) Accounts() credentials.CredentialStore { return s }
func (s *deadlineStore) Roles() credentials.RoleStore          { return s }

func (s *deadlineStore) AddToRole(ctx context.Context, _ uuid.UUID, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *deadlineStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

// committingRepo buffers nothing but counts commits
type committingRepo struct {
	*memstore.Store
	err     error
	commits int
}

func (r *committingRepo) Commit(context.Context) error {
	r.commits++
	return r.err
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.role(t, "Editor")

	account, err := f.manager.Provisioning().CreateUser(ctx, credentials.NewAccount{
		Email:     "  xena@example.com ",
		FirstName: "Xena",
		LastName:  "Warrior",
		Phone:     "(650) 253-0000",
	}, "Editor")
	require.NoError(t, err)

	assert.Equal(t, "xena", account.Username)
	assert.Equal(t, "xena@example.com", account.Email)
	assert.Equal(t, "+16502530000", account.Phone)
	assert.True(t, account.IsActive)
	assert.False(t, account.EmailConfirmed)
	assert.False(t, account.HasPassword())

	roles, err := f.store.RolesFor(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Editor"}, roles)

	_, ok := f.claim(t, account, credentials.ClaimEmailConfirmation)
	assert.True(t, ok)
	assert.Len(t, f.notifier.Secrets("SendAccountCreated"), 1)
	assert.Equal(t, 1, f.sink.count(credentials.ActivityEventAccountProvisioned))
}

func TestCreateUserWithHashid(t *testing.T) {
	f := newFixture(t)
	f.role(t, "Editor")

	account, err := f.manager.Provisioning().CreateUser(context.Background(), credentials.NewAccount{
		Username:  "yuri",
		Email:     "yuri@example.com",
		UseHashid: true,
	}, "Editor")
	require.NoError(t, err)

	expected, err := hashid.NewUUID("yuri@example.com")
	require.NoError(t, err)
	assert.Equal(t, expected, account.ID)
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name   string
		input  credentials.NewAccount
		reason string
	}{
		{
			name:   "missing email",
			input:  credentials.NewAccount{Username: "zed"},
			reason: "email",
		},
		{
			name:   "invalid email",
			input:  credentials.NewAccount{Email: "not-an-email"},
			reason: "email",
		},
		{
			name:   "short username",
			input:  credentials.NewAccount{Username: "zz", Email: "zed@example.com"},
			reason: "username",
		},
		{
			name:   "invalid phone",
			input:  credentials.NewAccount{Email: "zed@example.com", Phone: "12"},
			reason: "phone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.role(t, "Editor")

			account, err := f.manager.Provisioning().CreateUser(context.Background(), tt.input, "Editor")
			assert.Nil(t, account)
			require.True(t, credentials.IsCreationFailed(err))

			var failed *credentials.CreationFailedError
			require.ErrorAs(t, err, &failed)
			require.NotEmpty(t, failed.Reasons)
			assert.Contains(t, failed.Reasons[0], tt.reason)
			assert.Empty(t, f.notifier.Secrets("SendAccountCreated"))
		})
	}
}

func TestCreateUserRollsBackWhenRoleMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.manager.Provisioning().CreateUser(ctx, credentials.NewAccount{Email: "amy@example.com"}, "Missing")
	assert.Nil(t, account)
	assert.True(t, credentials.IsCreationFailed(err))

	_, err = f.store.FindByIdentifier(ctx, "amy@example.com")
	assert.ErrorIs(t, err, credentials.ErrAccountNotFound)
	assert.Empty(t, f.notifier.Secrets("SendAccountCreated"))
	assert.Equal(t, 1, f.sink.count(credentials.ActivityEventProvisioningAbandoned))
	assert.Zero(t, f.sink.count(credentials.ActivityEventAccountProvisioned))
}

func TestCreateUserRollsBackAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.role(t, "Editor")

	cfg := credentials.DefaultOptions()
	cfg.OperationTimeout = 50 * time.Millisecond
	manager := credentials.New(&deadlineStore{Store: f.store}, f.notifier, cfg, f.opts...)

	account, err := manager.Provisioning().CreateUser(ctx, credentials.NewAccount{Email: "dan@example.com"}, "Editor")
	assert.Nil(t, account)
	assert.True(t, credentials.IsCreationFailed(err))

	_, err = f.store.FindByIdentifier(ctx, "dan@example.com")
	assert.ErrorIs(t, err, credentials.ErrAccountNotFound)
	assert.Empty(t, f.notifier.Secrets("SendAccountCreated"))
}

func TestCreateUserDuplicate(t *testing.T) {
	f := newFixture(t)
	f.role(t, "Editor")
	f.account(t, "ben", strongPassword)

	_, err := f.manager.Provisioning().CreateUser(context.Background(), credentials.NewAccount{Email: "ben@example.com"}, "Editor")
	assert.True(t, credentials.IsCreationFailed(err))
}

func TestCreateUserSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.Failing(assert.AnError)
	f.role(t, "Editor")

	account, err := f.manager.Provisioning().CreateUser(context.Background(), credentials.NewAccount{Email: "cleo@example.com"}, "Editor")
	require.NoError(t, err)

	_, ok := f.claim(t, account, credentials.ClaimEmailConfirmation)
	assert.True(t, ok)
}

func TestCreateUserCommits(t *testing.T) {
	f := newFixture(t)
	f.role(t, "Editor")

	repo := &committingRepo{Store: f.store, err: errors.New("flush failed")}
	manager := credentials.New(repo, f.notifier, f.cfg, f.opts...)

	account, err := manager.Provisioning().CreateUser(context.Background(), credentials.NewAccount{Email: "dora@example.com"}, "Editor")
	require.NoError(t, err)
	assert.NotNil(t, account)
	assert.Equal(t, 1, repo.commits)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.role(t, "Editor")
	f.role(t, "Viewer")
	reviewer := f.role(t, "Reviewer")

	account := f.account(t, "eve", strongPassword)
	require.NoError(t, f.store.AddToRole(ctx, account.ID, "Editor"))
	require.NoError(t, f.store.AddToRole(ctx, account.ID, "Viewer"))

	updated, err := f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{
		ID:        account.ID,
		FirstName: "Eve",
		LastName:  "Updated",
		Phone:     "+1 650 253 0000",
		IsActive:  false,
		RoleID:    reviewer.ID,
		Version:   account.Version,
	})
	require.NoError(t, err)

	assert.Equal(t, "Updated", updated.LastName)
	assert.Equal(t, "+16502530000", updated.Phone)
	assert.False(t, updated.IsActive)
	assert.Equal(t, account.Version+1, updated.Version)

	roles, err := f.store.RolesFor(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Reviewer"}, roles)
	assert.Equal(t, 1, f.sink.count(credentials.ActivityEventAccountUpdated))
}

func TestUpdateUserRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	editor := f.role(t, "Editor")
	retired, err := f.store.CreateRole(ctx, &credentials.Role{Name: "Retired", IsDeleted: true})
	require.NoError(t, err)

	account := f.account(t, "fay", strongPassword)
	require.NoError(t, f.store.AddToRole(ctx, account.ID, "Editor"))

	_, err = f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{ID: account.ID, RoleID: uuid.New()})
	assert.ErrorIs(t, err, credentials.ErrRoleNotFound)

	_, err = f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{ID: account.ID, RoleID: retired.ID})
	assert.ErrorIs(t, err, credentials.ErrRoleNotFound)

	_, err = f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{ID: uuid.New(), RoleID: editor.ID})
	assert.ErrorIs(t, err, credentials.ErrAccountNotFound)

	gone := f.account(t, "gil", strongPassword, deleted)
	_, err = f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{ID: gone.ID, RoleID: editor.ID, IsActive: true})
	assert.ErrorIs(t, err, credentials.ErrAccountNotFound)
	goneRoles, err := f.store.RolesFor(ctx, gone.ID)
	require.NoError(t, err)
	assert.Empty(t, goneRoles)

	_, err = f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{ID: account.ID, RoleID: editor.ID, Version: account.Version + 5})
	assert.ErrorIs(t, err, credentials.ErrConcurrencyConflict)

	_, err = f.manager.Provisioning().UpdateUser(ctx, credentials.AccountUpdate{ID: account.ID, RoleID: editor.ID, Phone: "abc"})
	assert.Error(t, err)

	roles, err := f.store.RolesFor(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Editor"}, roles)
}

func TestDeleteAndUndeleteUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.account(t, "gus", strongPassword)
	one := f.account(t, "hal", strongPassword)
	two := f.account(t, "ida", strongPassword)

	require.NoError(t, f.manager.Provisioning().DeleteUsers(ctx, admin.ID, one.ID, two.ID))
	assert.True(t, f.reload(t, one).IsDeleted)
	assert.True(t, f.reload(t, two).IsDeleted)
	assert.Equal(t, 2, f.sink.count(credentials.ActivityEventAccountDeleted))

	outcome, err := f.manager.Validator().Validate(ctx, "hal", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, credentials.LoginInvalidCredentials, outcome.Status)

	assert.ErrorIs(t, f.manager.Provisioning().DeleteUsers(ctx, admin.ID, one.ID), credentials.ErrAccountAlreadyDeleted)

	require.NoError(t, f.manager.Provisioning().UndeleteUsers(ctx, admin.ID, one.ID))
	assert.False(t, f.reload(t, one).IsDeleted)
	assert.Equal(t, 1, f.sink.count(credentials.ActivityEventAccountRestored))

	assert.ErrorIs(t, f.manager.Provisioning().UndeleteUsers(ctx, admin.ID, one.ID), credentials.ErrAccountNotDeleted)
}

func TestDeleteUsersRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.account(t, "jon", strongPassword)
	other := f.account(t, "kay", strongPassword)

	assert.ErrorIs(t, f.manager.Provisioning().DeleteUsers(ctx, admin.ID, other.ID, admin.ID), credentials.ErrSelfDeletion)
	assert.ErrorIs(t, f.manager.Provisioning().DeleteUsers(ctx, admin.ID, uuid.New()), credentials.ErrAccountNotFound)

	// validation happens before any write
	assert.False(t, f.reload(t, other).IsDeleted)
	assert.Zero(t, f.sink.count(credentials.ActivityEventAccountDeleted))
}
