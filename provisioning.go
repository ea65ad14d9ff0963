package credentials

import (
	"context"
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// NewAccount is the admin supplied data for a new account. The account
// starts active, unconfirmed and without a password.
type NewAccount struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	UseHashid bool   `json:"-"`
}

// AccountUpdate carries the editable profile fields and the single role the
// account should hold afterwards. A non zero Version is checked against the
// stored one.
type AccountUpdate struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"is_active"`
	RoleID    uuid.UUID `json:"role_id"`
	Version   int64     `json:"version"`
}

// Provisioning creates and maintains accounts on behalf of administrators.
type Provisioning struct {
	repo     RepositoryManager
	notifier Notifier
	rt       *runtime
}

// NewProvisioning creates the provisioning saga
func NewProvisioning(repo RepositoryManager, notifier Notifier, cfg Config, opts ...Option) *Provisioning {
	rt := newRuntime("credentials.provisioning", cfg, opts)
	return &Provisioning{
		repo:     repo,
		notifier: normalizeNotifier(notifier, rt.logger),
		rt:       rt,
	}
}

// CreateUser creates the account, assigns roleName and sends the activation
// link. If the account or its role can not be stored nothing is left behind
// and a *CreationFailedError is returned.
func (p *Provisioning) CreateUser(ctx context.Context, input NewAccount, roleName string) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx, "account provisioning")
	default:
		return p.createUser(ctx, input, roleName)
	}
}

func (p *Provisioning) createUser(ctx context.Context, input NewAccount, roleName string) (*Account, error) {
	ctx, cancel := p.rt.withTimeout(ctx)
	defer cancel()

	account, reasons := p.newAccount(input)
	if len(reasons) > 0 {
		return nil, &CreationFailedError{Reasons: reasons}
	}

	var created *Account

	err := p.unitOfWork(ctx, func(ctx context.Context, accounts CredentialStore, roles RoleStore) error {
		s := &saga{logger: p.rt.logger, timeout: p.rt.cfg.GetOperationTimeout()}

		s.add("create account",
			func(ctx context.Context) error {
				out, err := accounts.Create(ctx, account)
				if err != nil {
					return err
				}
				created = out
				return nil
			},
			func(ctx context.Context) error {
				return accounts.Delete(ctx, created.ID)
			},
		)

		s.add("assign role",
			func(ctx context.Context) error {
				return roles.AddToRole(ctx, created.ID, roleName)
			},
			nil,
		)

		return s.run(ctx)
	})

	if err != nil {
		p.rt.logger.Error("account provisioning failed", "email", input.Email, "role", roleName, "error", err)
		p.rt.record(ctx, ActivityEvent{
			EventType: ActivityEventProvisioningAbandoned,
			Actor:     systemActor(),
			Metadata:  map[string]any{"email": input.Email, "role": roleName, "error": err.Error()},
		})
		return nil, &CreationFailedError{Reasons: []string{err.Error()}}
	}

	accounts := p.repo.Accounts()

	unlock, err := p.rt.locker.Lock(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	secret, err := p.rt.issueClaim(ctx, accounts, created, ClaimEmailConfirmation)
	if err != nil {
		return nil, err
	}

	p.rt.notify("account_created", created, func() error {
		return p.notifier.SendAccountCreated(ctx, created, secret)
	})

	p.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountProvisioned,
		Actor:     systemActor(),
		AccountID: created.ID.String(),
		Metadata:  map[string]any{"role": roleName},
	})

	return created, nil
}

// UpdateUser applies profile changes and makes the role identified by
// update.RoleID the account's only role. The new role is granted before
// the others are revoked so the account is never left without one.
func (p *Provisioning) UpdateUser(ctx context.Context, update AccountUpdate) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx, "account update")
	default:
		return p.updateUser(ctx, update)
	}
}

func (p *Provisioning) updateUser(ctx context.Context, update AccountUpdate) (*Account, error) {
	ctx, cancel := p.rt.withTimeout(ctx)
	defer cancel()

	phone, err := p.normalizePhone(update.Phone)
	if err != nil {
		return nil, err
	}

	var updated *Account

	err = p.unitOfWork(ctx, func(ctx context.Context, accounts CredentialStore, roles RoleStore) error {
		role, err := roles.FindRoleByID(ctx, update.RoleID)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				return ErrRoleNotFound
			}
			return wrapInternal(err, "failed to find role")
		}
		if role.IsDeleted {
			return ErrRoleNotFound
		}

		account, err := accounts.FindByID(ctx, update.ID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return wrapInternal(err, "failed to find account")
		}

		if account.IsDeleted {
			return ErrAccountNotFound
		}

		if update.Version != 0 {
			account.Version = update.Version
		}
		account.FirstName = update.FirstName
		account.LastName = update.LastName
		account.Phone = phone
		account.IsActive = update.IsActive

		updated, err = accounts.Update(ctx, account)
		if err != nil {
			return err
		}

		current, err := roles.RolesFor(ctx, account.ID)
		if err != nil {
			return wrapInternal(err, "failed to load account roles")
		}

		if !containsFold(current, role.Name) {
			if err := roles.AddToRole(ctx, account.ID, role.Name); err != nil {
				return wrapInternal(err, "failed to assign role")
			}
		}

		stale := make([]string, 0, len(current))
		for _, name := range current {
			if !strings.EqualFold(name, role.Name) {
				stale = append(stale, name)
			}
		}

		if len(stale) > 0 {
			if err := roles.RemoveFromRoles(ctx, account.ID, stale...); err != nil {
				return wrapInternal(err, "failed to revoke previous roles")
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	p.rt.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountUpdated,
		Actor:     systemActor(),
		AccountID: updated.ID.String(),
		Metadata:  map[string]any{"role_id": update.RoleID.String()},
	})

	return updated, nil
}

// DeleteUsers soft deletes accounts. actorID is the administrator doing it
// and can not be among ids.
func (p *Provisioning) DeleteUsers(ctx context.Context, actorID uuid.UUID, ids ...uuid.UUID) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "account deletion")
	default:
	}

	return p.setDeleted(ctx, actorID, true, ids)
}

// UndeleteUsers restores soft deleted accounts.
func (p *Provisioning) UndeleteUsers(ctx context.Context, actorID uuid.UUID, ids ...uuid.UUID) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "account restore")
	default:
	}

	return p.setDeleted(ctx, actorID, false, ids)
}

func (p *Provisioning) setDeleted(ctx context.Context, actorID uuid.UUID, deleted bool, ids []uuid.UUID) error {
	ctx, cancel := p.rt.withTimeout(ctx)
	defer cancel()

	err := p.unitOfWork(ctx, func(ctx context.Context, accounts CredentialStore, _ RoleStore) error {
		targets := make([]*Account, 0, len(ids))

		for _, id := range ids {
			if deleted && id == actorID {
				return ErrSelfDeletion
			}

			account, err := accounts.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, ErrAccountNotFound) {
					return ErrAccountNotFound
				}
				return wrapInternal(err, "failed to find account")
			}

			switch {
			case deleted && account.IsDeleted:
				return ErrAccountAlreadyDeleted
			case !deleted && !account.IsDeleted:
				return ErrAccountNotDeleted
			}

			targets = append(targets, account)
		}

		for _, account := range targets {
			account.IsDeleted = deleted
			if _, err := accounts.Update(ctx, account); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return err
	}

	eventType := ActivityEventAccountDeleted
	if !deleted {
		eventType = ActivityEventAccountRestored
	}

	for _, id := range ids {
		p.rt.record(ctx, ActivityEvent{
			EventType: eventType,
			Actor:     ActorRef{ID: actorID.String(), Type: "admin"},
			AccountID: id.String(),
		})
	}

	return nil
}

// unitOfWork runs fn inside a transaction when the repository supports one.
// Otherwise fn runs directly and a buffered repository is committed after;
// a failed commit is logged and not reported.
func (p *Provisioning) unitOfWork(ctx context.Context, fn func(ctx context.Context, accounts CredentialStore, roles RoleStore) error) error {
	if runner, ok := p.repo.(TransactionRunner); ok {
		return runner.RunInTx(ctx, fn)
	}

	if err := fn(ctx, p.repo.Accounts(), p.repo.Roles()); err != nil {
		return err
	}

	if committer, ok := p.repo.(Committer); ok {
		if err := committer.Commit(ctx); err != nil {
			p.rt.logger.Error("commit failed after provisioning, continuing", "error", err)
		}
	}

	return nil
}

func (p *Provisioning) newAccount(input NewAccount) (*Account, []string) {
	input.Email = strings.TrimSpace(input.Email)
	input.Username = usernameFor(input.Username, input.Email)

	reasons := validationReasons(validation.ValidateStruct(&input,
		validation.Field(&input.Email, validation.Required, is.Email),
		validation.Field(&input.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&input.FirstName, validation.Length(0, 100)),
		validation.Field(&input.LastName, validation.Length(0, 100)),
	))

	phone, err := p.normalizePhone(input.Phone)
	if err != nil {
		reasons = append(reasons, err.Error())
	}

	if len(reasons) > 0 {
		return nil, reasons
	}

	account := &Account{
		Username:  input.Username,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     phone,
		IsActive:  true,
	}

	if input.UseHashid {
		if id, err := hashid.NewUUID(input.Email); err == nil {
			account.ID = id
		}
	}

	return account, nil
}

func (p *Provisioning) normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, p.rt.cfg.GetPhoneRegion())
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", errInvalidPhone
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

var errInvalidPhone = errors.New("phone: must be a valid phone number")

func validationReasons(err error) []string {
	if err == nil {
		return nil
	}

	errs, ok := err.(validation.Errors)
	if !ok {
		return []string{err.Error()}
	}

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reasons := make([]string, 0, len(keys))
	for _, k := range keys {
		if errs[k] == nil {
			continue
		}
		reasons = append(reasons, k+": "+errs[k].Error())
	}
	return reasons
}

func usernameFor(username, email string) string {
	username = strings.TrimSpace(username)
	if username != "" {
		return username
	}

	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}

	return username
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
