package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Store implements the credential, role and password history stores on
// top of Bun. A Store obtained inside RunInTx runs every query on the
// transaction.
type Store struct {
	db       bun.IDB
	root     *bun.DB
	tokens   *credentials.ProviderTokens
	accounts repository.Repository[*credentials.Account]
	roles    repository.Repository[*credentials.Role]
	now      func() time.Time
}

// NewRepositoryManager creates a store over db. tokens signs the provider
// tokens handed out for email confirmation and password reset.
func NewRepositoryManager(db *bun.DB, tokens *credentials.ProviderTokens) *Store {
	return &Store{
		db:     db,
		root:   db,
		tokens: tokens,
		accounts: repository.NewRepository[*credentials.Account](db, repository.ModelHandlers[*credentials.Account]{
			NewRecord: func() *credentials.Account { return &credentials.Account{} },
			GetID: func(a *credentials.Account) uuid.UUID {
				if a == nil {
					return uuid.Nil
				}
				return a.ID
			},
			SetID: func(a *credentials.Account, id uuid.UUID) {
				if a != nil {
					a.ID = id
				}
			},
		}),
		roles: repository.NewRepository[*credentials.Role](db, repository.ModelHandlers[*credentials.Role]{
			NewRecord: func() *credentials.Role { return &credentials.Role{} },
			GetID: func(r *credentials.Role) uuid.UUID {
				if r == nil {
					return uuid.Nil
				}
				return r.ID
			},
			SetID: func(r *credentials.Role, id uuid.UUID) {
				if r != nil {
					r.ID = id
				}
			},
		}),
		now: time.Now,
	}
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*credentials.Account, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	account := &credentials.Account{}
	err := s.db.NewSelect().Model(account).
		Where("lower(?TableAlias.username) = ?", identifier).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return account, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	account = &credentials.Account{}
	err = s.db.NewSelect().Model(account).
		Where("lower(?TableAlias.email) = ?", identifier).
		Where("?TableAlias.is_deleted = ?", false).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, credentials.ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*credentials.Account, error) {
	account := &credentials.Account{}
	err := s.db.NewSelect().Model(account).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, credentials.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *Store) FindByEmails(ctx context.Context, emails ...string) ([]*credentials.Account, error) {
	if len(emails) == 0 {
		return []*credentials.Account{}, nil
	}

	lowered := make([]string, 0, len(emails))
	for _, e := range emails {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(e)))
	}

	var out []*credentials.Account
	err := s.db.NewSelect().Model(&out).
		Where("lower(?TableAlias.email) IN (?)", bun.In(lowered)).
		Order("email ASC").
		Scan(ctx)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, account *credentials.Account) (*credentials.Account, error) {
	record := account.Clone()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.SecurityStamp == "" {
		record.SecurityStamp = credentials.NewSecurityStamp()
	}

	now := s.now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now
	record.Version = 1

	return s.accounts.CreateTx(ctx, s.db, record)
}

func (s *Store) Update(ctx context.Context, account *credentials.Account) (*credentials.Account, error) {
	record := account.Clone()
	expected := record.Version

	now := s.now().UTC()
	record.UpdatedAt = &now
	record.Version = expected + 1

	res, err := s.db.NewUpdate().Model(record).
		Column("username", "email", "first_name", "last_name", "phone_number", "is_active", "is_deleted", "updated_at", "version").
		Where("?TableAlias.id = ?", record.ID).
		Where("?TableAlias.version = ?", expected).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindByID(ctx, record.ID); err != nil {
			return nil, err
		}
		return nil, credentials.ErrConcurrencyConflict
	}

	return s.FindByID(ctx, record.ID)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.NewDelete().Model((*claimRecord)(nil)).Where("account_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	if _, err := s.db.NewDelete().Model((*membershipRecord)(nil)).Where("account_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	res, err := s.db.NewDelete().Model((*credentials.Account)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return credentials.ErrAccountNotFound
	}
	return nil
}

func (s *Store) GetClaims(ctx context.Context, id uuid.UUID) ([]credentials.Claim, error) {
	var records []claimRecord
	err := s.db.NewSelect().Model(&records).
		Where("?TableAlias.account_id = ?", id).
		Order("claim_type ASC").
		Scan(ctx)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	out := make([]credentials.Claim, 0, len(records))
	for _, r := range records {
		out = append(out, credentials.Claim{Type: credentials.ClaimType(r.Type), Value: r.Value})
	}
	return out, nil
}

// SetClaim replaces the claim of the same type.
func (s *Store) SetClaim(ctx context.Context, id uuid.UUID, claim credentials.Claim) error {
	record := &claimRecord{
		ID:        uuid.New(),
		AccountID: id,
		Type:      string(claim.Type),
		Value:     claim.Value,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.NewInsert().Model(record).
		On("CONFLICT (account_id, claim_type) DO UPDATE").
		Set("claim_value = EXCLUDED.claim_value").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	return err
}

func (s *Store) RemoveClaim(ctx context.Context, id uuid.UUID, claimType credentials.ClaimType) error {
	_, err := s.db.NewDelete().Model((*claimRecord)(nil)).
		Where("account_id = ?", id).
		Where("claim_type = ?", string(claimType)).
		Exec(ctx)
	return err
}

func (s *Store) IncrementFailedCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := s.db.NewUpdate().Model((*credentials.Account)(nil)).
		Set("access_failed_count = access_failed_count + 1").
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Returning("access_failed_count").
		Scan(ctx, &count)
	if err != nil {
		if isNotFound(err) {
			return 0, credentials.ErrAccountNotFound
		}
		return 0, err
	}
	return count, nil
}

func (s *Store) ResetFailedCount(ctx context.Context, id uuid.UUID) error {
	return s.set(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("access_failed_count = 0")
	})
}

func (s *Store) SetLockoutEnd(ctx context.Context, id uuid.UUID, end *time.Time) error {
	var value any
	if end != nil {
		value = end.UTC()
	}
	return s.set(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("lockout_end = ?", value)
	})
}

func (s *Store) TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.set(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("last_logged_in_at = ?", at.UTC())
	})
}

func (s *Store) GenerateEmailConfirmationProviderToken(ctx context.Context, id uuid.UUID) (string, error) {
	account, err := s.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.tokens.Generate(account, credentials.PurposeEmailConfirmation)
}

func (s *Store) GeneratePasswordResetProviderToken(ctx context.Context, id uuid.UUID) (string, error) {
	account, err := s.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.tokens.Generate(account, credentials.PurposePasswordReset)
}

func (s *Store) ConfirmEmailWithProviderToken(ctx context.Context, id uuid.UUID, token string) error {
	return s.consume(ctx, id, credentials.PurposeEmailConfirmation, token, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("email_confirmed = ?", true)
	})
}

func (s *Store) ResetPasswordWithProviderToken(ctx context.Context, id uuid.UUID, token, passwordHash string) error {
	return s.consume(ctx, id, credentials.PurposePasswordReset, token, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("password_hash = ?", passwordHash)
	})
}

func (s *Store) AddPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	n, err := s.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("password_hash = ?", passwordHash).
			Set("security_stamp = ?", credentials.NewSecurityStamp()).
			Where("(password_hash IS NULL OR password_hash = '')")
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return credentials.ErrPasswordAlreadySet
	}
	return nil
}

func (s *Store) RemovePassword(ctx context.Context, id uuid.UUID) error {
	return s.set(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("password_hash = ''").
			Set("security_stamp = ?", credentials.NewSecurityStamp())
	})
}

func (s *Store) RecordPassword(ctx context.Context, accountID uuid.UUID, passwordHash string) error {
	now := s.now().UTC()
	_, err := s.db.NewInsert().Model(&credentials.PasswordHistoryEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		PasswordHash: passwordHash,
		CreatedAt:    &now,
	}).Exec(ctx)
	return err
}

// consume verifies token and applies apply while rotating the security
// stamp. The stamp is compared in the WHERE clause so a token can only be
// used once even under concurrent requests.
func (s *Store) consume(ctx context.Context, id uuid.UUID, purpose credentials.ProviderTokenPurpose, token string, apply func(q *bun.UpdateQuery) *bun.UpdateQuery) error {
	account, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.tokens.Verify(account, purpose, token); err != nil {
		return err
	}

	n, err := s.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return apply(q).
			Set("security_stamp = ?", credentials.NewSecurityStamp()).
			Where("security_stamp = ?", account.SecurityStamp)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return credentials.ErrInvalidOrExpiredToken
	}
	return nil
}

func (s *Store) set(ctx context.Context, id uuid.UUID, apply func(q *bun.UpdateQuery) *bun.UpdateQuery) error {
	n, err := s.update(ctx, id, apply)
	if err != nil {
		return err
	}
	if n == 0 {
		return credentials.ErrAccountNotFound
	}
	return nil
}

func (s *Store) update(ctx context.Context, id uuid.UUID, apply func(q *bun.UpdateQuery) *bun.UpdateQuery) (int64, error) {
	q := s.db.NewUpdate().Model((*credentials.Account)(nil)).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id)

	res, err := apply(q).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

var (
	_ credentials.RepositoryManager = (*Store)(nil)
	_ credentials.TransactionRunner = (*Store)(nil)
	_ credentials.CredentialStore   = (*Store)(nil)
	_ credentials.RoleStore         = (*Store)(nil)
	_ credentials.PasswordHistory   = (*Store)(nil)
)
