// Package memstore is an in memory implementation of the credential, role
// and password history stores. It is safe for concurrent use and is meant
// for tests and single process deployments.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/google/uuid"
)

// Store keeps everything in maps guarded by one lock. Values are copied on
// the way in and out.
type Store struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]*credentials.Account
	claims      map[uuid.UUID]map[credentials.ClaimType]string
	roles       map[uuid.UUID]*credentials.Role
	memberships map[uuid.UUID]map[uuid.UUID]struct{}
	history     []credentials.PasswordHistoryEntry
	tokens      *credentials.ProviderTokens
	now         func() time.Time
}

// Option customizes a Store
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store. tokens signs the provider tokens.
func New(tokens *credentials.ProviderTokens, opts ...Option) *Store {
	s := &Store{
		accounts:    map[uuid.UUID]*credentials.Account{},
		claims:      map[uuid.UUID]map[credentials.ClaimType]string{},
		roles:       map[uuid.UUID]*credentials.Role{},
		memberships: map[uuid.UUID]map[uuid.UUID]struct{}{},
		tokens:      tokens,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Accounts() credentials.CredentialStore       { return s }
func (s *Store) Roles() credentials.RoleStore                { return s }
func (s *Store) PasswordHistory() credentials.PasswordHistory { return s }

func (s *Store) FindByIdentifier(_ context.Context, identifier string) (*credentials.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, identifier) {
			return a.Clone(), nil
		}
	}

	for _, a := range s.accounts {
		if !a.IsDeleted && strings.EqualFold(a.Email, identifier) {
			return a.Clone(), nil
		}
	}

	return nil, credentials.ErrAccountNotFound
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*credentials.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, credentials.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (s *Store) FindByEmails(_ context.Context, emails ...string) ([]*credentials.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*credentials.Account{}
	for _, email := range emails {
		for _, a := range s.accounts {
			if strings.EqualFold(a.Email, strings.TrimSpace(email)) {
				out = append(out, a.Clone())
			}
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, account *credentials.Account) (*credentials.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, account.Username) {
			return nil, errDuplicate("username", account.Username)
		}
		if strings.EqualFold(a.Email, account.Email) {
			return nil, errDuplicate("email", account.Email)
		}
	}

	c := account.Clone()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, exists := s.accounts[c.ID]; exists {
		return nil, errDuplicate("id", c.ID.String())
	}
	if c.SecurityStamp == "" {
		c.SecurityStamp = credentials.NewSecurityStamp()
	}

	now := s.now()
	if c.CreatedAt == nil {
		c.CreatedAt = &now
	}
	c.UpdatedAt = &now
	c.Version = 1

	s.accounts[c.ID] = c
	return c.Clone(), nil
}

func (s *Store) Update(_ context.Context, account *credentials.Account) (*credentials.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.ID]
	if !ok {
		return nil, credentials.ErrAccountNotFound
	}

	if account.Version != current.Version {
		return nil, credentials.ErrConcurrencyConflict
	}

	for id, a := range s.accounts {
		if id == account.ID {
			continue
		}
		if strings.EqualFold(a.Username, account.Username) {
			return nil, errDuplicate("username", account.Username)
		}
		if strings.EqualFold(a.Email, account.Email) {
			return nil, errDuplicate("email", account.Email)
		}
	}

	now := s.now()
	current.Username = account.Username
	current.Email = account.Email
	current.FirstName = account.FirstName
	current.LastName = account.LastName
	current.Phone = account.Phone
	current.IsActive = account.IsActive
	current.IsDeleted = account.IsDeleted
	current.UpdatedAt = &now
	current.Version++

	return current.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return credentials.ErrAccountNotFound
	}

	delete(s.accounts, id)
	delete(s.claims, id)
	delete(s.memberships, id)
	return nil
}

func (s *Store) GetClaims(_ context.Context, id uuid.UUID) ([]credentials.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[id]; !ok {
		return nil, credentials.ErrAccountNotFound
	}

	out := make([]credentials.Claim, 0, len(s.claims[id]))
	for t, v := range s.claims[id] {
		out = append(out, credentials.Claim{Type: t, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Store) SetClaim(_ context.Context, id uuid.UUID, claim credentials.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return credentials.ErrAccountNotFound
	}

	if s.claims[id] == nil {
		s.claims[id] = map[credentials.ClaimType]string{}
	}
	s.claims[id][claim.Type] = claim.Value
	return nil
}

func (s *Store) RemoveClaim(_ context.Context, id uuid.UUID, claimType credentials.ClaimType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims[id], claimType)
	return nil
}

func (s *Store) IncrementFailedCount(_ context.Context, id uuid.UUID) (int, error) {
	var count int
	err := s.mutate(id, func(a *credentials.Account) error {
		a.AccessFailedCount++
		count = a.AccessFailedCount
		return nil
	})
	return count, err
}

func (s *Store) ResetFailedCount(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(a *credentials.Account) error {
		a.AccessFailedCount = 0
		return nil
	})
}

func (s *Store) SetLockoutEnd(_ context.Context, id uuid.UUID, end *time.Time) error {
	return s.mutate(id, func(a *credentials.Account) error {
		if end == nil {
			a.LockoutEnd = nil
			return nil
		}
		t := end.UTC()
		a.LockoutEnd = &t
		return nil
	})
}

func (s *Store) TrackLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.mutate(id, func(a *credentials.Account) error {
		t := at.UTC()
		a.LastLoggedInAt = &t
		return nil
	})
}

func (s *Store) GenerateEmailConfirmationProviderToken(ctx context.Context, id uuid.UUID) (string, error) {
	return s.providerToken(id, credentials.PurposeEmailConfirmation)
}

func (s *Store) GeneratePasswordResetProviderToken(ctx context.Context, id uuid.UUID) (string, error) {
	return s.providerToken(id, credentials.PurposePasswordReset)
}

func (s *Store) ConfirmEmailWithProviderToken(_ context.Context, id uuid.UUID, token string) error {
	return s.mutate(id, func(a *credentials.Account) error {
		if err := s.tokens.Verify(a, credentials.PurposeEmailConfirmation, token); err != nil {
			return err
		}
		a.EmailConfirmed = true
		a.SecurityStamp = credentials.NewSecurityStamp()
		return nil
	})
}

func (s *Store) ResetPasswordWithProviderToken(_ context.Context, id uuid.UUID, token, passwordHash string) error {
	return s.mutate(id, func(a *credentials.Account) error {
		if err := s.tokens.Verify(a, credentials.PurposePasswordReset, token); err != nil {
			return err
		}
		a.PasswordHash = passwordHash
		a.SecurityStamp = credentials.NewSecurityStamp()
		return nil
	})
}

func (s *Store) AddPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return s.mutate(id, func(a *credentials.Account) error {
		if a.HasPassword() {
			return credentials.ErrPasswordAlreadySet
		}
		a.PasswordHash = passwordHash
		a.SecurityStamp = credentials.NewSecurityStamp()
		return nil
	})
}

func (s *Store) RemovePassword(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(a *credentials.Account) error {
		a.PasswordHash = ""
		a.SecurityStamp = credentials.NewSecurityStamp()
		return nil
	})
}

func (s *Store) RecordPassword(_ context.Context, accountID uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.history = append(s.history, credentials.PasswordHistoryEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		PasswordHash: passwordHash,
		CreatedAt:    &now,
	})
	return nil
}

// History returns the recorded password hashes of an account, oldest first.
func (s *Store) History(accountID uuid.UUID) []credentials.PasswordHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []credentials.PasswordHistoryEntry
	for _, e := range s.history {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) providerToken(id uuid.UUID, purpose credentials.ProviderTokenPurpose) (string, error) {
	s.mu.RLock()
	a, ok := s.accounts[id]
	if !ok {
		s.mu.RUnlock()
		return "", credentials.ErrAccountNotFound
	}
	snapshot := a.Clone()
	s.mu.RUnlock()

	return s.tokens.Generate(snapshot, purpose)
}

func (s *Store) mutate(id uuid.UUID, fn func(a *credentials.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return credentials.ErrAccountNotFound
	}

	// work on a copy so a failing fn leaves the account untouched
	c := a.Clone()
	if err := fn(c); err != nil {
		return err
	}
	now := s.now()
	c.UpdatedAt = &now
	s.accounts[id] = c
	return nil
}

var (
	_ credentials.RepositoryManager = (*Store)(nil)
	_ credentials.CredentialStore   = (*Store)(nil)
	_ credentials.RoleStore         = (*Store)(nil)
	_ credentials.PasswordHistory   = (*Store)(nil)
)
