package credentials_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/memstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Correct-Horse-42"

// MockNotifier implements credentials.Notifier
type MockNotifier struct {
	mock.Mock
	mu      sync.Mutex
	secrets map[string][]string
}

func NewMockNotifier() *MockNotifier {
	n := &MockNotifier{secrets: map[string][]string{}}
	for _, method := range []string{"SendAccountCreated", "SendPasswordRecovery", "SendAccountUnlock"} {
		n.On(method, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	return n
}

// Failing makes every notification return err.
func (m *MockNotifier) Failing(err error) *MockNotifier {
	m.ExpectedCalls = nil
	for _, method := range []string{"SendAccountCreated", "SendPasswordRecovery", "SendAccountUnlock"} {
		m.On(method, mock.Anything, mock.Anything, mock.Anything).Return(err).Maybe()
	}
	return m
}

func (m *MockNotifier) SendAccountCreated(ctx context.Context, account *credentials.Account, secret string) error {
	m.capture("SendAccountCreated", secret)
	return m.Called(ctx, account, secret).Error(0)
}

func (m *MockNotifier) SendPasswordRecovery(ctx context.Context, account *credentials.Account, secret string) error {
	m.capture("SendPasswordRecovery", secret)
	return m.Called(ctx, account, secret).Error(0)
}

func (m *MockNotifier) SendAccountUnlock(ctx context.Context, account *credentials.Account, secret string) error {
	m.capture("SendAccountUnlock", secret)
	return m.Called(ctx, account, secret).Error(0)
}

func (m *MockNotifier) capture(method, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[method] = append(m.secrets[method], secret)
}

// Secrets returns every secret handed to method, oldest first.
func (m *MockNotifier) Secrets(method string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.secrets[method]...)
}

// LastSecret returns the most recent secret handed to method.
func (m *MockNotifier) LastSecret(t *testing.T, method string) string {
	t.Helper()
	secrets := m.Secrets(method)
	require.NotEmpty(t, secrets, "expected %s to have been called", method)
	return secrets[len(secrets)-1]
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []credentials.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event credentials.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count(eventType credentials.ActivityEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// fakeClock is a settable clock shared by the store, tokens and handlers.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memstore.Store
	notifier *MockNotifier
	sink     *recordingSink
	clock    *fakeClock
	hasher   credentials.PasswordHasher
	cfg      credentials.Options
	opts     []credentials.Option
	manager  *credentials.Manager
}

func newFixture(t *testing.T, opts ...credentials.Option) *fixture {
	t.Helper()

	clock := newFakeClock()
	tokens := credentials.NewProviderTokens([]byte("test-signing-key"), credentials.WithProviderTokenClock(clock.Now))

	f := &fixture{
		store:    memstore.New(tokens, memstore.WithClock(clock.Now)),
		notifier: NewMockNotifier(),
		sink:     &recordingSink{},
		clock:    clock,
		hasher:   credentials.BcryptHasher{Cost: bcrypt.MinCost},
		cfg:      credentials.DefaultOptions(),
	}

	f.opts = append([]credentials.Option{
		credentials.WithClock(clock.Now),
		credentials.WithPasswordHasher(f.hasher),
		credentials.WithActivitySink(f.sink),
	}, opts...)

	f.manager = credentials.New(f.store, f.notifier, f.cfg, f.opts...)
	return f
}

// account stores a confirmed, active account with password.
func (f *fixture) account(t *testing.T, username, password string, mutate ...func(*credentials.Account)) *credentials.Account {
	t.Helper()

	hash := ""
	if password != "" {
		var err error
		hash, err = f.hasher.Hash(password)
		require.NoError(t, err)
	}

	account := &credentials.Account{
		Username:       username,
		Email:          username + "@example.com",
		FirstName:      "Test",
		LastName:       "User",
		PasswordHash:   hash,
		EmailConfirmed: true,
		IsActive:       true,
	}
	for _, fn := range mutate {
		fn(account)
	}

	created, err := f.store.Create(context.Background(), account)
	require.NoError(t, err)
	return created
}

func (f *fixture) role(t *testing.T, name string) *credentials.Role {
	t.Helper()
	role, err := f.store.CreateRole(context.Background(), &credentials.Role{Name: name, IsActive: true})
	require.NoError(t, err)
	return role
}

func (f *fixture) reload(t *testing.T, account *credentials.Account) *credentials.Account {
	t.Helper()
	out, err := f.store.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	return out
}

func (f *fixture) claim(t *testing.T, account *credentials.Account, claimType credentials.ClaimType) (string, bool) {
	t.Helper()
	claims, err := f.store.GetClaims(context.Background(), account.ID)
	require.NoError(t, err)
	for _, c := range claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

func unconfirmed(a *credentials.Account) { a.EmailConfirmed = false }
func inactive(a *credentials.Account)    { a.IsActive = false }
func deleted(a *credentials.Account)     { a.IsDeleted = true }
