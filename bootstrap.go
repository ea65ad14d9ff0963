package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	DefaultAdminRoleName        = "IT Admin"
	DefaultAdminRoleDescription = "Administrator of System"
)

// SeedOptions describes the administrative role and account to seed.
type SeedOptions struct {
	RoleName        string `mapstructure:"role_name" json:"role_name"`
	RoleDescription string `mapstructure:"role_description" json:"role_description"`
	Username        string `mapstructure:"username" json:"username"`
	Email           string `mapstructure:"email" json:"email"`
	FirstName       string `mapstructure:"first_name" json:"first_name"`
	LastName        string `mapstructure:"last_name" json:"last_name"`
	// Password may be empty, the admin then sets one through recovery.
	Password string `mapstructure:"password" json:"-"`
}

// DefaultSeedOptions returns the seed used when nothing is configured.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		RoleName:        DefaultAdminRoleName,
		RoleDescription: DefaultAdminRoleDescription,
		Username:        "admin",
		Email:           "admin@example.com",
		FirstName:       "System",
		LastName:        "Administrator",
	}
}

// Seeder makes sure the administrative role and account exist. It is safe
// to run on every start.
type Seeder struct {
	repo RepositoryManager
	seed SeedOptions
	rt   *runtime
}

// NewSeeder creates a seeder for seed
func NewSeeder(repo RepositoryManager, seed SeedOptions, cfg Config, opts ...Option) *Seeder {
	defaults := DefaultSeedOptions()
	if seed.RoleName == "" {
		seed.RoleName = defaults.RoleName
	}
	if seed.RoleDescription == "" {
		seed.RoleDescription = defaults.RoleDescription
	}
	if seed.Username == "" {
		seed.Username = defaults.Username
	}
	if seed.Email == "" {
		seed.Email = defaults.Email
	}
	return &Seeder{
		repo: repo,
		seed: seed,
		rt:   newRuntime("credentials.bootstrap", cfg, opts),
	}
}

// Seed creates whatever is missing. Failures are logged and never returned
// so a broken seed can not keep the service from starting.
func (s *Seeder) Seed(ctx context.Context) {
	ctx, cancel := s.rt.withTimeout(ctx)
	defer cancel()

	s.seedRole(ctx)
	s.seedAdmin(ctx)
}

func (s *Seeder) seedRole(ctx context.Context) {
	roles := s.repo.Roles()

	_, err := roles.FindRoleByName(ctx, s.seed.RoleName)
	if err == nil {
		return
	}

	if !errors.Is(err, ErrRoleNotFound) {
		s.rt.logger.Error("bootstrap: failed to look up admin role", "role", s.seed.RoleName, "error", err)
		return
	}

	now := s.rt.now()
	_, err = roles.CreateRole(ctx, &Role{
		ID:                uuid.New(),
		Name:              s.seed.RoleName,
		Description:       s.seed.RoleDescription,
		IsActive:          true,
		IsSystemGenerated: true,
		CreatedAt:         &now,
	})
	if err != nil {
		s.rt.logger.Error("bootstrap: failed to create admin role", "role", s.seed.RoleName, "error", err)
		return
	}

	s.rt.logger.Info("bootstrap: admin role created", "role", s.seed.RoleName)
}

func (s *Seeder) seedAdmin(ctx context.Context) {
	accounts := s.repo.Accounts()
	roles := s.repo.Roles()

	account, created, err := s.ensureAdmin(ctx, accounts)
	if err != nil {
		s.rt.logger.Error("bootstrap: failed to ensure admin account", "username", s.seed.Username, "error", err)
		return
	}

	member, err := roles.IsInRole(ctx, account.ID, s.seed.RoleName)
	if err != nil {
		s.rt.logger.Error("bootstrap: failed to check admin role membership", "error", err)
		return
	}
	if member {
		return
	}

	if err := roles.AddToRole(ctx, account.ID, s.seed.RoleName); err != nil {
		s.rt.logger.Error("bootstrap: failed to add admin to role", "role", s.seed.RoleName, "error", err)
		// an admin created in this run without its role is removed again
		if created {
			if err := accounts.Delete(ctx, account.ID); err != nil {
				s.rt.logger.Error("bootstrap: failed to remove roleless admin", "error", err)
			}
		}
		return
	}

	s.rt.logger.Info("bootstrap: admin added to role", "username", account.Username, "role", s.seed.RoleName)
}

func (s *Seeder) ensureAdmin(ctx context.Context, accounts CredentialStore) (*Account, bool, error) {
	account, err := accounts.FindByIdentifier(ctx, s.seed.Username)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	id, err := hashid.NewUUID(s.seed.Email)
	if err != nil {
		s.rt.logger.Warn("bootstrap: falling back to random admin id", "error", err)
		id = uuid.New()
	}

	now := s.rt.now().UTC()
	admin := &Account{
		ID:                id,
		Username:          s.seed.Username,
		Email:             s.seed.Email,
		FirstName:         s.seed.FirstName,
		LastName:          s.seed.LastName,
		EmailConfirmed:    true,
		IsActive:          true,
		IsSystemGenerated: true,
		CreatedAt:         &now,
		UpdatedAt:         &now,
	}

	if s.seed.Password != "" {
		hash, err := s.rt.hasher.Hash(s.seed.Password)
		if err != nil {
			return nil, false, err
		}
		admin.PasswordHash = hash
	} else {
		s.rt.logger.Warn("bootstrap: admin seeded without password, use recovery to set one", "username", s.seed.Username)
	}

	created, err := accounts.Create(ctx, admin)
	if err != nil {
		return nil, false, err
	}

	s.rt.logger.Info("bootstrap: admin account created", "username", created.Username, "at", now.Format(time.RFC3339))
	return created, true, nil
}
