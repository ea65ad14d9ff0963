package credentials

// Manager wires every lifecycle component over one repository, notifier
// and option set so they share a locker, clock and activity sink.
type Manager struct {
	repo       RepositoryManager
	validator  *AuthenticationValidator
	recovery   *AccountRecovery
	activation *AccountActivation
	unlock     *AccountUnlock
	provision  *Provisioning
	cfg        Config
	opts       []Option
}

// New builds a Manager. Without WithLocker a single in process locker is
// shared by all components.
func New(repo RepositoryManager, notifier Notifier, cfg Config, opts ...Option) *Manager {
	cfg = normalizeConfig(cfg)
	opts = append([]Option{WithLocker(NewLocalLocker())}, opts...)

	return &Manager{
		repo:       repo,
		validator:  NewAuthenticationValidator(repo, notifier, cfg, opts...),
		recovery:   NewAccountRecovery(repo, notifier, cfg, opts...),
		activation: NewAccountActivation(repo, notifier, cfg, opts...),
		unlock:     NewAccountUnlock(repo, notifier, cfg, opts...),
		provision:  NewProvisioning(repo, notifier, cfg, opts...),
		cfg:        cfg,
		opts:       opts,
	}
}

func (m *Manager) Validator() *AuthenticationValidator { return m.validator }
func (m *Manager) Recovery() *AccountRecovery          { return m.recovery }
func (m *Manager) Activation() *AccountActivation      { return m.activation }
func (m *Manager) Unlock() *AccountUnlock              { return m.unlock }
func (m *Manager) Provisioning() *Provisioning         { return m.provision }

// Seeder returns a bootstrap seeder sharing the manager's options.
func (m *Manager) Seeder(seed SeedOptions) *Seeder {
	return NewSeeder(m.repo, seed, m.cfg, m.opts...)
}
