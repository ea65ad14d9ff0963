package credentials

import "time"

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
	DefaultTokenTTL         = 12 * time.Hour
	DefaultTokenDelimiter   = "||"
	DefaultOperationTimeout = 10 * time.Second
	DefaultPhoneRegion      = "US"
)

// Config holds the lifecycle tunables
type Config interface {
	GetLockoutThreshold() int
	GetLockoutDuration() time.Duration
	GetTokenTTL() time.Duration
	GetTokenDelimiter() string
	GetOperationTimeout() time.Duration
	GetPhoneRegion() string
}

// Options is the default Config implementation. Zero values fall back to
// the package defaults.
type Options struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold" json:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration" json:"lockout_duration"`
	TokenTTL         time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
	TokenDelimiter   string        `mapstructure:"token_delimiter" json:"token_delimiter"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" json:"operation_timeout"`
	PhoneRegion      string        `mapstructure:"phone_region" json:"phone_region"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		LockoutThreshold: DefaultLockoutThreshold,
		LockoutDuration:  DefaultLockoutDuration,
		TokenTTL:         DefaultTokenTTL,
		TokenDelimiter:   DefaultTokenDelimiter,
		OperationTimeout: DefaultOperationTimeout,
		PhoneRegion:      DefaultPhoneRegion,
	}
}

func (o Options) GetLockoutThreshold() int {
	if o.LockoutThreshold == 0 {
		return DefaultLockoutThreshold
	}
	return o.LockoutThreshold
}

func (o Options) GetLockoutDuration() time.Duration {
	if o.LockoutDuration <= 0 {
		return DefaultLockoutDuration
	}
	return o.LockoutDuration
}

func (o Options) GetTokenTTL() time.Duration {
	if o.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return o.TokenTTL
}

func (o Options) GetTokenDelimiter() string {
	if o.TokenDelimiter == "" {
		return DefaultTokenDelimiter
	}
	return o.TokenDelimiter
}

func (o Options) GetOperationTimeout() time.Duration {
	if o.OperationTimeout <= 0 {
		return DefaultOperationTimeout
	}
	return o.OperationTimeout
}

func (o Options) GetPhoneRegion() string {
	if o.PhoneRegion == "" {
		return DefaultPhoneRegion
	}
	return o.PhoneRegion
}

func normalizeConfig(cfg Config) Config {
	if cfg == nil {
		return DefaultOptions()
	}
	return cfg
}
