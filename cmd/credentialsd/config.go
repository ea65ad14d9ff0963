package main

import (
	"os"
	"strings"

	"github.com/goliatone/go-credentials"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything credentialsd reads at start up. Values come from
// an optional config file named by CONFIG_FILE and CREDENTIALS_* env vars.
type Config struct {
	Addr        string                  `mapstructure:"addr" json:"addr"`
	BaseURL     string                  `mapstructure:"base_url" json:"base_url"`
	DSN         string                  `mapstructure:"dsn" json:"dsn"`
	SigningKey  string                  `mapstructure:"signing_key" json:"-"`
	RedisURL    string                  `mapstructure:"redis_url" json:"redis_url"`
	Workers     int                     `mapstructure:"workers" json:"workers"`
	AdminToken  string                  `mapstructure:"admin_token" json:"-"`
	DefaultRole string                  `mapstructure:"default_role" json:"default_role"`
	Debug       bool                    `mapstructure:"debug" json:"debug"`
	Lifecycle   credentials.Options     `mapstructure:"lifecycle" json:"lifecycle"`
	Seed        credentials.SeedOptions `mapstructure:"seed" json:"seed"`
}

// LoadConfig reads .env when present and resolves the final configuration.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CREDENTIALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := credentials.DefaultOptions()
	seed := credentials.DefaultSeedOptions()

	v.SetDefault("addr", ":8080")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("dsn", "file:credentials.db?cache=shared")
	v.SetDefault("signing_key", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("workers", 2)
	v.SetDefault("admin_token", "")
	v.SetDefault("default_role", "")
	v.SetDefault("debug", false)
	v.SetDefault("lifecycle.lockout_threshold", defaults.LockoutThreshold)
	v.SetDefault("lifecycle.lockout_duration", defaults.LockoutDuration)
	v.SetDefault("lifecycle.token_ttl", defaults.TokenTTL)
	v.SetDefault("lifecycle.token_delimiter", defaults.TokenDelimiter)
	v.SetDefault("lifecycle.operation_timeout", defaults.OperationTimeout)
	v.SetDefault("lifecycle.phone_region", defaults.PhoneRegion)
	v.SetDefault("seed.role_name", seed.RoleName)
	v.SetDefault("seed.role_description", seed.RoleDescription)
	v.SetDefault("seed.username", seed.Username)
	v.SetDefault("seed.email", seed.Email)
	v.SetDefault("seed.first_name", seed.FirstName)
	v.SetDefault("seed.last_name", seed.LastName)
	v.SetDefault("seed.password", "")

	if p := os.Getenv("CONFIG_FILE"); p != "" {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
