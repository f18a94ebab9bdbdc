package main

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment. It satisfies both the
// identity.Config contract consumed by the authenticator and guard, and
// the persistence config contract consumed by go-persistence-bun.
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8572"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	SeedAccounts  bool   `env:"SEED_ACCOUNTS" envDefault:"true"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	TokenIssuer   string   `env:"TOKEN_ISSUER" envDefault:"go-identity"`
	TokenAudience []string `env:"TOKEN_AUDIENCE" envSeparator:","`

	Persistence PersistenceConfig `envPrefix:"DB_"`
}

// PersistenceConfig holds the database settings for go-persistence-bun.
type PersistenceConfig struct {
	Debug       bool          `env:"DEBUG" envDefault:"false"`
	Driver      string        `env:"DRIVER" envDefault:"sqlite"`
	Server      string        `env:"SERVER"`
	Database    string        `env:"DATABASE" envDefault:"file::memory:?cache=shared"`
	PingTimeout time.Duration `env:"PING_TIMEOUT" envDefault:"5s"`
}

// LoadConfig parses the environment into a Config.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) GetAccessSigningKey() string {
	return c.AccessTokenSecret
}

func (c *Config) GetAccessTTL() time.Duration {
	return c.AccessTokenTTL
}

func (c *Config) GetRefreshSigningKey() string {
	return c.RefreshTokenSecret
}

func (c *Config) GetRefreshTTL() time.Duration {
	return c.RefreshTokenTTL
}

func (c *Config) GetSigningMethod() string {
	return "HS256"
}

func (c *Config) GetContextKey() string {
	return "user"
}

func (c *Config) GetTokenLookup() string {
	return "header:Authorization"
}

func (c *Config) GetAuthScheme() string {
	return "Bearer"
}

func (c *Config) GetIssuer() string {
	return c.TokenIssuer
}

func (c *Config) GetAudience() []string {
	return c.TokenAudience
}

// GetPersistence returns the database settings block.
func (c *Config) GetPersistence() PersistenceConfig {
	return c.Persistence
}

func (p PersistenceConfig) GetDebug() bool {
	return p.Debug
}

func (p PersistenceConfig) GetDriver() string {
	return p.Driver
}

func (p PersistenceConfig) GetServer() string {
	return p.Server
}

func (p PersistenceConfig) GetDatabase() string {
	return p.Database
}

func (p PersistenceConfig) GetPingTimeout() time.Duration {
	return p.PingTimeout
}

func (p PersistenceConfig) GetOtelIdentifier() string {
	return ""
}

// GetDSN is the connection string handed to sql.Open.
func (p PersistenceConfig) GetDSN() string {
	if p.Server != "" {
		return p.Server
	}
	return p.Database
}
