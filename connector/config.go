// Package connector opens the pooled connection to the database used as
// the schema oracle.
package connector

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Konsultn-Engineering/sqlm/diag"
)

// DefaultURLEnv is the environment variable holding the connection string.
const DefaultURLEnv = "DATABASE_URL"

// ErrNoDatabaseURL is returned when no connection string is configured.
var ErrNoDatabaseURL = errors.New("compile-time query checks require DATABASE_URL environment variable to be defined")

// Config is the schema database configuration. A connection string wins
// over the discrete host fields.
type Config struct {
	URL            string            `json:"url" yaml:"url" mapstructure:"url"`
	URLEnv         string            `json:"url_env" yaml:"url_env" mapstructure:"url_env"`
	Host           string            `json:"host" yaml:"host" mapstructure:"host"`
	Port           int               `json:"port" yaml:"port" mapstructure:"port"`
	Database       string            `json:"database" yaml:"database" mapstructure:"database"`
	Username       string            `json:"username" yaml:"username" mapstructure:"username"`
	Password       string            `json:"password" yaml:"password" mapstructure:"password"`
	SSLMode        string            `json:"ssl_mode" yaml:"ssl_mode" mapstructure:"ssl_mode"`
	Params         map[string]string `json:"params" yaml:"params" mapstructure:"params"`
	Pool           PoolConfig        `json:"pool" yaml:"pool" mapstructure:"pool"`
	ConnectTimeout time.Duration     `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	Retry          *RetryConfig      `json:"retry,omitempty" yaml:"retry,omitempty" mapstructure:"retry"`
}

// PoolConfig defines connection pool settings. Compile tasks share the
// pool, so it stays small.
type PoolConfig struct {
	MaxConns    int           `json:"max_conns" yaml:"max_conns" mapstructure:"max_conns"`
	MaxLifetime time.Duration `json:"max_lifetime" yaml:"max_lifetime" mapstructure:"max_lifetime"`
	MaxIdleTime time.Duration `json:"max_idle_time" yaml:"max_idle_time" mapstructure:"max_idle_time"`
}

// RetryConfig defines connection retry behavior.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		URLEnv:         DefaultURLEnv,
		Pool:           PoolConfig{MaxConns: 4, MaxLifetime: time.Hour, MaxIdleTime: 5 * time.Minute},
		ConnectTimeout: 10 * time.Second,
	}
}

// LoadDotenv loads .env files into the process environment. Missing files
// are skipped; variables already set are kept.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return diag.Wrap(diag.Schema, err, "loading "+f)
		}
	}
	return nil
}

// ConnString resolves the connection string: the explicit URL, then the
// URL environment variable, then a DSN built from the host fields.
func (c Config) ConnString() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	env := c.URLEnv
	if env == "" {
		env = DefaultURLEnv
	}
	if url := os.Getenv(env); url != "" {
		return url, nil
	}
	if c.Host == "" {
		if env != DefaultURLEnv {
			return "", diag.Newf(diag.Schema, "compile-time query checks require %s environment variable to be defined", env)
		}
		return "", diag.Wrap(diag.Schema, ErrNoDatabaseURL, "")
	}

	dsn, err := c.hostURL()
	if err != nil {
		return "", diag.Wrap(diag.Schema, err, "invalid database configuration")
	}
	return dsn, nil
}
