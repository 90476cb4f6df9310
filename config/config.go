// Package config loads the sqlm.yaml project file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/Konsultn-Engineering/sqlm/connector"
	"github.com/Konsultn-Engineering/sqlm/logging"
)

const (
	// FileName is the project file searched for when no path is given.
	FileName = "sqlm.yaml"
	// EnvPrefix prefixes environment overrides, e.g. SQLM_OFFLINE=true.
	EnvPrefix = "SQLM"
)

// AppFs is the filesystem configuration and generated files live on.
var AppFs = afero.NewOsFs()

// Config is the project configuration.
type Config struct {
	Path        string           `mapstructure:"-"`
	Queries     []string         `mapstructure:"queries"`
	Output      string           `mapstructure:"output"`
	Package     string           `mapstructure:"package"`
	Snapshot    string           `mapstructure:"snapshot"`
	Offline     bool             `mapstructure:"offline"`
	Concurrency int              `mapstructure:"concurrency"`
	Database    connector.Config `mapstructure:"database"`
	Log         LogConfig        `mapstructure:"log"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	db := connector.DefaultConfig()
	v.SetDefault("queries", []string{"queries/*.yaml"})
	v.SetDefault("output", ".")
	v.SetDefault("package", "")
	v.SetDefault("snapshot", "sqlm.snapshot.yaml")
	v.SetDefault("offline", false)
	v.SetDefault("concurrency", 8)
	v.SetDefault("database.url", "")
	v.SetDefault("database.url_env", db.URLEnv)
	v.SetDefault("database.pool.max_conns", db.Pool.MaxConns)
	v.SetDefault("database.pool.max_lifetime", db.Pool.MaxLifetime)
	v.SetDefault("database.pool.max_idle_time", db.Pool.MaxIdleTime)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from path, or searches for sqlm.yaml in the
// working directory and ~/.config/sqlm when path is empty. A missing file
// is only an error when path was given.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sqlm"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if len(c.Queries) == 0 {
		return errors.New("config: queries must name at least one file pattern")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Database.Pool.MaxConns < 1 {
		return fmt.Errorf("config: database.pool.max_conns must be positive, got %d", c.Database.Pool.MaxConns)
	}
	if c.Database.ConnectTimeout < 0 || c.Database.ConnectTimeout > 10*time.Minute {
		return fmt.Errorf("config: database.connect_timeout %s is out of range", c.Database.ConnectTimeout)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}
	return nil
}

// Dir is the directory relative paths in the file resolve against.
func (c *Config) Dir() string {
	if c.Path == "" {
		return "."
	}
	return filepath.Dir(c.Path)
}

// Resolve makes p relative to the config file's directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// Logger builds the configured logger; verbose forces debug.
func (c *Config) Logger(w io.Writer, verbose bool) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: c.Log.Level, Format: c.Log.Format, Verbose: verbose, Writer: w})
}
