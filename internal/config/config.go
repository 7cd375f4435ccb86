// Package config builds the immutable configuration safeshift runs with.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/diff"
	"github.com/faucetdb/safeshift/internal/drift"
	"github.com/faucetdb/safeshift/internal/migrator"
	"github.com/faucetdb/safeshift/internal/model"
)

// DefaultFileName is the config file looked for when no path is given.
const DefaultFileName = "safeshift.yaml"

// EnvPrefix prefixes environment overrides: SAFESHIFT_DATABASE_DSN sets
// database.dsn.
const EnvPrefix = "SAFESHIFT"

// Config is the full safeshift configuration. Build it once with Load and
// pass the pieces components need into their constructors.
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Safety   SafetyConfig   `yaml:"safety" mapstructure:"safety"`
	Drift    DriftConfig    `yaml:"drift" mapstructure:"drift"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig selects the database to migrate.
type DatabaseConfig struct {
	Driver string           `yaml:"driver" mapstructure:"driver"`
	DSN    string           `yaml:"dsn" mapstructure:"dsn"`
	Schema string           `yaml:"schema" mapstructure:"schema"`
	Pool   model.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// SafetyConfig controls backups and archiving rollbacks.
type SafetyConfig struct {
	AutoBackup       bool   `yaml:"auto_backup" mapstructure:"auto_backup"`
	SafeRollback     bool   `yaml:"safe_rollback" mapstructure:"safe_rollback"`
	ArchivePrefix    string `yaml:"archive_prefix" mapstructure:"archive_prefix"`
	ArchiveTimestamp bool   `yaml:"archive_timestamp" mapstructure:"archive_timestamp"`
	TimestampFormat  string `yaml:"timestamp_format" mapstructure:"timestamp_format"`
}

// DriftConfig tunes schema comparison.
type DriftConfig struct {
	IgnoredTables         []string `yaml:"ignored_tables" mapstructure:"ignored_tables"`
	IgnoredColumns        []string `yaml:"ignored_columns" mapstructure:"ignored_columns"`
	RenameThreshold       float64  `yaml:"rename_threshold" mapstructure:"rename_threshold"`
	SuppressFormatWarning bool     `yaml:"suppress_format_warning" mapstructure:"suppress_format_warning"`
}

// PathsConfig locates migration sources and snapshots.
type PathsConfig struct {
	Migrations string `yaml:"migrations" mapstructure:"migrations"`
	Snapshots  string `yaml:"snapshots" mapstructure:"snapshots"`
}

// HistoryConfig names the migration ledger table.
type HistoryConfig struct {
	Table string `yaml:"table" mapstructure:"table"`
}

// ServerConfig controls the status API server.
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit       int           `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per minute per IP
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "safeshift.db",
			Pool:   model.DefaultPoolConfig(),
		},
		Safety: SafetyConfig{
			AutoBackup:       true,
			SafeRollback:     true,
			ArchivePrefix:    "archived_",
			ArchiveTimestamp: true,
			TimestampFormat:  migrator.DefaultTimestampFormat,
		},
		Drift: DriftConfig{
			IgnoredTables:   []string{"migrations"},
			IgnoredColumns:  []string{},
			RenameThreshold: diff.DefaultRenameThreshold,
		},
		Paths: PathsConfig{
			Migrations: "./migrations",
			Snapshots:  "./.safeshift/snapshots",
		},
		History: HistoryConfig{Table: "migrations"},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8088,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from, lowest precedence first: defaults,
// the YAML file, .env files and SAFESHIFT_* environment variables. An empty
// path searches for safeshift.yaml in the working directory and
// ~/.safeshift; a missing file is not an error unless path names it.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-provided viper instance, so command-line
// flags bound to v take precedence over everything else.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	// .env is read first so ${VAR} references in the YAML can use it.
	envFiles := []string{".env"}
	if path != "" {
		if expanded, err := homedir.Expand(path); err == nil {
			path = expanded
		}
		envFiles = append(envFiles, filepath.Join(filepath.Dir(path), ".env"))
	}
	for _, f := range slices.Compact(envFiles) {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	file, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Expand environment variables: ${VAR_NAME}
		content := os.ExpandEnv(string(data))
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(content)); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	candidates := []string{DefaultFileName}
	if home, err := homedir.Dir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".safeshift", DefaultFileName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// setDefaults registers every key so that environment overrides apply to
// keys the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.schema", d.Database.Schema)
	v.SetDefault("database.pool.max_open_conns", d.Database.Pool.MaxOpenConns)
	v.SetDefault("database.pool.max_idle_conns", d.Database.Pool.MaxIdleConns)
	v.SetDefault("database.pool.conn_max_lifetime", d.Database.Pool.ConnMaxLifetime)
	v.SetDefault("database.pool.conn_max_idle_time", d.Database.Pool.ConnMaxIdleTime)

	v.SetDefault("safety.auto_backup", d.Safety.AutoBackup)
	v.SetDefault("safety.safe_rollback", d.Safety.SafeRollback)
	v.SetDefault("safety.archive_prefix", d.Safety.ArchivePrefix)
	v.SetDefault("safety.archive_timestamp", d.Safety.ArchiveTimestamp)
	v.SetDefault("safety.timestamp_format", d.Safety.TimestampFormat)

	v.SetDefault("drift.ignored_tables", d.Drift.IgnoredTables)
	v.SetDefault("drift.ignored_columns", d.Drift.IgnoredColumns)
	v.SetDefault("drift.rename_threshold", d.Drift.RenameThreshold)
	v.SetDefault("drift.suppress_format_warning", d.Drift.SuppressFormatWarning)

	v.SetDefault("paths.migrations", d.Paths.Migrations)
	v.SetDefault("paths.snapshots", d.Paths.Snapshots)
	v.SetDefault("history.table", d.History.Table)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

var validDrivers = []string{"mysql", "postgres", "sqlite"}

// finish normalizes paths and the DSN, then validates.
func (c *Config) finish() error {
	var err error
	if c.Paths.Migrations, err = homedir.Expand(c.Paths.Migrations); err != nil {
		return fmt.Errorf("%w: paths.migrations: %v", ErrInvalidConfig, err)
	}
	if c.Paths.Snapshots, err = homedir.Expand(c.Paths.Snapshots); err != nil {
		return fmt.Errorf("%w: paths.snapshots: %v", ErrInvalidConfig, err)
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "pgx" || c.Database.Driver == "postgresql" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver == "sqlite" {
		if c.Database.DSN, err = homedir.Expand(c.Database.DSN); err != nil {
			return fmt.Errorf("%w: database.dsn: %v", ErrInvalidConfig, err)
		}
	}
	c.Database.DSN = connector.SanitizeDSN(c.Database.Driver, c.Database.DSN)
	return c.Validate()
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(validDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database.driver %q is not one of %v", c.Database.Driver, validDrivers))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Drift.RenameThreshold <= 0 || c.Drift.RenameThreshold > 1 {
		errs = append(errs, fmt.Errorf("drift.rename_threshold %v must be in (0, 1]", c.Drift.RenameThreshold))
	}
	if c.History.Table == "" {
		errs = append(errs, errors.New("history.table is required"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Logging.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", f))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ConnectionConfig returns the adapter connection settings.
func (c *Config) ConnectionConfig() connector.ConnectionConfig {
	return connector.ConnectionConfig{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		SchemaName:      c.Database.Schema,
		MaxOpenConns:    c.Database.Pool.MaxOpenConns,
		MaxIdleConns:    c.Database.Pool.MaxIdleConns,
		ConnMaxLifetime: c.Database.Pool.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.Pool.ConnMaxIdleTime,
	}
}

// DiffOptions returns the comparison settings.
func (c *Config) DiffOptions() diff.Options {
	return diff.Options{
		IgnoredTables:   c.Drift.IgnoredTables,
		IgnoredColumns:  c.Drift.IgnoredColumns,
		RenameThreshold: c.Drift.RenameThreshold,
	}
}

// DriftOptions returns the drift checker settings.
func (c *Config) DriftOptions() drift.Options {
	return drift.Options{
		Diff:                  c.DiffOptions(),
		MigrationsDir:         c.Paths.Migrations,
		SuppressFormatWarning: c.Drift.SuppressFormatWarning,
	}
}

// MigratorOptions returns the migrator settings.
func (c *Config) MigratorOptions() migrator.Options {
	return migrator.Options{
		MigrationsDir:    c.Paths.Migrations,
		AutoBackup:       c.Safety.AutoBackup,
		SafeRollback:     c.Safety.SafeRollback,
		ArchivePrefix:    c.Safety.ArchivePrefix,
		ArchiveTimestamp: c.Safety.ArchiveTimestamp,
		TimestampFormat:  c.Safety.TimestampFormat,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger returns a slog logger writing to w in the configured format.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WriteDefaultConfig writes the default configuration as YAML to path.
func WriteDefaultConfig(fs afero.Fs, path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(fs, path, data, 0o644)
}
