// Package migrator runs migrations with backups taken beforehand and
// restored on failure, and rolls them back by archiving instead of
// dropping.
package migrator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/history"
	"github.com/faucetdb/safeshift/schema"
)

// ErrMigrationNotFound is returned when a named migration has no source file
// or no registered implementation.
var ErrMigrationNotFound = errors.New("migration not found")

// DefaultTimestampFormat is the archive suffix layout.
const DefaultTimestampFormat = "20060102_150405"

// State is a step of the run state machine.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateBackingUp
	StateExecuting
	StateCommitted
	StateRollingBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateBackingUp:
		return "backing up"
	case StateExecuting:
		return "executing"
	case StateCommitted:
		return "committed"
	case StateRollingBack:
		return "restoring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options controls backup and rollback behavior.
type Options struct {
	MigrationsDir    string
	AutoBackup       bool
	SafeRollback     bool
	ArchivePrefix    string
	ArchiveTimestamp bool
	TimestampFormat  string
}

// DefaultOptions returns the options a fresh config produces.
func DefaultOptions() Options {
	return Options{
		MigrationsDir:    "./migrations",
		AutoBackup:       true,
		SafeRollback:     true,
		ArchivePrefix:    "archived_",
		ArchiveTimestamp: true,
		TimestampFormat:  DefaultTimestampFormat,
	}
}

// SafeMigrator executes migrations one at a time against a single adapter.
type SafeMigrator struct {
	adapter  connector.Adapter
	ledger   history.Repository
	registry *schema.Registry
	fs       afero.Fs
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// New returns a SafeMigrator. Migration source files are read from
// opts.MigrationsDir on fs and resolved to implementations through registry.
func New(adapter connector.Adapter, ledger history.Repository, registry *schema.Registry, fs afero.Fs, opts Options, logger *slog.Logger) *SafeMigrator {
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = DefaultTimestampFormat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SafeMigrator{
		adapter:  adapter,
		ledger:   ledger,
		registry: registry,
		fs:       fs,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// State returns the current state of the run state machine.
func (m *SafeMigrator) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SafeMigrator) setState(s State, log *slog.Logger) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	if s != StateIdle {
		log.Info("migration " + s.String())
	}
}

// ArchiveName returns the name a dropped table or column is archived under.
// An empty timestamp leaves the suffix off.
func ArchiveName(prefix, name, timestamp string) string {
	if timestamp == "" {
		return prefix + name
	}
	return prefix + name + "_" + timestamp
}

func (m *SafeMigrator) archiveSuffix() string {
	if !m.opts.ArchiveTimestamp {
		return ""
	}
	return m.now().Format(m.opts.TimestampFormat)
}

// MigrationName returns the migration name for a file path or bare name.
func MigrationName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ".go")
}

// path returns the source path for a file argument. Bare names resolve
// inside the migrations directory.
func (m *SafeMigrator) path(file string) string {
	if strings.ContainsAny(file, `/\`) || strings.HasSuffix(file, ".go") {
		return file
	}
	return filepath.Join(m.opts.MigrationsDir, file+".go")
}

// resolve reads a migration's source and finds its registered implementation.
func (m *SafeMigrator) resolve(file string) (string, schema.Migration, string, error) {
	name := MigrationName(file)
	src, err := m.source(file)
	if err != nil {
		return name, nil, "", err
	}
	mig, ok := m.registry.Lookup(name)
	if !ok {
		return name, nil, "", fmt.Errorf("%w: %s is not registered", ErrMigrationNotFound, name)
	}
	return name, mig, src, nil
}

func (m *SafeMigrator) source(file string) (string, error) {
	path := m.path(file)
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMigrationNotFound, path)
		}
		return "", fmt.Errorf("read migration %s: %w", path, err)
	}
	return string(data), nil
}

// GetAffectedTables returns the tables a migration file references.
func (m *SafeMigrator) GetAffectedTables(file string) ([]string, error) {
	src, err := m.source(file)
	if err != nil {
		return nil, err
	}
	return GetAffectedTables(src), nil
}
