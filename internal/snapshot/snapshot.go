// Package snapshot persists point-in-time copies of a database schema. The
// latest snapshot is the expected shape drift checks compare against.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/faucetdb/safeshift/internal/model"
)

// CurrentFormatVersion is the snapshot layout this build writes and expects.
const CurrentFormatVersion = "1.0"

// ErrNoSnapshot is returned when a caller asks for a snapshot that does not
// exist.
var ErrNoSnapshot = errors.New("snapshot not found")

// Snapshot is a named, versioned copy of a schema.
type Snapshot struct {
	Name          string       `yaml:"name" json:"name"`
	Version       int          `yaml:"version" json:"version"`
	FormatVersion string       `yaml:"format_version" json:"format_version"`
	Timestamp     time.Time    `yaml:"timestamp" json:"timestamp"`
	Schema        model.Schema `yaml:"schema" json:"schema"`
}

// Store reads and writes snapshots.
type Store interface {
	// Latest returns the highest-versioned snapshot, or nil, nil when the
	// store is empty.
	Latest(ctx context.Context) (*Snapshot, error)
	// Save persists schema as the next version and returns it.
	Save(ctx context.Context, name string, schema model.Schema) (*Snapshot, error)
	// List returns every snapshot, oldest first.
	List(ctx context.Context) ([]Snapshot, error)
	// Get returns the snapshot with the given version, or ErrNoSnapshot.
	Get(ctx context.Context, version int) (*Snapshot, error)
}

// FileStore keeps one YAML file per snapshot, named <version>_<name>.yaml.
type FileStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewFileStore returns a store rooted at dir on fs.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir, now: time.Now}
}

// Dir returns the directory snapshots are written to.
func (s *FileStore) Dir() string { return s.dir }

var fileName = regexp.MustCompile(`^(\d+)_(.+)\.ya?ml$`)

var unsafeName = regexp.MustCompile(`[^a-z0-9_]+`)

type entry struct {
	version int
	path    string
}

// entries lists snapshot files sorted by version. A missing directory is an
// empty store.
func (s *FileStore) entries() ([]entry, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var out []entry
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		m := fileName.FindStringSubmatch(fi.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, entry{version: v, path: filepath.Join(s.dir, fi.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (s *FileStore) load(path string) (*Snapshot, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", filepath.Base(path), err)
	}
	if snap.Schema == nil {
		snap.Schema = model.Schema{}
	}
	return &snap, nil
}

// Latest returns the highest-versioned snapshot, or nil, nil when the store
// is empty.
func (s *FileStore) Latest(ctx context.Context) (*Snapshot, error) {
	entries, err := s.entries()
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return s.load(entries[len(entries)-1].path)
}

// Get returns the snapshot with the given version, or ErrNoSnapshot.
func (s *FileStore) Get(ctx context.Context, version int) (*Snapshot, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.version == version {
			return s.load(e.path)
		}
	}
	return nil, fmt.Errorf("%w: version %d", ErrNoSnapshot, version)
}

// List returns every snapshot, oldest first.
func (s *FileStore) List(ctx context.Context) ([]Snapshot, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		snap, err := s.load(e.path)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

// Save persists schema as the next version and returns it.
func (s *FileStore) Save(ctx context.Context, name string, schema model.Schema) (*Snapshot, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	next := 1
	if len(entries) > 0 {
		next = entries[len(entries)-1].version + 1
	}
	if schema == nil {
		schema = model.Schema{}
	}

	snap := &Snapshot{
		Name:          name,
		Version:       next,
		FormatVersion: CurrentFormatVersion,
		Timestamp:     s.now().UTC().Truncate(time.Second),
		Schema:        schema,
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%04d_%s.yaml", next, slug(name)))
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

func slug(name string) string {
	s := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "snapshot"
	}
	return s
}

// CheckFormat compares the snapshot's format version with the one this build
// writes. It returns a warning to show the user, or "" when they match.
func CheckFormat(s *Snapshot) string {
	if s == nil {
		return ""
	}
	want := version.Must(version.NewVersion(CurrentFormatVersion))
	if s.FormatVersion == "" {
		return fmt.Sprintf("snapshot %q has no format version; expected %s", s.Name, want)
	}
	got, err := version.NewVersion(s.FormatVersion)
	if err != nil {
		return fmt.Sprintf("snapshot %q has unrecognized format version %q; expected %s", s.Name, s.FormatVersion, want)
	}
	switch {
	case got.Equal(want):
		return ""
	case got.LessThan(want):
		return fmt.Sprintf("snapshot %q uses older format %s (current %s); take a new snapshot to upgrade", s.Name, got, want)
	default:
		return fmt.Sprintf("snapshot %q uses newer format %s than this build supports (%s)", s.Name, got, want)
	}
}
