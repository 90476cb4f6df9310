package introspect

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Konsultn-Engineering/sqlm/diag"
)

const snapshotVersion = 1

// Snapshot is an offline copy of oracle answers, checked in next to the
// code so builds do not need a database.
type Snapshot struct {
	Version     int       `yaml:"version"`
	Revision    string    `yaml:"revision"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Dialect     string    `yaml:"dialect"`
	Queries     []Entry   `yaml:"queries"`

	mu    sync.RWMutex
	index map[string]int
}

// Entry is one described statement.
type Entry struct {
	Fingerprint string `yaml:"fingerprint"`
	SQL         string `yaml:"sql"`
	Description `yaml:",inline"`
}

// NewSnapshot creates an empty snapshot for dialect.
func NewSnapshot(dialect string) *Snapshot {
	return &Snapshot{Version: snapshotVersion, Dialect: dialect, index: make(map[string]int)}
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(fs afero.Fs, path string) (*Snapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, diag.Wrap(diag.Schema, err, "reading snapshot")
	}
	s := &Snapshot{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, diag.Wrap(diag.Schema, err, "parsing snapshot "+path)
	}
	if s.Version != snapshotVersion {
		return nil, diag.Newf(diag.Schema, "snapshot %s has version %d, expected %d", path, s.Version, snapshotVersion)
	}
	if s.Dialect == "" {
		s.Dialect = "postgres"
	}
	s.reindex()
	return s, nil
}

func (s *Snapshot) reindex() {
	s.index = make(map[string]int, len(s.Queries))
	for i, e := range s.Queries {
		s.index[e.Fingerprint] = i
	}
}

// Lookup returns the stored description of sql.
func (s *Snapshot) Lookup(sql string) (*Description, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[Fingerprint(s.Dialect, sql)]
	if !ok || s.Queries[i].SQL != sql {
		return nil, false
	}
	d := s.Queries[i].Description
	return &d, true
}

// Put stores the description of sql, replacing an older one.
func (s *Snapshot) Put(sql string, d *Description) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Fingerprint: Fingerprint(s.Dialect, sql), SQL: sql, Description: *d}
	if i, ok := s.index[e.Fingerprint]; ok {
		s.Queries[i] = e
		return
	}
	s.index[e.Fingerprint] = len(s.Queries)
	s.Queries = append(s.Queries, e)
}

// Len returns the number of stored statements.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Queries)
}

// Marshal stamps a new revision and encodes the snapshot with entries
// sorted by fingerprint, so that unchanged queries produce no diff.
func (s *Snapshot) Marshal(now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortFunc(s.Queries, func(a, b Entry) int {
		return strings.Compare(a.Fingerprint, b.Fingerprint)
	})
	s.reindex()
	s.Revision = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	s.GeneratedAt = now.UTC()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the snapshot to path.
func (s *Snapshot) Save(fs afero.Fs, path string) error {
	data, err := s.Marshal(time.Now())
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return diag.Wrap(diag.Schema, err, "writing snapshot")
	}
	return nil
}

// Offline answers from a snapshot only.
type Offline struct {
	snap *Snapshot
}

// NewOffline creates an oracle over snap.
func NewOffline(snap *Snapshot) *Offline {
	return &Offline{snap: snap}
}

func (o *Offline) Describe(_ context.Context, sql string) (*Description, error) {
	if d, ok := o.snap.Lookup(sql); ok {
		return d, nil
	}
	return nil, diag.New(diag.Schema, `query not found in snapshot; run "sqlm prepare"`)
}

// Recorder passes calls to a live oracle and records every answer.
type Recorder struct {
	inner Oracle
	snap  *Snapshot
}

// NewRecorder records the answers of inner into snap.
func NewRecorder(inner Oracle, snap *Snapshot) *Recorder {
	return &Recorder{inner: inner, snap: snap}
}

func (r *Recorder) Describe(ctx context.Context, sql string) (*Description, error) {
	d, err := r.inner.Describe(ctx, sql)
	if err != nil {
		return nil, err
	}
	r.snap.Put(sql, d)
	return d, nil
}

// Snapshot returns the snapshot being recorded into.
func (r *Recorder) Snapshot() *Snapshot {
	return r.snap
}
