package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"manyllmd/internal/common/fsutil"
	"manyllmd/pkg/types"
)

const (
	indexFile  = "index.json"
	partialDir = ".partial"
)

// Store owns the managed artifact directory and its on-disk index. It is the
// single source of truth for what is physically present, and the only
// component allowed to delete managed bytes. All mutations are mutually
// exclusive across the whole store; reads snapshot under a read lock.
type Store struct {
	mu    sync.RWMutex
	dir   string
	index map[string]types.Artifact
	log   zerolog.Logger
}

// New opens (or creates) a managed directory and loads its index.
func New(dir string, log zerolog.Logger) (*Store, error) {
	abs, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if abs, err = filepath.Abs(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s := &Store{dir: abs, index: make(map[string]types.Artifact), log: log}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the managed directory.
func (s *Store) Dir() string { return s.dir }

// PartialDir returns the scratch directory for in-flight downloads. Files
// there are invisible to Reconcile's orphan sweep.
func (s *Store) PartialDir() string { return filepath.Join(s.dir, partialDir) }

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

func (s *Store) loadIndex() error {
	b, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read index: %v", ErrStorage, err)
	}
	if err := json.Unmarshal(b, &s.index); err != nil {
		return fmt.Errorf("%w: parse index: %v", ErrStorage, err)
	}
	return nil
}

// saveIndexLocked persists the index atomically. Caller holds mu.
func (s *Store) saveIndexLocked() error {
	b, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode index: %v", ErrStorage, err)
	}
	if err := fsutil.AtomicWrite(s.indexPath(), b); err != nil {
		return fmt.Errorf("%w: write index: %v", ErrStorage, err)
	}
	return nil
}

// List returns all known artifacts sorted by id.
func (s *Store) List() []types.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Artifact, 0, len(s.index))
	for _, a := range s.index {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the artifact for id; ok is false when unknown.
func (s *Store) Get(id string) (types.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.index[id]
	return a, ok
}

// Add moves sourceFile into managed storage and records the artifact as
// local. The on-disk size is measured, not trusted from metadata.
func (s *Store) Add(rec types.Artifact, sourceFile string) (types.Artifact, error) {
	fi, err := os.Stat(sourceFile)
	if err != nil || fi.IsDir() {
		return types.Artifact{}, fmt.Errorf("%w: source %s: %v", ErrStorage, sourceFile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.index[rec.ID]; ok && prev.IsLocal() {
		return types.Artifact{}, fmt.Errorf("%w: %s", ErrDuplicateArtifact, rec.ID)
	}

	dest := filepath.Join(s.dir, managedName(rec, sourceFile))
	if err := moveFile(sourceFile, dest); err != nil {
		return types.Artifact{}, fmt.Errorf("%w: place %s: %v", ErrStorage, rec.ID, err)
	}
	placed, err := os.Stat(dest)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("%w: stat %s: %v", ErrStorage, dest, err)
	}

	rec.LocalPath = dest
	rec.Size = placed.Size()
	rec.State = types.StateLocal
	rec.AddedAt = time.Now()
	s.index[rec.ID] = rec
	if err := s.saveIndexLocked(); err != nil {
		return types.Artifact{}, err
	}
	s.log.Info().Str("artifact", rec.ID).Int64("size", rec.Size).Msg("artifact added")
	return rec, nil
}

// Remove deletes the managed bytes and the index entry. Only local artifacts
// may be removed; in-flight or merely-remote records are rejected so partial
// download state can never be deleted through this path.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.index[id]
	if !ok || !a.IsLocal() {
		return fmt.Errorf("%w: %s", ErrNotLocal, id)
	}
	if err := os.Remove(a.LocalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete %s: %v", ErrStorage, a.LocalPath, err)
	}
	delete(s.index, id)
	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	s.log.Info().Str("artifact", id).Msg("artifact removed")
	return nil
}

// Update replaces the index entry for rec.ID and persists. Used by the
// orchestrator for lifecycle transitions; it never touches managed bytes.
func (s *Store) Update(rec types.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[rec.ID] = rec
	return s.saveIndexLocked()
}

// SetState transitions the lifecycle state of id and persists.
func (s *Store) SetState(id string, st types.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLocal, id)
	}
	a.State = st
	s.index[id] = a
	return s.saveIndexLocked()
}

// Reconcile repairs the index against the actual filesystem after an unclean
// shutdown. Orphaned files with no index entry are deleted; entries whose
// file is gone are demoted out of local; stale transient states (verifying,
// activating, active, downloading, failed) fall back to local or remote.
func (s *Store) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]string, len(s.index)) // path -> id
	for id, a := range s.index {
		if a.LocalPath != "" {
			known[a.LocalPath] = id
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrStorage, s.dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == indexFile || strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(s.dir, name)
		if _, ok := known[p]; ok {
			continue
		}
		if err := os.Remove(p); err != nil {
			s.log.Warn().Str("path", p).Err(err).Msg("reconcile: orphan delete failed")
			continue
		}
		s.log.Info().Str("path", p).Msg("reconcile: deleted orphan file")
	}

	changed := false
	for id, a := range s.index {
		if a.LocalPath == "" || !fsutil.PathExists(a.LocalPath) {
			// File is gone: demote out of local.
			a.LocalPath = ""
			a.AddedAt = time.Time{}
			if a.RemoteURL != "" {
				a.State = types.StateRemote
			} else {
				delete(s.index, id)
				changed = true
				s.log.Warn().Str("artifact", id).Msg("reconcile: dropped entry with missing file and no remote")
				continue
			}
			s.index[id] = a
			changed = true
			s.log.Warn().Str("artifact", id).Msg("reconcile: demoted entry with missing file")
			continue
		}
		// Transient states never survive a restart.
		switch a.State {
		case types.StateVerifying, types.StateActivating, types.StateActive, types.StateDownloading, types.StateFailed:
			a.State = types.StateLocal
			s.index[id] = a
			changed = true
		}
	}
	if changed {
		return s.saveIndexLocked()
	}
	return nil
}

// managedName derives a stable on-disk name for an artifact. Scratch
// extensions from the download path are replaced by the remote URL's or the
// declared format's extension.
func managedName(rec types.Artifact, source string) string {
	ext := filepath.Ext(source)
	if ext == "" || ext == ".part" {
		ext = filepath.Ext(rec.RemoteURL)
	}
	if (ext == "" || ext == ".part") && len(rec.Formats) > 0 {
		ext = "." + strings.ToLower(rec.Formats[0])
	}
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, rec.ID)
	return safe + ext
}

// moveFile renames src to dst, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
