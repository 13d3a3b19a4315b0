package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"manyllmd/pkg/types"
)

// helper: write a source file with the given content outside the managed dir
func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return p
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestAddMeasuresActualSize(t *testing.T) {
	s := newTestStore(t)
	src := writeSource(t, "m.gguf", "GGUFxxxxpayload")
	rec, err := s.Add(types.Artifact{ID: "m1", Size: 999999}, src)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.Size != int64(len("GGUFxxxxpayload")) {
		t.Fatalf("expected measured size, got %d", rec.Size)
	}
	if rec.State != types.StateLocal {
		t.Fatalf("expected local state, got %q", rec.State)
	}
	if !rec.IsLocal() {
		t.Fatalf("expected IsLocal")
	}
	if _, err := os.Stat(rec.LocalPath); err != nil {
		t.Fatalf("managed file missing: %v", err)
	}
	// source moved, not copied
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source to be gone, err=%v", err)
	}
}

func TestAddDuplicate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(types.Artifact{ID: "m1"}, writeSource(t, "a.gguf", "GGUFdata")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := s.Add(types.Artifact{ID: "m1"}, writeSource(t, "b.gguf", "GGUFother"))
	if !errors.Is(err, ErrDuplicateArtifact) {
		t.Fatalf("expected ErrDuplicateArtifact, got %v", err)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected exactly one entry, got %d", got)
	}
}

func TestAddMissingSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(types.Artifact{ID: "m1"}, filepath.Join(t.TempDir(), "nope.gguf"))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(types.Artifact{ID: "m1"}, writeSource(t, "a.gguf", "GGUFdata"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Remove("m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(rec.LocalPath); !os.IsNotExist(err) {
		t.Fatalf("expected managed file deleted")
	}
	if _, ok := s.Get("m1"); ok {
		t.Fatalf("expected entry gone")
	}
}

func TestRemoveNotLocal(t *testing.T) {
	s := newTestStore(t)
	if err := s.Remove("unknown"); !errors.Is(err, ErrNotLocal) {
		t.Fatalf("expected ErrNotLocal, got %v", err)
	}
	// a merely-remote record is protected too
	if err := s.Update(types.Artifact{ID: "r1", State: types.StateRemote, RemoteURL: "http://x/y"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Remove("r1"); !errors.Is(err, ErrNotLocal) {
		t.Fatalf("expected ErrNotLocal for remote record, got %v", err)
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Add(types.Artifact{ID: "m1", Name: "One"}, writeSource(t, "a.gguf", "GGUFdata")); err != nil {
		t.Fatalf("add: %v", err)
	}
	reopened, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	a, ok := reopened.Get("m1")
	if !ok || a.Name != "One" || !a.IsLocal() {
		t.Fatalf("unexpected reopened record: %+v ok=%v", a, ok)
	}
}

func TestReconcileRepairsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// indexed-but-missing file
	rec, err := s.Add(types.Artifact{ID: "gone", RemoteURL: "http://x/gone.gguf"}, writeSource(t, "gone.gguf", "GGUFdata"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := os.Remove(rec.LocalPath); err != nil {
		t.Fatalf("remove managed file: %v", err)
	}
	// unindexed-but-present file
	orphan := filepath.Join(dir, "orphan.gguf")
	if err := os.WriteFile(orphan, []byte("GGUFjunk"), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	if err := s.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	a, ok := s.Get("gone")
	if !ok {
		t.Fatalf("expected demoted entry to remain (has remote URL)")
	}
	if a.State == types.StateLocal || a.LocalPath != "" {
		t.Fatalf("expected demotion out of local, got %+v", a)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphan deleted")
	}
}

func TestReconcileResetsTransientStates(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(types.Artifact{ID: "m1"}, writeSource(t, "a.gguf", "GGUFdata"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	rec.State = types.StateActive
	if err := s.Update(rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	a, _ := s.Get("m1")
	if a.State != types.StateLocal {
		t.Fatalf("expected active reset to local, got %q", a.State)
	}
}

func TestReconcileIgnoresPartialDir(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(s.PartialDir(), 0o755); err != nil {
		t.Fatalf("mkdir partial: %v", err)
	}
	part := filepath.Join(s.PartialDir(), "m1.part")
	if err := os.WriteFile(part, []byte("half"), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	if err := s.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if _, err := os.Stat(part); err != nil {
		t.Fatalf("partial file must survive reconcile: %v", err)
	}
}
