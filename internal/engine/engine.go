package engine

import (
	"context"

	"manyllmd/internal/hostprobe"
	"manyllmd/pkg/types"
)

// Engine abstracts the inference runtime that artifacts are loaded into.
// Concrete backends (llama.cpp, cpu fallback) satisfy this interface; the
// orchestrator never inspects runtime types.
type Engine interface {
	// Name identifies the backend.
	Name() string
	// Load maps the artifact at path into the given memory budget and
	// returns an opaque session. Implementations must return promptly when
	// the context is canceled.
	Load(ctx context.Context, path string, budgetBytes int64) (Session, error)
	// Unload releases the session's resources. Unloading an already-released
	// session is a no-op.
	Unload(s Session) error
}

// Session is an opaque handle to a loaded model.
type Session interface {
	// CommittedBytes reports the memory actually committed at load time.
	CommittedBytes() int64
	// Close releases resources associated with the session.
	Close() error
}

// Select picks the backend for an artifact as a pure function of its
// compatibility class and the host probe. Incompatible artifacts still get
// the cpu fallback so the engine itself can produce the authoritative
// rejection.
func Select(compat types.CompatClass, probe hostprobe.Probe, preferred string) Engine {
	switch preferred {
	case "llama":
		return NewLlama()
	case "cpu":
		return NewCPU()
	}
	if compat == types.CompatFull && llamaBuilt {
		return NewLlama()
	}
	return NewCPU()
}
