//go:build !llama

package engine

// This file provides a no-CGO stub for the llama backend. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.

import "context"

// llamaBuilt indicates this binary was compiled without real llama support.
var llamaBuilt = false

type llamaEngine struct{}

func NewLlama() Engine { return &llamaEngine{} }

func (*llamaEngine) Name() string { return "llama" }

func (*llamaEngine) Load(ctx context.Context, path string, budgetBytes int64) (Session, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}

func (*llamaEngine) Unload(s Session) error { return nil }
