//go:build llama

package engine

import (
	"context"
	"errors"
	"os"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaEngine loads GGUF artifacts in-process through go-llama.cpp.
type llamaEngine struct{}

func NewLlama() Engine { return &llamaEngine{} }

func (*llamaEngine) Name() string { return "llama" }

func (*llamaEngine) Load(ctx context.Context, path string, budgetBytes int64) (Session, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if budgetBytes > 0 && fi.Size() > budgetBytes {
		return nil, ErrBudgetExceeded(fi.Size(), budgetBytes)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	m, err := llama.New(path, llama.EnableMMap)
	if err != nil {
		return nil, err
	}
	return &llamaSession{model: m, committed: fi.Size()}, nil
}

func (*llamaEngine) Unload(s Session) error {
	if s == nil {
		return nil
	}
	return s.Close()
}

type llamaSession struct {
	model     *llama.LLama
	committed int64
}

func (s *llamaSession) CommittedBytes() int64 { return s.committed }

func (s *llamaSession) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}
