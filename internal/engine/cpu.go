package engine

import (
	"context"
	"os"
)

// cpuEngine is the always-available fallback backend. It maps the artifact
// file and accounts its size against the budget without CGO dependencies.
type cpuEngine struct{}

func NewCPU() Engine { return &cpuEngine{} }

func (*cpuEngine) Name() string { return "cpu" }

func (*cpuEngine) Load(ctx context.Context, path string, budgetBytes int64) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if budgetBytes > 0 && fi.Size() > budgetBytes {
		f.Close()
		return nil, ErrBudgetExceeded(fi.Size(), budgetBytes)
	}
	return &cpuSession{f: f, committed: fi.Size()}, nil
}

func (*cpuEngine) Unload(s Session) error {
	if s == nil {
		return nil
	}
	return s.Close()
}

type cpuSession struct {
	f         *os.File
	committed int64
}

func (s *cpuSession) CommittedBytes() int64 { return s.committed }

func (s *cpuSession) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
