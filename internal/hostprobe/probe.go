package hostprobe

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Probe exposes host capabilities consulted when classifying artifacts and
// planning activations. AvailableMemoryBytes is polled, never cached.
type Probe interface {
	OSVersion() string
	ProcessorClass() string
	AvailableMemoryBytes() (int64, error)
	TotalMemoryBytes() (int64, error)
}

// System is the gopsutil-backed probe used in production.
type System struct{}

func NewSystem() *System { return &System{} }

func (*System) OSVersion() string {
	info, err := host.Info()
	if err != nil {
		return runtime.GOOS
	}
	return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
}

func (*System) ProcessorClass() string { return runtime.GOARCH }

func (*System) AvailableMemoryBytes() (int64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return int64(vm.Available), nil
}

func (*System) TotalMemoryBytes() (int64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return int64(vm.Total), nil
}

// Static is a fixed-value probe for tests.
type Static struct {
	OS        string
	Processor string
	Available int64
	Total     int64
	Err       error
}

func (s *Static) OSVersion() string      { return s.OS }
func (s *Static) ProcessorClass() string { return s.Processor }

func (s *Static) AvailableMemoryBytes() (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Available, nil
}

func (s *Static) TotalMemoryBytes() (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Total, nil
}
