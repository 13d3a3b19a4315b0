package arbiter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"manyllmd/internal/hostprobe"
	"manyllmd/pkg/types"
)

// Strategy classifies how risky an activation is against the live budget.
type Strategy string

const (
	StrategyOptimal      Strategy = "optimal"
	StrategyConservative Strategy = "conservative"
	StrategyAggressive   Strategy = "aggressive"
	StrategyImpossible   Strategy = "impossible"
)

// Classification thresholds on estimated/available.
const (
	optimalBound      = 0.50
	conservativeBound = 0.75
	aggressiveBound   = 1.00
)

// overheadRatio covers runtime buffers and context cache on top of the
// declared weight size.
const overheadRatio = 1.2

// bytesPerParam is the fallback estimate when no size is declared,
// assuming heavily quantized weights.
const bytesPerParam = 2

// Plan is the arbiter's verdict for activating one artifact right now. It is
// never persisted; the live budget changes between calls.
type Plan struct {
	Strategy       Strategy
	EstimatedBytes int64
	AvailableBytes int64
	UsedFraction   float64
}

// Advisable reports whether activation is expected to fit at all.
// An impossible plan is advisory, not a hard block.
func (p Plan) Advisable() bool { return p.Strategy != StrategyImpossible }

// Arbiter answers "can this artifact be activated right now, and at what
// risk" without ever touching the artifact's bytes.
type Arbiter struct {
	probe    hostprobe.Probe
	marginMB int
	log      zerolog.Logger
}

func New(probe hostprobe.Probe, marginMB int, log zerolog.Logger) *Arbiter {
	return &Arbiter{probe: probe, marginMB: marginMB, log: log}
}

// EstimateRequirement derives the memory cost of activating rec from its
// declared metadata. Pure function, no I/O.
func EstimateRequirement(rec types.Artifact) int64 {
	base := rec.Size
	if base == 0 {
		base = rec.ParamCount * bytesPerParam
	}
	return int64(float64(base) * overheadRatio)
}

// Plan samples currently available memory and classifies the allocation
// strategy for rec. Recomputed on every call.
func (a *Arbiter) Plan(rec types.Artifact) (Plan, error) {
	avail, err := a.probe.AvailableMemoryBytes()
	if err != nil {
		return Plan{}, fmt.Errorf("sampling available memory: %w", err)
	}
	avail -= int64(a.marginMB) * 1024 * 1024
	if avail < 0 {
		avail = 0
	}
	return classify(EstimateRequirement(rec), avail), nil
}

// classify is the pure threshold decision, split out for boundary tests.
func classify(estimated, available int64) Plan {
	p := Plan{EstimatedBytes: estimated, AvailableBytes: available}
	if available <= 0 {
		p.Strategy = StrategyImpossible
		p.UsedFraction = 1
		return p
	}
	p.UsedFraction = float64(estimated) / float64(available)
	switch {
	case p.UsedFraction < optimalBound:
		p.Strategy = StrategyOptimal
	case p.UsedFraction < conservativeBound:
		p.Strategy = StrategyConservative
	case p.UsedFraction < aggressiveBound:
		p.Strategy = StrategyAggressive
	default:
		p.Strategy = StrategyImpossible
	}
	return p
}

// PressureLevel coarsely grades how scarce system memory is.
type PressureLevel string

const (
	PressureNormal   PressureLevel = "normal"
	PressureElevated PressureLevel = "elevated"
	PressureCritical PressureLevel = "critical"
)

const (
	pressureElevatedBound = 0.75
	pressureCriticalBound = 0.90
)

// Pressure samples the current memory pressure level.
func (a *Arbiter) Pressure() PressureLevel {
	avail, err := a.probe.AvailableMemoryBytes()
	if err != nil {
		return PressureNormal
	}
	total, err := a.probe.TotalMemoryBytes()
	if err != nil || total == 0 {
		return PressureNormal
	}
	used := 1 - float64(avail)/float64(total)
	switch {
	case used >= pressureCriticalBound:
		return PressureCritical
	case used >= pressureElevatedBound:
		return PressureElevated
	default:
		return PressureNormal
	}
}

// WatchPressure emits the pressure level on each change until ctx is done.
// Long-running sessions use it to react to memory getting scarce after
// activation, not just at decision time.
func (a *Arbiter) WatchPressure(ctx context.Context, interval time.Duration) <-chan PressureLevel {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ch := make(chan PressureLevel, 1)
	go func() {
		defer close(ch)
		var last PressureLevel
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			cur := a.Pressure()
			if cur != last {
				last = cur
				select {
				case ch <- cur:
				case <-ctx.Done():
					return
				}
				if cur != PressureNormal {
					a.log.Warn().Str("pressure", string(cur)).Msg("memory pressure changed")
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
