package arbiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"manyllmd/internal/hostprobe"
	"manyllmd/pkg/types"
)

func TestEstimateRequirement(t *testing.T) {
	// declared size gets the fixed overhead margin
	if got := EstimateRequirement(types.Artifact{Size: 1000}); got != 1200 {
		t.Fatalf("expected 1200, got %d", got)
	}
	// param-count fallback when size unknown
	if got := EstimateRequirement(types.Artifact{ParamCount: 1000}); got != 2400 {
		t.Fatalf("expected 2400, got %d", got)
	}
	if got := EstimateRequirement(types.Artifact{}); got != 0 {
		t.Fatalf("expected 0 for empty metadata, got %d", got)
	}
}

func TestPlanClassification(t *testing.T) {
	cases := []struct {
		estimated, available int64
		want                 Strategy
	}{
		{8e9, 20e9, StrategyOptimal}, // 40%
		{8e9, 10e9, StrategyAggressive},
		{4e9, 10e9, StrategyOptimal},
		// exact boundaries: 50% is conservative, 75% aggressive, 100% impossible
		{5e9, 10e9, StrategyConservative},
		{75e8, 10e9, StrategyAggressive},
		{10e9, 10e9, StrategyImpossible},
		{11e9, 10e9, StrategyImpossible},
		{1, 0, StrategyImpossible},
	}
	for _, tc := range cases {
		got := classify(tc.estimated, tc.available)
		if got.Strategy != tc.want {
			t.Errorf("classify(%d, %d) = %q, want %q", tc.estimated, tc.available, got.Strategy, tc.want)
		}
	}
}

func TestPlanSamplesLiveBudget(t *testing.T) {
	probe := &hostprobe.Static{Available: 20e9, Total: 32e9}
	a := New(probe, 0, zerolog.Nop())
	rec := types.Artifact{Size: 8e9} // estimate 9.6e9

	p, err := a.Plan(rec)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Strategy != StrategyOptimal {
		t.Fatalf("expected optimal at 48%%, got %q", p.Strategy)
	}
	if p.AvailableBytes != 20e9 || p.EstimatedBytes != 96e8 {
		t.Fatalf("unexpected plan: %+v", p)
	}

	// budget shrinks between calls: plan must be recomputed
	probe.Available = 10e9
	p, err = a.Plan(rec)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Strategy != StrategyAggressive {
		t.Fatalf("expected aggressive at 96%%, got %q", p.Strategy)
	}
}

func TestPlanAppliesMargin(t *testing.T) {
	probe := &hostprobe.Static{Available: 10e9, Total: 32e9}
	a := New(probe, 2048, zerolog.Nop()) // ~2.1e9 reserved
	p, err := a.Plan(types.Artifact{Size: 8e9})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Strategy != StrategyImpossible {
		t.Fatalf("expected impossible with margin applied, got %q", p.Strategy)
	}
}

func TestPlanProbeFault(t *testing.T) {
	a := New(&hostprobe.Static{Err: errors.New("no probe")}, 0, zerolog.Nop())
	if _, err := a.Plan(types.Artifact{Size: 1}); err == nil {
		t.Fatalf("expected error when probe fails")
	}
}

func TestPressureLevels(t *testing.T) {
	probe := &hostprobe.Static{Available: 16e9, Total: 32e9}
	a := New(probe, 0, zerolog.Nop())
	if got := a.Pressure(); got != PressureNormal {
		t.Fatalf("expected normal, got %q", got)
	}
	probe.Available = 6e9 // ~81% used
	if got := a.Pressure(); got != PressureElevated {
		t.Fatalf("expected elevated, got %q", got)
	}
	probe.Available = 2e9 // ~94% used
	if got := a.Pressure(); got != PressureCritical {
		t.Fatalf("expected critical, got %q", got)
	}
}

func TestWatchPressureEmitsChanges(t *testing.T) {
	probe := &hostprobe.Static{Available: 16e9, Total: 32e9}
	a := New(probe, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := a.WatchPressure(ctx, time.Millisecond)
	select {
	case got := <-ch:
		if got != PressureNormal {
			t.Fatalf("expected first emission normal, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no initial pressure emission")
	}

	probe.Available = 2e9
	select {
	case got := <-ch:
		if got != PressureCritical {
			t.Fatalf("expected critical, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no pressure change emission")
	}

	cancel()
	select {
	case _, open := <-ch:
		if open {
			// drain one in-flight emission, channel must close after
			if _, open := <-ch; open {
				t.Fatalf("channel still open after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
