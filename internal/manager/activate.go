package manager

import (
	"context"
	"time"

	"manyllmd/internal/engine"
	"manyllmd/internal/hostprobe"
	"manyllmd/pkg/types"
)

// Activate drives an artifact from local to active. The previous activation
// is released only after the new artifact has passed verification and
// planning, so verify and plan failures leave it untouched.
func (m *Manager) Activate(ctx context.Context, id string) (*Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cfg.Store.Get(id)
	if !ok {
		return nil, ErrArtifactNotFound(id)
	}
	if m.current != nil && m.current.ArtifactID == id {
		return m.current, nil
	}
	if rec.State != types.StateLocal {
		return nil, ErrWrongState(id, string(rec.State))
	}

	if err := m.cfg.Store.SetState(id, types.StateVerifying); err != nil {
		return nil, ErrActivation(id, err)
	}
	m.publish(Event{Name: "activation.verifying", ArtifactID: id})

	okBytes, verr := m.cfg.Verify(rec)
	if verr != nil {
		m.failActivation(id, verr.Error())
		return nil, ErrActivation(id, verr)
	}
	if !okBytes {
		verifyFailuresCounter.Inc()
		m.failActivation(id, "integrity verification rejected bytes at rest")
		return nil, ErrIntegrity(id)
	}
	rec.LastVerifiedAt = time.Now()

	plan, perr := m.cfg.Arbiter.Plan(rec)
	if perr != nil {
		m.failActivation(id, perr.Error())
		return nil, ErrActivation(id, perr)
	}
	m.lastPlan = &types.PlanResponse{
		ArtifactID:     id,
		Strategy:       string(plan.Strategy),
		EstimatedBytes: plan.EstimatedBytes,
		AvailableBytes: plan.AvailableBytes,
		UsedFraction:   plan.UsedFraction,
	}
	m.publish(Event{Name: "activation.planned", ArtifactID: id, Fields: map[string]any{
		"strategy":        string(plan.Strategy),
		"estimated_bytes": plan.EstimatedBytes,
		"available_bytes": plan.AvailableBytes,
	}})

	// The previous activation survives until here. From this point the slot
	// is committed to the new artifact.
	if m.current != nil {
		m.releaseCurrentLocked("evicted for " + id)
	}

	if err := m.cfg.Store.SetState(id, types.StateActivating); err != nil {
		return nil, ErrActivation(id, err)
	}
	m.publish(Event{Name: "activation.loading", ArtifactID: id})

	compat := rec.Compat
	if compat == "" || compat == types.CompatUnknown {
		compat = hostprobe.Classify(rec, m.cfg.Probe)
	}
	backend := engine.Select(compat, m.cfg.Probe, m.cfg.PreferredEngine)

	session, lerr := backend.Load(ctx, rec.LocalPath, plan.AvailableBytes)
	if lerr != nil {
		m.failActivation(id, lerr.Error())
		if engine.IsBudgetExceeded(lerr) {
			return nil, ErrAllocation(id, plan, lerr)
		}
		return nil, ErrActivation(id, lerr)
	}

	rec.State = types.StateActive
	if err := m.cfg.Store.Update(rec); err != nil {
		_ = backend.Unload(session)
		m.failActivation(id, err.Error())
		return nil, ErrActivation(id, err)
	}

	m.current = &Activation{
		ArtifactID:     id,
		Engine:         backend.Name(),
		CommittedBytes: session.CommittedBytes(),
		ActivatedAt:    time.Now(),
		backend:        backend,
		session:        session,
	}
	m.loadsTotal++
	m.lastErr = ""
	activationsCounter.WithLabelValues("success").Inc()
	m.publish(Event{Name: "activation.active", ArtifactID: id, Fields: map[string]any{
		"engine":          backend.Name(),
		"committed_bytes": m.current.CommittedBytes,
	}})
	m.log.Info().
		Str("artifact_id", id).
		Str("engine", backend.Name()).
		Int64("committed_bytes", m.current.CommittedBytes).
		Msg("artifact activated")
	return m.current, nil
}

// failActivation records the failure, parks the artifact in failed and then
// settles it back to local so the bytes remain usable for a retry.
func (m *Manager) failActivation(id, reason string) {
	m.lastErr = reason
	activationsCounter.WithLabelValues("failure").Inc()
	_ = m.cfg.Store.SetState(id, types.StateFailed)
	m.publish(Event{Name: "activation.failed", ArtifactID: id, Fields: map[string]any{"reason": reason}})
	m.log.Warn().Str("artifact_id", id).Str("reason", reason).Msg("activation failed")
	_ = m.cfg.Store.SetState(id, types.StateLocal)
}

// releaseCurrentLocked unloads the live activation and settles the artifact
// back to local. Caller holds m.mu.
func (m *Manager) releaseCurrentLocked(reason string) {
	cur := m.current
	m.current = nil
	if err := cur.backend.Unload(cur.session); err != nil {
		m.log.Warn().Str("artifact_id", cur.ArtifactID).Err(err).Msg("unload reported error")
	}
	_ = m.cfg.Store.SetState(cur.ArtifactID, types.StateLocal)
	m.evictionsTotal++
	evictionsCounter.Inc()
	m.publish(Event{Name: "activation.released", ArtifactID: cur.ArtifactID, Fields: map[string]any{"reason": reason}})
	m.log.Info().Str("artifact_id", cur.ArtifactID).Str("reason", reason).Msg("artifact deactivated")
}

func (m *Manager) publish(ev Event) { m.publisher.Publish(ev) }
