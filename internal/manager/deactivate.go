package manager

import "manyllmd/pkg/types"

// Deactivate releases the live activation and settles its artifact back to
// local. Deactivating when nothing is active is a no-op.
func (m *Manager) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	m.releaseCurrentLocked("deactivate requested")
	return nil
}

// RemoveArtifact deletes a local artifact's bytes and index entry. The live
// activation's artifact cannot be removed.
func (m *Manager) RemoveArtifact(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ArtifactID == id {
		return ErrWrongState(id, string(types.StateActive))
	}
	return m.cfg.Store.Remove(id)
}
