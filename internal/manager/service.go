package manager

import (
	"context"

	"manyllmd/internal/catalog"
	"manyllmd/pkg/types"
)

// The methods below delegate discovery and transfer to the catalog client
// and the download coordinator, resolving artifact records against both the
// local store and the catalog snapshot. They make the Manager the single
// service surface behind the HTTP API.

// RefreshCatalog fetches the remote index and refreshes the cached snapshot.
func (m *Manager) RefreshCatalog(ctx context.Context) ([]types.Artifact, error) {
	return m.cfg.Catalog.FetchCatalog(ctx)
}

// SearchCatalog filters and sorts the cached catalog snapshot.
func (m *Manager) SearchCatalog(query string, f catalog.Filters, sortBy types.SortOption) []types.Artifact {
	return m.cfg.Catalog.Search(query, f, sortBy)
}

// resolve finds the record for id in the store first, then in the catalog
// snapshot.
func (m *Manager) resolve(id string) (types.Artifact, bool) {
	if rec, ok := m.cfg.Store.Get(id); ok {
		return rec, true
	}
	if m.cfg.Catalog != nil {
		if rec, ok := m.cfg.Catalog.Get(id); ok {
			return rec, true
		}
	}
	return types.Artifact{}, false
}

// StartDownload begins a background transfer for the artifact with id.
func (m *Manager) StartDownload(id string) (types.DownloadStatus, error) {
	rec, ok := m.resolve(id)
	if !ok {
		return types.DownloadStatus{}, ErrArtifactNotFound(id)
	}
	sess, err := m.cfg.Downloads.Start(rec)
	if err != nil {
		return types.DownloadStatus{}, err
	}
	m.publish(Event{Name: "download.started", ArtifactID: id, Fields: map[string]any{
		"session_id": sess.ID,
	}})
	return sess.Status(), nil
}

// CancelDownload requests cancellation of the in-flight transfer for id.
func (m *Manager) CancelDownload(id string) error {
	return m.cfg.Downloads.Cancel(id)
}

// RetryDownload re-runs the most recent finished transfer for id.
func (m *Manager) RetryDownload(id string) (types.DownloadStatus, error) {
	sess, err := m.cfg.Downloads.Retry(id)
	if err != nil {
		return types.DownloadStatus{}, err
	}
	return sess.Status(), nil
}

// Downloads reports in-flight transfers and the bounded completion history.
func (m *Manager) Downloads() types.DownloadsResponse {
	active, history := m.cfg.Downloads.Snapshot()
	return types.DownloadsResponse{Active: active, History: history}
}

// SubscribeDownload attaches a progress listener to the in-flight transfer
// for id. The returned func detaches the listener.
func (m *Manager) SubscribeDownload(id string) (<-chan types.ProgressEvent, func(), error) {
	sess, ok := m.cfg.Downloads.Session(id)
	if !ok {
		return nil, nil, ErrArtifactNotFound(id)
	}
	ch, unsub := sess.Subscribe()
	return ch, unsub, nil
}

// PlanFor produces the arbiter's feasibility verdict for id without touching
// the artifact's bytes or state.
func (m *Manager) PlanFor(id string) (types.PlanResponse, error) {
	rec, ok := m.resolve(id)
	if !ok {
		return types.PlanResponse{}, ErrArtifactNotFound(id)
	}
	plan, err := m.cfg.Arbiter.Plan(rec)
	if err != nil {
		return types.PlanResponse{}, ErrActivation(id, err)
	}
	return types.PlanResponse{
		ArtifactID:     id,
		Strategy:       string(plan.Strategy),
		EstimatedBytes: plan.EstimatedBytes,
		AvailableBytes: plan.AvailableBytes,
		UsedFraction:   plan.UsedFraction,
	}, nil
}
