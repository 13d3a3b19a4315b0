package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"manyllmd/internal/catalog"
	"manyllmd/internal/manager"
	"manyllmd/pkg/types"
)

type mockService struct {
	artifacts   []types.Artifact
	catalog     []types.Artifact
	refreshErr  error
	searchQuery string
	status      types.StatusResponse
	ready       bool

	startErr    error
	startStatus types.DownloadStatus
	cancelErr   error
	retryErr    error
	downloads   types.DownloadsResponse

	events       chan types.ProgressEvent
	subscribeErr error

	activateErr error
	activation  *manager.Activation
	planErr     error
	plan        types.PlanResponse
	removeErr   error
}

func (m *mockService) ListArtifacts() []types.Artifact {
	return append([]types.Artifact(nil), m.artifacts...)
}

func (m *mockService) RefreshCatalog(ctx context.Context) ([]types.Artifact, error) {
	return m.catalog, m.refreshErr
}

func (m *mockService) SearchCatalog(query string, f catalog.Filters, sortBy types.SortOption) []types.Artifact {
	m.searchQuery = query
	return m.catalog
}

func (m *mockService) StartDownload(id string) (types.DownloadStatus, error) {
	if m.startErr != nil {
		return types.DownloadStatus{}, m.startErr
	}
	return m.startStatus, nil
}

func (m *mockService) CancelDownload(id string) error { return m.cancelErr }

func (m *mockService) RetryDownload(id string) (types.DownloadStatus, error) {
	if m.retryErr != nil {
		return types.DownloadStatus{}, m.retryErr
	}
	return m.startStatus, nil
}

func (m *mockService) Downloads() types.DownloadsResponse { return m.downloads }

func (m *mockService) SubscribeDownload(id string) (<-chan types.ProgressEvent, func(), error) {
	if m.subscribeErr != nil {
		return nil, nil, m.subscribeErr
	}
	return m.events, func() {}, nil
}

func (m *mockService) Activate(ctx context.Context, id string) (*manager.Activation, error) {
	if m.activateErr != nil {
		return nil, m.activateErr
	}
	return m.activation, nil
}

func (m *mockService) Deactivate() error { return nil }

func (m *mockService) PlanFor(id string) (types.PlanResponse, error) {
	if m.planErr != nil {
		return types.PlanResponse{}, m.planErr
	}
	return m.plan, nil
}

func (m *mockService) RemoveArtifact(id string) error { return m.removeErr }

func (m *mockService) Status() types.StatusResponse { return m.status }

func (m *mockService) Ready() bool { return m.ready }

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{artifacts: []types.Artifact{{ID: "a1"}, {ID: "a2"}}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ArtifactsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Artifacts) != 2 {
		t.Fatalf("artifacts len=%d", len(body.Artifacts))
	}
}

func TestModelsHandler_Filters(t *testing.T) {
	svc := &mockService{artifacts: []types.Artifact{
		{ID: "small", Name: "Small", Size: 100, Formats: []string{"gguf"}},
		{ID: "big", Name: "Big", Size: 5000, Formats: []string{"safetensors"}},
	}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models?format=gguf", nil))
	var body types.ArtifactsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Artifacts) != 1 || body.Artifacts[0].ID != "small" {
		t.Fatalf("format filter: %+v", body.Artifacts)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models?larger_than=1000", nil))
	body = types.ArtifactsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Artifacts) != 1 || body.Artifacts[0].ID != "big" {
		t.Fatalf("size filter: %+v", body.Artifacts)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models?larger_than=nope", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad larger_than: status=%d", w.Code)
	}
}

func TestCatalogHandler(t *testing.T) {
	svc := &mockService{catalog: []types.Artifact{{ID: "remote-1"}}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/catalog?q=remote&format=gguf", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if svc.searchQuery != "remote" {
		t.Fatalf("search query = %q", svc.searchQuery)
	}
	var body types.ArtifactsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Artifacts) != 1 || body.Artifacts[0].ID != "remote-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestCatalogHandler_RefreshFailure(t *testing.T) {
	svc := &mockService{refreshErr: catalog.ErrNetwork}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Kind != KindTransient {
		t.Fatalf("kind=%s", body.Kind)
	}
}

func TestCatalogHandler_SkipRefresh(t *testing.T) {
	// refresh=0 must serve the cached snapshot even when refresh would fail
	svc := &mockService{refreshErr: catalog.ErrNetwork, catalog: []types.Artifact{{ID: "cached"}}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/catalog?refresh=0", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestCatalogHandler_BadMinSize(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/catalog?refresh=0&min_size=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestStartDownloadHandler(t *testing.T) {
	svc := &mockService{startStatus: types.DownloadStatus{SessionID: "s1", ArtifactID: "a1", State: "running"}}
	r := NewMux(svc)
	w := postJSON(t, r, "/downloads", `{"artifact_id":"a1"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.DownloadStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.SessionID != "s1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStartDownloadHandler_BadRequests(t *testing.T) {
	r := NewMux(&mockService{})

	// missing content type
	req := httptest.NewRequest(http.MethodPost, "/downloads", strings.NewReader(`{"artifact_id":"a1"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("no content-type: status=%d", w.Code)
	}

	if w := postJSON(t, r, "/downloads", `{bad json`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}
	if w := postJSON(t, r, "/downloads", `{"artifact_id":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank id: status=%d", w.Code)
	}
}

func TestCancelDownloadHandler(t *testing.T) {
	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodDelete, "/downloads/a1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRetryDownloadHandler(t *testing.T) {
	svc := &mockService{startStatus: types.DownloadStatus{SessionID: "s2"}}
	r := NewMux(svc)
	req := httptest.NewRequest(http.MethodPost, "/downloads/a1/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestActivateHandler(t *testing.T) {
	svc := &mockService{activation: &manager.Activation{ArtifactID: "a1", Engine: "cpu", CommittedBytes: 42}}
	r := NewMux(svc)
	w := postJSON(t, r, "/activate", `{"artifact_id":"a1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.ActivationStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.ArtifactID != "a1" || body.Engine != "cpu" || body.CommittedBytes != 42 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestDeactivateHandler(t *testing.T) {
	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodPost, "/deactivate", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestPlanHandler(t *testing.T) {
	svc := &mockService{plan: types.PlanResponse{ArtifactID: "a1", Strategy: "optimal"}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plan/a1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.PlanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Strategy != "optimal" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{LocalCount: 3, Pressure: "normal"}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.LocalCount != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRemoveArtifactHandler(t *testing.T) {
	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodDelete, "/models/a1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	r := NewMux(&mockService{ready: false})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "starting") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
