package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"manyllmd/internal/arbiter"
	"manyllmd/internal/catalog"
	"manyllmd/internal/download"
	"manyllmd/internal/engine"
	"manyllmd/internal/hostprobe"
	"manyllmd/internal/store"
	"manyllmd/pkg/types"
)

// VerifyFunc decides whether an artifact's bytes at rest are usable.
type VerifyFunc func(types.Artifact) (bool, error)

// Activation represents the single successfully activated artifact. Exactly
// one may exist at a time; deactivating it is the only way to free its
// resource before a new one is created.
type Activation struct {
	ArtifactID     string
	Engine         string
	CommittedBytes int64
	ActivatedAt    time.Time

	backend engine.Engine
	session engine.Session
}

// Config encapsulates all collaborators and tunables for Manager
// construction. Store, Verify, Arbiter and Probe are required; Catalog and
// Downloads are needed only for the discovery and transfer operations.
type Config struct {
	Store           *store.Store
	Verify          VerifyFunc
	Arbiter         *arbiter.Arbiter
	Probe           hostprobe.Probe
	Catalog         *catalog.Client
	Downloads       *download.Coordinator
	Publisher       EventPublisher
	PreferredEngine string
	Logger          zerolog.Logger
}

// Manager is the activation orchestrator: it moves artifacts through
// local → verifying → activating → active and owns the single live
// Activation. All activation transitions are serialized.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	current  *Activation
	lastErr  string
	lastPlan *types.PlanResponse

	loadsTotal     uint64
	evictionsTotal uint64
	startTime      time.Time

	publisher EventPublisher
	log       zerolog.Logger
}

func New(cfg Config) *Manager {
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Manager{
		cfg:       cfg,
		publisher: pub,
		log:       cfg.Logger,
		startTime: time.Now(),
	}
}

// Current returns the live activation, nil when nothing is active.
func (m *Manager) Current() *Activation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Ready reports whether the orchestrator can serve activations.
func (m *Manager) Ready() bool { return m.cfg.Store != nil }

// ListArtifacts returns the store's current view.
func (m *Manager) ListArtifacts() []types.Artifact { return m.cfg.Store.List() }

// Status builds the aggregate status response for the API.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resp := types.StatusResponse{
		Pressure:       string(m.cfg.Arbiter.Pressure()),
		LastError:      m.lastErr,
		LastPlan:       m.lastPlan,
		LoadsTotal:     m.loadsTotal,
		EvictionsTotal: m.evictionsTotal,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, a := range m.cfg.Store.List() {
		if a.State == types.StateLocal || a.State == types.StateActive {
			resp.LocalCount++
		}
	}
	if m.cfg.Downloads != nil {
		resp.DownloadsActive = m.cfg.Downloads.ActiveCount()
	}
	if m.current != nil {
		resp.Activation = &types.ActivationStatus{
			ArtifactID:     m.current.ArtifactID,
			Engine:         m.current.Engine,
			CommittedBytes: m.current.CommittedBytes,
			ActivatedUnix:  m.current.ActivatedAt.Unix(),
		}
	}
	return resp
}
