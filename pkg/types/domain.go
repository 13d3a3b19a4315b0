package types

import "time"

// LifecycleState tracks where an artifact is in its local lifecycle.
type LifecycleState string

const (
	StateRemote      LifecycleState = "remote"
	StateDownloading LifecycleState = "downloading"
	StateLocal       LifecycleState = "local"
	StateVerifying   LifecycleState = "verifying"
	StateActivating  LifecycleState = "activating"
	StateActive      LifecycleState = "active"
	StateFailed      LifecycleState = "failed"
)

// CompatClass classifies how well an artifact fits the host, computed from
// host capability probes and never declared by the artifact itself.
type CompatClass string

const (
	CompatFull         CompatClass = "full"
	CompatPartial      CompatClass = "partial"
	CompatIncompatible CompatClass = "incompatible"
	CompatUnknown      CompatClass = "unknown"
)

// Artifact is the record for one model weight file plus its metadata.
type Artifact struct {
	// Stable identifier, unchanged across sessions.
	// example: tinyllama-1.1b-q4
	ID string `json:"id" example:"tinyllama-1.1b-q4"`
	// Human-friendly name.
	// example: TinyLlama 1.1B (Q4)
	Name string `json:"name" example:"TinyLlama 1.1B (Q4)"`
	// Publishing author or organization.
	// example: TinyLlama
	Author string `json:"author,omitempty" example:"TinyLlama"`
	// Declared parameter count.
	// example: 1100000000
	ParamCount int64 `json:"param_count,omitempty" example:"1100000000"`
	// Declared size in bytes. Zero means unknown.
	// example: 668788096
	Size int64 `json:"size,omitempty" example:"668788096"`
	// Runtime formats this artifact ships in (e.g. gguf, safetensors).
	Formats []string `json:"formats,omitempty"`
	// Expected SHA-256 of the file, lowercase hex. Empty means undeclared.
	Checksum string `json:"checksum,omitempty"`
	// Remote download URL, if discoverable.
	RemoteURL string `json:"remote_url,omitempty"`
	// Absolute path of the managed local copy, if present.
	LocalPath string `json:"local_path,omitempty"`
	// Current lifecycle state.
	// example: local
	State LifecycleState `json:"state" example:"local"`
	// Host compatibility classification.
	// example: full
	Compat CompatClass `json:"compat,omitempty" example:"full"`
	// Time the local copy entered managed storage, zero if never local.
	AddedAt time.Time `json:"added_at,omitempty"`
	// Last successful integrity verification, zero if never verified.
	LastVerifiedAt time.Time `json:"last_verified_at,omitempty"`
	// Free-form tags for search.
	Tags []string `json:"tags,omitempty"`
}

// IsLocal reports whether the artifact has a usable managed local copy.
func (a Artifact) IsLocal() bool {
	return a.State == StateLocal && a.LocalPath != ""
}

// SortOption selects the ordering for catalog search results.
type SortOption string

const (
	SortByName   SortOption = "name"
	SortByAuthor SortOption = "author"
	SortBySize   SortOption = "size"
	SortByParams SortOption = "params"
)
