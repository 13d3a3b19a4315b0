package types

// ArtifactsResponse wraps the list of artifacts returned by GET /models.
type ArtifactsResponse struct {
	// List of locally known artifacts.
	Artifacts []Artifact `json:"artifacts"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: artifact not found: tinyllama-1.1b-q4
	Error string `json:"error" example:"artifact not found: tinyllama-1.1b-q4"`
	// Structured fault kind: precondition, transient, integrity, resource, fatal.
	// example: precondition
	Kind string `json:"kind,omitempty" example:"precondition"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// DownloadStatus summarizes one transfer session for GET /downloads.
type DownloadStatus struct {
	// Session identifier.
	// example: 5f0c2e6e-0dd5-4d6a-9a3e-6a9b3f1d2c4b
	SessionID string `json:"session_id" example:"5f0c2e6e-0dd5-4d6a-9a3e-6a9b3f1d2c4b"`
	// ID of the artifact being transferred.
	// example: tinyllama-1.1b-q4
	ArtifactID string `json:"artifact_id" example:"tinyllama-1.1b-q4"`
	// Bytes received so far. Monotonically non-decreasing per session.
	// example: 104857600
	BytesTransferred int64 `json:"bytes_transferred" example:"104857600"`
	// Total bytes expected, zero if unknown.
	// example: 668788096
	TotalBytes int64 `json:"total_bytes" example:"668788096"`
	// Rolling throughput estimate in bytes per second.
	// example: 52428800
	ThroughputBPS int64 `json:"throughput_bps" example:"52428800"`
	// Estimated seconds to completion, -1 when unknown.
	// example: 11
	ETASeconds int64 `json:"eta_seconds" example:"11"`
	// Session state: running, completed, failed, cancelled.
	// example: running
	State string `json:"state" example:"running"`
	// Number of transient retries performed so far.
	// example: 1
	Retries int `json:"retries" example:"1"`
	// Failure cause when state is failed.
	Error string `json:"error,omitempty"`
	// Session start time in unix seconds.
	// example: 1700000000
	StartedUnix int64 `json:"started_unix" example:"1700000000"`
}

// DownloadsResponse is returned by GET /downloads.
type DownloadsResponse struct {
	// Transfers currently in flight.
	Active []DownloadStatus `json:"active"`
	// Bounded history of finished transfers, in completion order.
	History []DownloadStatus `json:"history"`
}

// PlanResponse is the Resource Arbiter's feasibility verdict for one artifact.
type PlanResponse struct {
	// ID of the artifact planned for.
	// example: tinyllama-1.1b-q4
	ArtifactID string `json:"artifact_id" example:"tinyllama-1.1b-q4"`
	// Allocation strategy: optimal, conservative, aggressive, impossible.
	// example: optimal
	Strategy string `json:"strategy" example:"optimal"`
	// Estimated bytes required to activate.
	// example: 802545715
	EstimatedBytes int64 `json:"estimated_bytes" example:"802545715"`
	// Available memory bytes observed at decision time.
	// example: 17179869184
	AvailableBytes int64 `json:"available_bytes" example:"17179869184"`
	// Fraction of available memory the activation would consume.
	// example: 0.047
	UsedFraction float64 `json:"used_fraction" example:"0.047"`
}

// ActivationStatus describes the single active artifact, if any.
type ActivationStatus struct {
	// ID of the active artifact.
	// example: tinyllama-1.1b-q4
	ArtifactID string `json:"artifact_id" example:"tinyllama-1.1b-q4"`
	// Engine backend serving the activation.
	// example: llama
	Engine string `json:"engine" example:"llama"`
	// Memory committed at load time, in bytes.
	// example: 802545715
	CommittedBytes int64 `json:"committed_bytes" example:"802545715"`
	// Activation time in unix seconds.
	// example: 1700000000
	ActivatedUnix int64 `json:"activated_unix" example:"1700000000"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Number of artifacts currently local.
	// example: 3
	LocalCount int `json:"local_count" example:"3"`
	// Active downloads count.
	// example: 1
	DownloadsActive int `json:"downloads_active" example:"1"`
	// The single current activation, absent when nothing is active.
	Activation *ActivationStatus `json:"activation,omitempty"`
	// Current memory pressure level: normal, elevated, critical.
	// example: normal
	Pressure string `json:"pressure" example:"normal"`
	// Last error observed by the orchestrator, if any.
	LastError string `json:"last_error,omitempty"`
	// Allocation plan computed for the most recent activation attempt.
	LastPlan *PlanResponse `json:"last_plan,omitempty"`
	// Total number of activations performed since start.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of deactivations performed to free memory for a new load.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ProgressEvent is one line of the NDJSON event feed on GET /events.
type ProgressEvent struct {
	// Session identifier the event belongs to.
	SessionID string `json:"session_id"`
	// Artifact the session is transferring.
	ArtifactID string `json:"artifact_id"`
	// Bytes received so far.
	BytesTransferred int64 `json:"bytes_transferred"`
	// Total bytes expected, zero if unknown.
	TotalBytes int64 `json:"total_bytes"`
	// Rolling throughput estimate in bytes per second.
	ThroughputBPS int64 `json:"throughput_bps"`
	// Session state at event time.
	State string `json:"state"`
}
