package store

import "errors"

// Sentinel errors for store operations. Use errors.Is to match.
var (
	// ErrDuplicateArtifact indicates the id is already present and local.
	ErrDuplicateArtifact = errors.New("store: artifact already local")

	// ErrNotLocal indicates the artifact has no managed local copy.
	ErrNotLocal = errors.New("store: artifact not local")

	// ErrStorage indicates a filesystem operation failed.
	ErrStorage = errors.New("store: storage fault")
)
