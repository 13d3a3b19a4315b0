package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"manyllmd/internal/catalog"
	"manyllmd/internal/download"
	"manyllmd/internal/engine"
	"manyllmd/internal/manager"
	"manyllmd/internal/store"
	"manyllmd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// Fault kinds reported in error payloads. Precondition faults are the
// caller's to fix, transient ones heal on retry, integrity means the bytes
// are bad, resource means the host cannot afford the operation.
const (
	KindPrecondition = "precondition"
	KindTransient    = "transient"
	KindIntegrity    = "integrity"
	KindResource     = "resource"
	KindFatal        = "fatal"
)

// classifyError maps service errors onto an HTTP status and fault kind.
func classifyError(err error) (status int, kind string) {
	switch {
	case manager.IsArtifactNotFound(err):
		return http.StatusNotFound, KindPrecondition
	case manager.IsWrongState(err):
		return http.StatusConflict, KindPrecondition
	case manager.IsIntegrity(err):
		return http.StatusUnprocessableEntity, KindIntegrity
	case manager.IsAllocation(err):
		return http.StatusInsufficientStorage, KindResource
	case engine.IsUnavailable(err):
		return http.StatusServiceUnavailable, KindTransient
	case download.IsMissingURL(err):
		return http.StatusBadRequest, KindPrecondition
	case download.IsAlreadyLocal(err), download.IsAlreadyDownloading(err):
		return http.StatusConflict, KindPrecondition
	case download.IsConcurrencyLimit(err):
		return http.StatusTooManyRequests, KindResource
	case download.IsNoActiveDownload(err):
		return http.StatusNotFound, KindPrecondition
	case download.IsCorruptDownload(err):
		return http.StatusUnprocessableEntity, KindIntegrity
	case download.IsTransferFailed(err):
		return http.StatusServiceUnavailable, KindTransient
	case errors.Is(err, catalog.ErrNetwork):
		return http.StatusServiceUnavailable, KindTransient
	case errors.Is(err, catalog.ErrCatalog):
		return http.StatusBadGateway, KindFatal
	case errors.Is(err, store.ErrNotLocal):
		return http.StatusConflict, KindPrecondition
	case errors.Is(err, store.ErrDuplicateArtifact):
		return http.StatusConflict, KindPrecondition
	case errors.Is(err, store.ErrStorage):
		return http.StatusInternalServerError, KindFatal
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), KindFatal
	}
	return http.StatusInternalServerError, KindFatal
}

// writeServiceError classifies err and writes the JSON payload.
func writeServiceError(w http.ResponseWriter, err error) {
	status, kind := classifyError(err)
	writeJSONError(w, status, kind, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Kind: kind, Code: status})
}
