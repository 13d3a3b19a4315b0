package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"manyllmd/internal/catalog"
	"manyllmd/internal/download"
	"manyllmd/internal/manager"
	"manyllmd/internal/store"
	"manyllmd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListArtifacts() []types.Artifact
	RefreshCatalog(ctx context.Context) ([]types.Artifact, error)
	SearchCatalog(query string, f catalog.Filters, sortBy types.SortOption) []types.Artifact
	StartDownload(id string) (types.DownloadStatus, error)
	CancelDownload(id string) error
	RetryDownload(id string) (types.DownloadStatus, error)
	Downloads() types.DownloadsResponse
	SubscribeDownload(id string) (<-chan types.ProgressEvent, func(), error)
	Activate(ctx context.Context, id string) (*manager.Activation, error)
	Deactivate() error
	PlanFor(id string) (types.PlanResponse, error)
	RemoveArtifact(id string) error
	Status() types.StatusResponse
	Ready() bool
}

// artifactRequest is the JSON body for operations addressing one artifact.
type artifactRequest struct {
	ArtifactID string `json:"artifact_id"`
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		methods := corsAllowedMethods
		if len(methods) == 0 {
			methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		}
		headers := corsAllowedHeaders
		if len(headers) == 0 {
			headers = []string{"Accept", "Content-Type", "X-Log-Level"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
		}))
	}

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		out := svc.ListArtifacts()
		q := r.URL.Query()
		if v := q.Get("format"); v != "" {
			out = store.ByFormat(out, v)
		}
		if v := q.Get("larger_than"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, KindPrecondition, "larger_than must be a non-negative integer")
				return
			}
			out = store.LargerThan(out, n)
		}
		if v := q.Get("added_after"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, KindPrecondition, "added_after must be RFC 3339")
				return
			}
			out = store.AddedAfter(out, ts)
		}
		if v := q.Get("q"); v != "" {
			out = store.Search(out, v)
		}
		writeJSON(w, types.ArtifactsResponse{Artifacts: out})
	})

	r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RemoveArtifact(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/catalog", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("refresh") != "0" {
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			if _, err := svc.RefreshCatalog(ctx); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		var f catalog.Filters
		f.Format = q.Get("format")
		if v := q.Get("min_size"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, KindPrecondition, "min_size must be a non-negative integer")
				return
			}
			f.MinSize = n
		}
		out := svc.SearchCatalog(q.Get("q"), f, types.SortOption(q.Get("sort")))
		writeJSON(w, types.ArtifactsResponse{Artifacts: out})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/plan/{id}", func(w http.ResponseWriter, r *http.Request) {
		plan, err := svc.PlanFor(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, plan)
	})

	r.Post("/downloads", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeArtifactRequest(w, r)
		if !ok {
			return
		}
		status, err := svc.StartDownload(req.ArtifactID)
		if err != nil {
			if download.IsConcurrencyLimit(err) {
				IncrementBackpressure("download_concurrency")
			}
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(status)
	})

	r.Get("/downloads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Downloads())
	})

	r.Delete("/downloads/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CancelDownload(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/downloads/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.RetryDownload(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(status)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("artifact")
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, KindPrecondition, "artifact query parameter is required")
			return
		}
		events, unsubscribe, err := svc.SubscribeDownload(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer unsubscribe()

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		writer := io.Writer(w)
		if requestLogLevel(r) >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		enc := json.NewEncoder(writer)

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := enc.Encode(ev); err != nil {
					return
				}
				if flush != nil {
					flush()
				}
			case <-ctx.Done():
				return
			}
		}
	})

	r.Post("/activate", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeArtifactRequest(w, r)
		if !ok {
			return
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo {
			logEvent(r, "activate start", func(e *logLine) { e.artifact = req.ArtifactID })
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		act, err := svc.Activate(ctx, req.ArtifactID)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status, kind := classifyError(err)
			writeJSONError(w, status, kind, err.Error())
			if lvl >= LevelInfo {
				logEvent(r, "activate end", func(e *logLine) {
					e.artifact = req.ArtifactID
					e.status = status
					e.dur = time.Since(start)
					e.err = err
				})
			}
			return
		}
		writeJSON(w, types.ActivationStatus{
			ArtifactID:     act.ArtifactID,
			Engine:         act.Engine,
			CommittedBytes: act.CommittedBytes,
			ActivatedUnix:  act.ActivatedAt.Unix(),
		})
		if lvl >= LevelInfo {
			logEvent(r, "activate end", func(e *logLine) {
				e.artifact = req.ArtifactID
				e.status = http.StatusOK
				e.dur = time.Since(start)
			})
		}
	})

	r.Post("/deactivate", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Deactivate(); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeArtifactRequest enforces content type and body limits, then decodes
// the artifact id payload.
func decodeArtifactRequest(w http.ResponseWriter, r *http.Request) (artifactRequest, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, KindPrecondition, "Content-Type must be application/json")
		return artifactRequest{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req artifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, KindPrecondition, "invalid JSON body")
		return artifactRequest{}, false
	}
	if strings.TrimSpace(req.ArtifactID) == "" {
		writeJSONError(w, http.StatusBadRequest, KindPrecondition, "artifact_id is required")
		return artifactRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, KindFatal, "failed to encode response")
	}
}

// logLine collects the fields of one request log event.
type logLine struct {
	artifact string
	status   int
	dur      time.Duration
	err      error
}

// logEvent emits a request-scoped log line through the structured logger
// when installed, falling back to the standard logger.
func logEvent(r *http.Request, msg string, fill func(*logLine)) {
	var line logLine
	if fill != nil {
		fill(&line)
	}
	if zlog != nil {
		e := zlog.Info().Str("path", r.URL.Path)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			e = e.Str("request_id", rid)
		}
		if line.artifact != "" {
			e = e.Str("artifact", line.artifact)
		}
		if line.status != 0 {
			e = e.Int("status", line.status)
		}
		if line.dur != 0 {
			e = e.Dur("dur", line.dur)
		}
		if line.err != nil {
			e = e.Err(line.err)
		}
		e.Msg(msg)
		return
	}
	log.Printf("%s path=%s artifact=%s status=%d dur=%s err=%v",
		msg, r.URL.Path, line.artifact, line.status, line.dur, line.err)
}
