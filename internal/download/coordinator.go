package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"manyllmd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultConcurrency  = 2
	defaultMaxRetries   = 3
	defaultBackoffBase  = 200 * time.Millisecond
	defaultChunkSize    = 128 * 1024
	defaultHistoryLimit = 64
)

// ArtifactStore is the slice of the local store the coordinator needs:
// locality checks, final placement, state bookkeeping, and a scratch
// directory for partial files.
type ArtifactStore interface {
	Get(id string) (types.Artifact, bool)
	Add(rec types.Artifact, sourceFile string) (types.Artifact, error)
	Update(rec types.Artifact) error
	PartialDir() string
}

// VerifyFunc decides whether completed bytes are a usable artifact.
type VerifyFunc func(types.Artifact) (bool, error)

// HTTPClient abstracts the transport for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes the coordinator.
type Config struct {
	Concurrency  int
	MaxRetries   int
	BackoffBase  time.Duration
	ChunkSize    int64
	HistoryLimit int
}

// Coordinator moves bytes from remote locations into the local store under
// explicit concurrency, resumability and cancellation contracts. One session
// per artifact id; starting a second is rejected, never queued silently.
type Coordinator struct {
	cfg    Config
	http   HTTPClient
	store  ArtifactStore
	verify VerifyFunc
	log    zerolog.Logger

	mu      sync.Mutex
	active  map[string]*Session // keyed by artifact id
	history []*Session          // append-only, completion order, bounded
}

func NewCoordinator(cfg Config, client HTTPClient, store ArtifactStore, verify VerifyFunc, log zerolog.Logger) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Coordinator{
		cfg:    cfg,
		http:   client,
		store:  store,
		verify: verify,
		log:    log,
		active: make(map[string]*Session),
	}
}

// Start begins a background transfer for rec. All preconditions are checked
// synchronously: missing URL, already local, already downloading, and the
// concurrency ceiling each fail with a named error.
func (c *Coordinator) Start(rec types.Artifact) (*Session, error) {
	if rec.RemoteURL == "" {
		return nil, ErrMissingURL(rec.ID)
	}
	if cur, ok := c.store.Get(rec.ID); ok && cur.IsLocal() {
		return nil, ErrAlreadyLocal(rec.ID)
	}

	c.mu.Lock()
	if _, ok := c.active[rec.ID]; ok {
		c.mu.Unlock()
		return nil, ErrAlreadyDownloading(rec.ID)
	}
	if len(c.active) >= c.cfg.Concurrency {
		c.mu.Unlock()
		return nil, ErrConcurrencyLimit(c.cfg.Concurrency)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := newSession(rec, cancel)
	c.active[rec.ID] = sess
	c.mu.Unlock()

	rec.State = types.StateDownloading
	if err := c.store.Update(rec); err != nil {
		c.log.Warn().Str("artifact", rec.ID).Err(err).Msg("download: state update failed")
	}
	c.log.Info().Str("artifact", rec.ID).Str("session", sess.ID).Str("url", rec.RemoteURL).Msg("download started")

	go c.run(ctx, sess, rec)
	return sess, nil
}

// Cancel requests cooperative cancellation of the in-flight transfer for id.
// The transfer stops at the next chunk boundary and partial bytes are
// discarded.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	sess, ok := c.active[id]
	c.mu.Unlock()
	if !ok {
		return ErrNoActiveDownload(id)
	}
	sess.cancel()
	return nil
}

// Retry re-runs Start for a finished session's artifact using the original
// record.
func (c *Coordinator) Retry(id string) (*Session, error) {
	c.mu.Lock()
	var rec *types.Artifact
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ArtifactID == id {
			r := c.history[i].rec
			rec = &r
			break
		}
	}
	c.mu.Unlock()
	if rec == nil {
		return nil, ErrNoActiveDownload(id)
	}
	return c.Start(*rec)
}

// Session returns the in-flight session for an artifact id, if any.
func (c *Coordinator) Session(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.active[id]
	return s, ok
}

// Snapshot returns active sessions and the bounded completion-ordered
// history.
func (c *Coordinator) Snapshot() (active, history []types.DownloadStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.active {
		active = append(active, s.Status())
	}
	for _, s := range c.history {
		history = append(history, s.Status())
	}
	return active, history
}

// ActiveCount reports the number of in-flight transfers.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// run drives one transfer to a terminal state.
func (c *Coordinator) run(ctx context.Context, sess *Session, rec types.Artifact) {
	partial := filepath.Join(c.store.PartialDir(), sess.ID+".part")
	err := c.transfer(ctx, sess, rec, partial)

	switch {
	case err == nil:
		verifyRec := rec
		verifyRec.LocalPath = partial
		ok, verr := c.verify(verifyRec)
		if verr != nil {
			err = ErrTransferFailed(rec.ID, verr)
		} else if !ok {
			err = ErrCorruptDownload(rec.ID)
		} else if _, aerr := c.store.Add(rec, partial); aerr != nil {
			err = ErrTransferFailed(rec.ID, aerr)
		}
	case ctx.Err() != nil:
		err = ctx.Err()
	}

	if err != nil {
		// Corrupt or partial bytes never survive as a half-valid artifact.
		os.Remove(partial)
		rec.State = types.StateRemote
		rec.LocalPath = ""
		if uerr := c.store.Update(rec); uerr != nil {
			c.log.Warn().Str("artifact", rec.ID).Err(uerr).Msg("download: demote failed")
		}
	}

	c.finalize(sess, err)
}

// finalize moves the session from active to history and records the result.
func (c *Coordinator) finalize(sess *Session, err error) {
	state := SessionCompleted
	msg := ""
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		state = SessionCancelled
	default:
		state = SessionFailed
		msg = err.Error()
	}

	sess.finish(state, msg)
	transfersTotal.WithLabelValues(string(state)).Inc()

	c.mu.Lock()
	delete(c.active, sess.ArtifactID)
	c.history = append(c.history, sess)
	if len(c.history) > c.cfg.HistoryLimit {
		c.history = c.history[len(c.history)-c.cfg.HistoryLimit:]
	}
	c.mu.Unlock()

	evt := c.log.Info().Str("artifact", sess.ArtifactID).Str("session", sess.ID).
		Int64("bytes", sess.Bytes()).Int("retries", sess.Retries())
	if msg != "" {
		evt = evt.Str("error", msg)
	}
	evt.Msgf("download %s", state)
}

// transfer copies remote bytes into the partial file, resuming the remaining
// byte range after transient failures with bounded exponential backoff.
func (c *Coordinator) transfer(ctx context.Context, sess *Session, rec types.Artifact, partial string) error {
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		return ErrTransferFailed(rec.ID, err)
	}
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrTransferFailed(rec.ID, err)
	}
	defer f.Close()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			sess.retries.Add(1)
			transferRetriesTotal.Inc()
			backoff := c.cfg.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = c.attempt(ctx, sess, rec, f)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Str("artifact", rec.ID).Int("attempt", attempt+1).Err(lastErr).Msg("download attempt failed")
	}
	return ErrTransferFailed(rec.ID, lastErr)
}

// attempt performs one ranged request continuing at the current offset and
// streams chunks into f. Cancellation is honored at chunk boundaries.
func (c *Coordinator) attempt(ctx context.Context, sess *Session, rec types.Artifact, f *os.File) error {
	offset := sess.Bytes()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.RemoteURL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.Reader(resp.Body)
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		if resp.ContentLength > 0 {
			sess.totalBytes.Store(offset + resp.ContentLength)
		}
	case resp.StatusCode == http.StatusOK:
		if resp.ContentLength > 0 {
			sess.totalBytes.Store(resp.ContentLength)
		}
		if offset > 0 {
			// Server ignored the range header; skip what we already have so
			// the file stays consistent and progress stays monotonic.
			if _, err := io.CopyN(io.Discard, body, offset); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, c.cfg.ChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			sess.addBytes(int64(n))
			transferBytesTotal.Add(float64(n))
			sess.publish()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
