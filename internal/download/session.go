package download

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"manyllmd/pkg/types"
)

// SessionState is the lifecycle of one transfer.
type SessionState string

const (
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
	SessionCancelled SessionState = "cancelled"
)

// Session tracks a single in-flight (or finished) transfer. bytesTransferred
// only ever grows; progress is safe to poll from any goroutine, and push
// consumers subscribe to a per-session channel that closes exactly once on
// terminal state.
type Session struct {
	ID         string
	ArtifactID string

	rec       types.Artifact // original record, kept for Retry
	startedAt time.Time
	cancel    context.CancelFunc

	bytes      atomic.Int64
	totalBytes atomic.Int64
	retries    atomic.Int32

	mu      sync.Mutex
	state   SessionState
	errMsg  string
	subs    map[int]chan types.ProgressEvent
	nextSub int
	closed  bool

	// rolling throughput sample
	sampleTime  time.Time
	sampleBytes int64
	throughput  atomic.Int64
}

func newSession(rec types.Artifact, cancel context.CancelFunc) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		ArtifactID: rec.ID,
		rec:        rec,
		startedAt:  time.Now(),
		cancel:     cancel,
		state:      SessionRunning,
		subs:       make(map[int]chan types.ProgressEvent),
	}
	s.totalBytes.Store(rec.Size)
	s.sampleTime = s.startedAt
	return s
}

// addBytes advances the monotonic progress counter and refreshes the rolling
// throughput sample roughly once per second.
func (s *Session) addBytes(n int64) {
	total := s.bytes.Add(n)
	s.mu.Lock()
	if dt := time.Since(s.sampleTime); dt >= time.Second {
		s.throughput.Store(int64(float64(total-s.sampleBytes) / dt.Seconds()))
		s.sampleTime = time.Now()
		s.sampleBytes = total
	}
	s.mu.Unlock()
}

// Bytes returns bytes transferred so far.
func (s *Session) Bytes() int64 { return s.bytes.Load() }

// Retries returns the number of transient retries performed.
func (s *Session) Retries() int { return int(s.retries.Load()) }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a progress consumer. The returned cancel func
// unregisters it; the channel is closed when the session reaches a terminal
// state. Slow consumers miss events rather than stalling the transfer.
func (s *Session) Subscribe() (<-chan types.ProgressEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan types.ProgressEvent, 8)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// publish fans the current progress out to subscribers without blocking.
func (s *Session) publish() {
	ev := s.progressEvent()
	s.mu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

// finish transitions to a terminal state and closes all subscriber channels.
// Safe to call once; later calls are no-ops.
func (s *Session) finish(state SessionState, errMsg string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.errMsg = errMsg
	s.closed = true
	subs := s.subs
	s.subs = map[int]chan types.ProgressEvent{}
	s.mu.Unlock()

	// last event carries the terminal state
	ev := s.progressEvent()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
	}
}

func (s *Session) progressEvent() types.ProgressEvent {
	return types.ProgressEvent{
		SessionID:        s.ID,
		ArtifactID:       s.ArtifactID,
		BytesTransferred: s.Bytes(),
		TotalBytes:       s.totalBytes.Load(),
		ThroughputBPS:    s.throughput.Load(),
		State:            string(s.State()),
	}
}

// Status snapshots the session for the API.
func (s *Session) Status() types.DownloadStatus {
	s.mu.Lock()
	state, errMsg := s.state, s.errMsg
	s.mu.Unlock()

	bytes := s.Bytes()
	total := s.totalBytes.Load()
	tput := s.throughput.Load()
	eta := int64(-1)
	if state == SessionRunning && tput > 0 && total > bytes {
		eta = (total - bytes) / tput
	}
	return types.DownloadStatus{
		SessionID:        s.ID,
		ArtifactID:       s.ArtifactID,
		BytesTransferred: bytes,
		TotalBytes:       total,
		ThroughputBPS:    tput,
		ETASeconds:       eta,
		State:            string(state),
		Retries:          s.Retries(),
		Error:            errMsg,
		StartedUnix:      s.startedAt.Unix(),
	}
}
