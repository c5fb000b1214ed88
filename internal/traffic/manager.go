package traffic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StreamSession identifies one run of one camera stream. Closing and
// reopening a stream starts a fresh session with fresh pipeline state.
type StreamSession struct {
	SessionID string     `json:"session_id"`
	StreamID  string     `json:"stream_id"`
	FrameRate float64    `json:"frame_rate"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionSink is notified when stream sessions start and end.
type SessionSink interface {
	// RecordSessionStart persists a new session.
	RecordSessionStart(session StreamSession) error
	// RecordSessionEnd marks a session finished with its final counters.
	RecordSessionEnd(session StreamSession, stats PipelineStats) error
}

// ManagerConfig configures the stream manager.
type ManagerConfig struct {
	QueueDepth int         // per-stream frame buffer; bounds producer lead
	Sessions   SessionSink // optional session store
}

// DefaultManagerConfig returns stock manager parameters.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{QueueDepth: 64}
}

// streamWorker owns one stream's pipeline. All pipeline state is confined to
// its goroutine; ingest goroutines only touch the frame channel.
type streamWorker struct {
	session  StreamSession
	pipeline *Pipeline
	frames   chan Frame
	cancel   context.CancelFunc
	done     chan struct{}

	// mu serialises senders against close: a send holds it for its duration,
	// and CloseStream flips closing under it before closing the channel.
	mu      sync.Mutex
	closing bool
	dropped int64
}

// StreamStatus is a read-only snapshot of one live stream for the API.
type StreamStatus struct {
	Session StreamSession  `json:"session"`
	Stats   PipelineStats  `json:"stats"`
	Line    *ViolationLine `json:"line,omitempty"`
}

// Manager routes frames to per-stream pipelines, creating isolated pipeline
// instances on demand. No track, line or ledger state is ever shared between
// streams.
type Manager struct {
	base   PipelineConfig
	config ManagerConfig

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	streams map[string]*streamWorker
	closed  bool
}

// NewManager creates a stream manager. base supplies the pipeline parameters
// for every stream; StreamID and FrameRate are overridden per stream.
func NewManager(ctx context.Context, base PipelineConfig, config ManagerConfig) *Manager {
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultManagerConfig().QueueDepth
	}
	return &Manager{
		base:    base,
		config:  config,
		ctx:     ctx,
		streams: make(map[string]*streamWorker),
	}
}

// worker returns the stream's worker, creating pipeline, session and goroutine
// on first sight of the stream.
func (m *Manager) worker(streamID string, frameRate float64) (*streamWorker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("stream manager is shut down")
	}
	if w, ok := m.streams[streamID]; ok {
		return w, nil
	}

	config := m.base
	config.StreamID = streamID
	if frameRate > 0 {
		config.FrameRate = frameRate
	}
	pipeline, err := NewPipeline(config)
	if err != nil {
		return nil, fmt.Errorf("failed to start pipeline for stream %s: %w", streamID, err)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	w := &streamWorker{
		session: StreamSession{
			SessionID: uuid.NewString(),
			StreamID:  streamID,
			FrameRate: config.FrameRate,
			StartedAt: time.Now(),
		},
		pipeline: pipeline,
		frames:   make(chan Frame, m.config.QueueDepth),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.streams[streamID] = w

	if !isNilInterface(m.config.Sessions) {
		if err := m.config.Sessions.RecordSessionStart(w.session); err != nil {
			Opsf("failed to record session start stream=%s: %v", streamID, err)
		}
	}
	Opsf("stream %s started session %s (fps=%.1f queue=%d)", streamID, w.session.SessionID, config.FrameRate, m.config.QueueDepth)

	m.wg.Add(1)
	go m.run(ctx, w)
	return w, nil
}

// run is the per-stream consumer loop. Cancellation lands between frames;
// pipeline state is simply discarded in that case.
func (m *Manager) run(ctx context.Context, w *streamWorker) {
	defer m.wg.Done()
	defer close(w.done)
	defer w.cancel()
	for {
		select {
		case <-ctx.Done():
			Opsf("stream %s cancelled after %d frames", w.session.StreamID, w.pipeline.Stats().FramesProcessed)
			m.endSession(w)
			return
		case frame, ok := <-w.frames:
			if !ok {
				w.pipeline.Finish()
				m.endSession(w)
				return
			}
			if err := w.pipeline.ProcessFrame(ctx, frame); err != nil {
				if ctx.Err() != nil {
					m.endSession(w)
					return
				}
				// Out-of-order or rejected frame: drop it, keep the stream.
				Opsf("stream %s dropped frame %d: %v", w.session.StreamID, frame.Index, err)
			}
		}
	}
}

func (m *Manager) endSession(w *streamWorker) {
	now := time.Now()
	w.session.EndedAt = &now
	if !isNilInterface(m.config.Sessions) {
		if err := m.config.Sessions.RecordSessionEnd(w.session, w.pipeline.Stats()); err != nil {
			Opsf("failed to record session end stream=%s: %v", w.session.StreamID, err)
		}
	}
}

// Process enqueues a frame for its stream, blocking when the stream's queue
// is full so file replay cannot outrun the pipeline. Returns once the frame
// is queued or the manager's context ends.
func (m *Manager) Process(streamID string, frameRate float64, frame Frame) error {
	w, err := m.worker(streamID, frameRate)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return fmt.Errorf("stream %s is closed", streamID)
	}
	select {
	case w.frames <- frame:
		return nil
	case <-w.done:
		return fmt.Errorf("stream %s is closed", streamID)
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

// TryProcess enqueues a frame without blocking. Live sources use it so one
// congested stream sheds its own frames instead of stalling the listener;
// a shed frame is counted and logged, never reordered.
func (m *Manager) TryProcess(streamID string, frameRate float64, frame Frame) error {
	w, err := m.worker(streamID, frameRate)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return fmt.Errorf("stream %s is closed", streamID)
	}
	select {
	case w.frames <- frame:
		return nil
	default:
		w.dropped++
		if w.dropped == 1 || w.dropped%100 == 0 {
			Opsf("stream %s queue full, shed %d frames so far", streamID, w.dropped)
		}
		return nil
	}
}

// closeWorker flips the worker to closing and closes its frame channel once
// no sender is mid-send.
func closeWorker(w *streamWorker) {
	w.mu.Lock()
	already := w.closing
	w.closing = true
	w.mu.Unlock()
	if !already {
		close(w.frames)
	}
}

// CloseStream ends one stream's session gracefully: remaining queued frames
// are processed, summaries flushed, the session closed.
func (m *Manager) CloseStream(streamID string) error {
	m.mu.Lock()
	w, ok := m.streams[streamID]
	if ok {
		delete(m.streams, streamID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown stream %s", streamID)
	}
	closeWorker(w)
	<-w.done
	return nil
}

// Status reports a snapshot of every live stream, ordered by stream id so
// the API returns stable listings.
func (m *Manager) Status() []StreamStatus {
	m.mu.Lock()
	workers := make([]*streamWorker, 0, len(m.streams))
	for _, w := range m.streams {
		workers = append(workers, w)
	}
	m.mu.Unlock()
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].session.StreamID < workers[j].session.StreamID
	})

	out := make([]StreamStatus, 0, len(workers))
	for _, w := range workers {
		status := StreamStatus{Session: w.session, Stats: w.pipeline.Stats()}
		if line, ok := w.pipeline.Line(); ok {
			status.Line = &line
		}
		out = append(out, status)
	}
	return out
}

// Shutdown closes every stream and waits for the workers to finish. Safe to
// call once the ingest sources have stopped producing.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	streams := m.streams
	m.streams = make(map[string]*streamWorker)
	m.mu.Unlock()

	for _, w := range streams {
		closeWorker(w)
	}
	m.wg.Wait()
}
