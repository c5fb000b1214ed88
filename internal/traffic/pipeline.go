package traffic

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"
)

// EventSink receives finalized violation events as the ledger emits them.
// Implementations are adapters (sqlite store, live publisher); they must not
// retain the event's Crossing pointer beyond the call.
type EventSink interface {
	// RecordViolation persists or forwards one emitted event.
	RecordViolation(event ViolationEvent) error
}

// TrackSummary describes a finished track at purge or stream end.
type TrackSummary struct {
	StreamID     string       `json:"stream_id"`
	TrackID      string       `json:"track_id"`
	Class        Class        `json:"class"`
	FirstFrame   int64        `json:"first_frame"`
	LastFrame    int64        `json:"last_frame"`
	Observations int          `json:"observations"`
	SpeedsKMH    []float64    `json:"speeds_kmh,omitempty"`
	PlateText    string       `json:"plate_text,omitempty"`
	PlateOutcome PlateOutcome `json:"plate_outcome,omitempty"`
}

// TrackSink receives summaries of tracks the tracker has finished with.
type TrackSink interface {
	// RecordTrack persists one finished track summary.
	RecordTrack(summary TrackSummary) error
}

// isNilInterface checks if an interface value is nil or contains a nil
// pointer. This handles the Go interface nil pitfall where interface{} != nil
// but the underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// PipelineConfig holds the stream identity, stage parameters and sinks for
// one pipeline instance.
type PipelineConfig struct {
	StreamID         string
	FrameRate        float64 // nominal fps, used for timestamps and speed
	EvidenceMarginPx float64 // expansion applied to event evidence boxes

	Intake  IntakeConfig
	Tracker TrackerConfig
	Line    LineEngineConfig
	Speed   SpeedConfig
	Helmet  HelmetConfig
	Plate   PlateConfig

	OCR OCRFunc // optional; nil resolves every bound plate as unreadable

	Persistence EventSink // optional durable store
	Publish     EventSink // optional live feed
	Tracks      TrackSink // optional track summary store
}

// DefaultPipelineConfig returns a complete stock configuration for a stream.
func DefaultPipelineConfig(streamID string) PipelineConfig {
	return PipelineConfig{
		StreamID:         streamID,
		FrameRate:        25,
		EvidenceMarginPx: 20,
		Intake:           DefaultIntakeConfig(),
		Tracker:          DefaultTrackerConfig(),
		Line:             DefaultLineEngineConfig(),
		Speed:            DefaultSpeedConfig(),
		Helmet:           DefaultHelmetConfig(),
		Plate:            DefaultPlateConfig(),
	}
}

// PipelineStats are the running counters for one stream, safe to read from
// other goroutines.
type PipelineStats struct {
	FramesProcessed     int64 `json:"frames_processed"`
	DetectionsDiscarded int64 `json:"detections_discarded"`
	TracksStarted       int64 `json:"tracks_started"`
	TracksPurged        int64 `json:"tracks_purged"`
	EventsEmitted       int64 `json:"events_emitted"`
	EventsSuppressed    int64 `json:"events_suppressed"`
	SinkErrors          int64 `json:"sink_errors"`
}

// Pipeline is the per-stream orchestrator: intake, association, the four rule
// evaluators and the ledger, run strictly frame by frame. All mutable state
// is confined to the caller's goroutine; nothing is shared between streams.
type Pipeline struct {
	Config PipelineConfig

	intake  *Intake
	tracker *Tracker
	line    *LineEngine
	speed   *SpeedEstimator
	helmet  *HelmetRule
	plate   *PlateResolver
	ledger  *Ledger

	startedAt time.Time
	lastFrame int64
	started   bool

	framesProcessed     atomic.Int64
	detectionsDiscarded atomic.Int64
	tracksStarted       atomic.Int64
	tracksPurged        atomic.Int64
	eventsEmitted       atomic.Int64
	sinkErrors          atomic.Int64
}

// NewPipeline builds a pipeline for one stream. The tracker's frame interval
// and the estimator's frame rate follow Config.FrameRate so the stages agree
// on timing.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.StreamID == "" {
		return nil, fmt.Errorf("pipeline requires a stream id")
	}
	if config.FrameRate <= 0 {
		return nil, fmt.Errorf("pipeline requires a positive frame rate, got %v", config.FrameRate)
	}
	config.Tracker.FrameIntervalSec = 1 / config.FrameRate
	config.Speed.FrameRate = config.FrameRate

	plate, err := NewPlateResolver(config.Plate, config.OCR)
	if err != nil {
		return nil, fmt.Errorf("failed to build plate resolver: %w", err)
	}

	return &Pipeline{
		Config:    config,
		intake:    NewIntake(config.Intake),
		tracker:   NewTracker(config.Tracker),
		line:      NewLineEngine(config.Line),
		speed:     NewSpeedEstimator(config.Speed),
		helmet:    NewHelmetRule(config.Helmet),
		plate:     plate,
		ledger:    NewLedger(),
		startedAt: time.Now(),
	}, nil
}

// ProcessFrame runs one frame through every stage. Frames must arrive in
// strictly increasing index order; a stale or duplicate index is rejected so
// ordered-history reasoning stays sound. Cancellation is honoured between
// frames, never mid-frame.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.started && frame.Index <= p.lastFrame {
		return fmt.Errorf("out-of-order frame %d after %d on stream %s", frame.Index, p.lastFrame, p.Config.StreamID)
	}
	p.started = true
	p.lastFrame = frame.Index

	obs := p.intake.Normalize(frame)
	p.detectionsDiscarded.Add(int64(obs.Discarded))

	// Associate vehicles and persons; everything else stays frame-local.
	trackable := make([]Detection, 0, len(obs.Vehicles)+len(obs.Persons))
	trackable = append(trackable, obs.Vehicles...)
	trackable = append(trackable, obs.Persons...)

	before := p.tracker.NextTrackID
	purged := p.tracker.Update(frame.Index, trackable)
	p.tracksStarted.Add(p.tracker.NextTrackID - before)

	p.line.ObserveFrame(frame.Index, obs, frame.Light, p.tracker.GetActiveTracks())

	// Evaluate rules per track in creation order, rules in a fixed sequence,
	// so the emitted order within a frame is deterministic.
	for _, track := range p.tracker.GetAllTracks() {
		if event := p.line.Evaluate(track, frame.Index); event != nil {
			p.emit(frame, *event)
		}
		if event := p.speed.Evaluate(track, frame.Index); event != nil {
			p.emit(frame, *event)
		}
		if event := p.helmet.Evaluate(track, frame.Index, obs.Persons, obs.Helmets); event != nil {
			p.emit(frame, *event)
		}
		if event := p.plate.Evaluate(ctx, track, frame.Index, obs.Plates); event != nil {
			p.emit(frame, *event)
		}
	}

	for _, track := range purged {
		p.finishTrack(track)
	}

	p.framesProcessed.Add(1)
	Tracef("stream=%s frame=%d detections=%d discarded=%d tracks=%d events=%d",
		p.Config.StreamID, frame.Index, len(frame.Detections), obs.Discarded,
		p.tracker.GetTrackCount(), p.ledger.Count())
	return nil
}

// emit stamps stream context onto an event candidate and forwards it through
// the ledger to the sinks. Sink failures are logged and never fail the frame.
func (p *Pipeline) emit(frame Frame, event ViolationEvent) {
	event.StreamID = p.Config.StreamID
	event.Timestamp = p.frameTime(frame)
	event.EvidenceBox = event.EvidenceBox.Expand(p.Config.EvidenceMarginPx)

	if !p.ledger.Admit(event) {
		return
	}
	p.eventsEmitted.Add(1)
	Diagf("violation stream=%s track=%s kind=%s frame=%d", event.StreamID, event.TrackID, event.Kind, event.FrameIndex)

	if !isNilInterface(p.Config.Persistence) {
		if err := p.Config.Persistence.RecordViolation(event); err != nil {
			p.sinkErrors.Add(1)
			Opsf("failed to persist violation stream=%s track=%s kind=%s: %v", event.StreamID, event.TrackID, event.Kind, err)
		}
	}
	if !isNilInterface(p.Config.Publish) {
		if err := p.Config.Publish.RecordViolation(event); err != nil {
			p.sinkErrors.Add(1)
			Opsf("failed to publish violation stream=%s track=%s kind=%s: %v", event.StreamID, event.TrackID, event.Kind, err)
		}
	}
}

// frameTime returns the frame's timestamp, deriving one from the index and
// nominal frame rate when the source did not supply it.
func (p *Pipeline) frameTime(frame Frame) time.Time {
	if !frame.Timestamp.IsZero() {
		return frame.Timestamp
	}
	offset := time.Duration(float64(frame.Index) / p.Config.FrameRate * float64(time.Second))
	return p.startedAt.Add(offset)
}

// finishTrack records a summary for a purged track and releases per-track
// rule state.
func (p *Pipeline) finishTrack(track *Track) {
	p.tracksPurged.Add(1)

	if !isNilInterface(p.Config.Tracks) {
		summary := TrackSummary{
			StreamID:     p.Config.StreamID,
			TrackID:      track.ID,
			Class:        track.Class,
			FirstFrame:   track.FirstFrame,
			LastFrame:    track.LastFrame,
			Observations: len(track.History),
			SpeedsKMH:    p.speed.SpeedHistory(track.ID),
		}
		if outcome, text, ok := p.plate.Outcome(track.ID); ok {
			summary.PlateOutcome = outcome
			summary.PlateText = text
		}
		if err := p.Config.Tracks.RecordTrack(summary); err != nil {
			p.sinkErrors.Add(1)
			Opsf("failed to record track summary stream=%s track=%s: %v", p.Config.StreamID, track.ID, err)
		}
	}

	p.line.Forget(track.ID)
	p.speed.Forget(track.ID)
	p.helmet.Forget(track.ID)
	p.plate.Forget(track.ID)
}

// Finish flushes summaries for every remaining track. Call it at orderly
// stream end; on cancellation the pipeline is simply discarded instead, so
// partial state never turns into events.
func (p *Pipeline) Finish() {
	for _, track := range p.tracker.GetAllTracks() {
		p.finishTrack(track)
	}
	p.tracker = NewTracker(p.Config.Tracker)
	Diagf("stream=%s finished: frames=%d events=%d", p.Config.StreamID, p.framesProcessed.Load(), p.ledger.Count())
}

// Events returns the emitted events so far, in emission order.
func (p *Pipeline) Events() []ViolationEvent {
	return p.ledger.Events()
}

// Line returns the stream's violation line, if established.
func (p *Pipeline) Line() (ViolationLine, bool) {
	return p.line.Line()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		FramesProcessed:     p.framesProcessed.Load(),
		DetectionsDiscarded: p.detectionsDiscarded.Load(),
		TracksStarted:       p.tracksStarted.Load(),
		TracksPurged:        p.tracksPurged.Load(),
		EventsEmitted:       p.eventsEmitted.Load(),
		EventsSuppressed:    p.ledger.Suppressed(),
		SinkErrors:          p.sinkErrors.Load(),
	}
}
