package traffic

import (
	"math"
	"sort"
)

// SpeedConfig holds speed estimation and decision parameters for one stream.
type SpeedConfig struct {
	PixelToMeterRatio  float64 // metres represented by one pixel
	FrameRate          float64 // nominal frames per second
	LimitKMH           float64 // posted limit
	WindowObservations int     // observations spanned by the rolling window
	SustainFrames      int     // consecutive over-limit estimates required
	MinSpeedKMH        float64 // estimates below this are jitter, treated as stationary
	MaxSpeedKMH        float64 // clamp for implausible estimates
}

// DefaultSpeedConfig returns the stock speed parameters.
func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{
		PixelToMeterRatio:  0.05,
		FrameRate:          25,
		LimitKMH:           40,
		WindowObservations: 5,
		SustainFrames:      3,
		MinSpeedKMH:        5,
		MaxSpeedKMH:        200,
	}
}

// trackSpeedState is the estimator's per-track memory.
type trackSpeedState struct {
	estimates  []float64 // every window estimate, km/h, for summary percentiles
	overCount  int       // consecutive estimates above the limit
	overSpeeds []float64 // estimates in the current over-limit run
	violated   bool
}

// SpeedEstimator converts track pixel displacement into road speed and flags
// sustained over-limit tracks. One instance per stream.
type SpeedEstimator struct {
	Config SpeedConfig

	tracks map[string]*trackSpeedState
}

// NewSpeedEstimator creates a speed estimator.
func NewSpeedEstimator(config SpeedConfig) *SpeedEstimator {
	return &SpeedEstimator{
		Config: config,
		tracks: make(map[string]*trackSpeedState),
	}
}

// Estimate computes the rolling-window speed for a track in km/h. It returns
// ok=false with fewer than two observations, which is a normal no-decision
// outcome rather than an error. Estimates below MinSpeedKMH collapse to zero;
// estimates above MaxSpeedKMH clamp.
func (s *SpeedEstimator) Estimate(track *Track) (float64, bool) {
	n := len(track.History)
	if n < 2 || s.Config.FrameRate <= 0 {
		return 0, false
	}

	start := n - s.Config.WindowObservations
	if start < 0 {
		start = 0
	}
	first := track.History[start]
	last := track.History[n-1]
	deltaFrames := last.FrameIndex - first.FrameIndex
	if deltaFrames <= 0 {
		return 0, false
	}

	pixels := first.Box.BottomCenter().DistanceTo(last.Box.BottomCenter())
	meters := pixels * s.Config.PixelToMeterRatio
	elapsed := float64(deltaFrames) / s.Config.FrameRate
	kmh := meters / elapsed * 3.6

	if kmh < s.Config.MinSpeedKMH {
		kmh = 0
	}
	if kmh > s.Config.MaxSpeedKMH {
		kmh = s.Config.MaxSpeedKMH
	}
	if math.IsNaN(kmh) || math.IsInf(kmh, 0) {
		return 0, false
	}
	return kmh, true
}

// Evaluate updates the per-track speed decision with the estimate for
// frameIndex. It returns an event candidate once the limit has been exceeded
// for SustainFrames consecutive estimates; a single noisy spike never
// triggers. Each track yields at most one speed event.
func (s *SpeedEstimator) Evaluate(track *Track, frameIndex int64) *ViolationEvent {
	if !track.Class.IsVehicle() {
		return nil
	}
	if n := len(track.History); n == 0 || track.History[n-1].FrameIndex != frameIndex {
		return nil // no fresh observation this frame
	}

	kmh, ok := s.Estimate(track)
	if !ok {
		return nil
	}

	state := s.tracks[track.ID]
	if state == nil {
		state = &trackSpeedState{}
		s.tracks[track.ID] = state
	}
	state.estimates = append(state.estimates, kmh)
	if state.violated {
		return nil
	}

	if kmh <= s.Config.LimitKMH {
		state.overCount = 0
		state.overSpeeds = state.overSpeeds[:0]
		return nil
	}

	state.overCount++
	state.overSpeeds = append(state.overSpeeds, kmh)
	if state.overCount < s.Config.SustainFrames {
		return nil
	}

	state.violated = true
	return &ViolationEvent{
		TrackID:      track.ID,
		Kind:         ViolationSpeed,
		FrameIndex:   frameIndex,
		VehicleClass: track.Class,
		Confidence:   track.LastConfidence(),
		SpeedKMH:     median(state.overSpeeds),
		EvidenceBox:  track.LastBox(),
	}
}

// SpeedHistory returns every window estimate recorded for a track, km/h, in
// evaluation order. Used for track summaries at purge time.
func (s *SpeedEstimator) SpeedHistory(trackID string) []float64 {
	state := s.tracks[trackID]
	if state == nil {
		return nil
	}
	out := make([]float64, len(state.estimates))
	copy(out, state.estimates)
	return out
}

// Forget drops per-track state once the tracker purges a track.
func (s *SpeedEstimator) Forget(trackID string) {
	delete(s.tracks, trackID)
}

// median returns the middle value of the samples. Even-length input resolves
// to the upper middle, matching how track percentiles are reported elsewhere.
func median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
