package traffic

import (
	"math"
	"sync"
)

// ViolationLine is the stop line whose crossing under a red light constitutes
// a red-light violation. The tolerance band widens the segment laterally when
// testing crossings and groups stopped-vehicle samples during derivation.
type ViolationLine struct {
	A         Point   `json:"a"`
	B         Point   `json:"b"`
	Tolerance float64 `json:"tolerance"`
}

// side reports which side of the line p lies on: +1, -1, or 0 for exactly on
// the line. Sides are consistent for a fixed A and B; the engine only cares
// about transitions, not about which sign means "before".
func (l ViolationLine) side(p Point) int {
	cross := (l.B.X-l.A.X)*(p.Y-l.A.Y) - (l.B.Y-l.A.Y)*(p.X-l.A.X)
	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	}
	return 0
}

// crossingPoint returns where the movement segment from p1 to p2 intersects
// the line, and whether that intersection lands within the line segment's
// lateral extent padded by the tolerance band.
func (l ViolationLine) crossingPoint(p1, p2 Point) (Point, bool) {
	dx := l.B.X - l.A.X
	dy := l.B.Y - l.A.Y
	mx := p2.X - p1.X
	my := p2.Y - p1.Y

	denom := dx*my - dy*mx
	if denom == 0 {
		return Point{}, false // parallel movement never crosses
	}

	// Solve A + u*(B-A) == p1 + s*(p2-p1) for the line parameter u and the
	// movement parameter s.
	s := (dx*(l.A.Y-p1.Y) - dy*(l.A.X-p1.X)) / denom
	if s < 0 || s > 1 {
		return Point{}, false
	}
	hit := Point{X: p1.X + s*mx, Y: p1.Y + s*my}

	length := math.Hypot(dx, dy)
	if length == 0 {
		return Point{}, false
	}
	u := ((hit.X-l.A.X)*dx + (hit.Y-l.A.Y)*dy) / (length * length)
	pad := l.Tolerance / length
	if u < -pad || u > 1+pad {
		return Point{}, false
	}
	return hit, true
}

// LineEngineConfig configures the violation line engine for one stream.
type LineEngineConfig struct {
	// Configured supplies the stop line directly. When nil the engine derives
	// one from observed traffic after DerivationWindow frames.
	Configured *ViolationLine

	TolerancePx   float64 // tolerance band for the derived line
	RedConfidence float64 // minimum light confidence for the red gate
	RedLagFrames  int64   // frames of light-state lag tolerated before a crossing

	// Derivation parameters.
	DerivationWindow  int64   // frames observed before fitting a line
	StopDisplacement  float64 // max ref-point displacement (px) to count a vehicle as stopped
	MinStoppedSamples int     // samples required for a density fit
	FallbackFraction  float64 // scene-height fraction for the fallback line
	FallbackInsetPx   float64 // horizontal inset of the fallback endpoints
}

// DefaultLineEngineConfig returns stock line engine parameters.
func DefaultLineEngineConfig() LineEngineConfig {
	return LineEngineConfig{
		TolerancePx:       15,
		RedConfidence:     0.3,
		RedLagFrames:      2,
		DerivationWindow:  50,
		StopDisplacement:  2,
		MinStoppedSamples: 5,
		FallbackFraction:  0.75,
		FallbackInsetPx:   50,
	}
}

// trackLineState is the engine's per-track crossing memory.
type trackLineState struct {
	lastSide int  // last nonzero side observed
	crossed  bool // a red-light event was already produced
}

// lightSample records the light state at one frame for the lag window.
type lightSample struct {
	frameIndex int64
	state      LightState
}

// LineEngine maintains the stop line for one stream and decides, per track,
// whether a crossing occurred while the light was red. The line is fixed for
// the stream's lifetime once established.
type LineEngine struct {
	config LineEngineConfig

	// lineMu guards line and established; Line is read from other goroutines
	// for status reporting while derivation runs on the stream's own.
	lineMu      sync.RWMutex
	line        ViolationLine
	established bool

	// Derivation state, unused once established.
	framesSeen   int64
	stopSamples  []float64 // bottom-centre Y of stopped vehicles near the light
	lightRegion  *BBox     // union of observed traffic-light boxes
	sceneMaxX    float64
	sceneMaxY    float64
	sceneObsSeen bool

	lights []lightSample // recent light states, newest last
	tracks map[string]*trackLineState
}

// NewLineEngine creates a line engine. A configured line is established
// immediately; otherwise the engine observes traffic first.
func NewLineEngine(config LineEngineConfig) *LineEngine {
	e := &LineEngine{
		config: config,
		tracks: make(map[string]*trackLineState),
	}
	if config.Configured != nil {
		e.line = *config.Configured
		if e.line.Tolerance == 0 {
			e.line.Tolerance = config.TolerancePx
		}
		e.established = true
	}
	return e
}

// Line returns the current stop line and whether it has been established.
func (e *LineEngine) Line() (ViolationLine, bool) {
	e.lineMu.RLock()
	defer e.lineMu.RUnlock()
	return e.line, e.established
}

// ObserveFrame feeds per-frame context into the engine: the light state for
// the red gate, and scene geometry for line derivation while unestablished.
func (e *LineEngine) ObserveFrame(frameIndex int64, obs Observations, light LightState, tracks []*Track) {
	e.lights = append(e.lights, lightSample{frameIndex: frameIndex, state: light})
	keep := int(e.config.RedLagFrames) + 1
	if keep < 1 {
		keep = 1
	}
	if len(e.lights) > keep {
		e.lights = e.lights[len(e.lights)-keep:]
	}

	if e.established {
		return
	}

	e.framesSeen++
	for _, d := range obs.Lights {
		e.growLightRegion(d.BBox)
	}
	for _, group := range [][]Detection{obs.Vehicles, obs.Persons, obs.Lights, obs.Plates} {
		for _, d := range group {
			e.growScene(d.BBox)
		}
	}

	// Sample stopped vehicles: ref-point displacement between the last two
	// observations below the stop threshold.
	for _, track := range tracks {
		if !track.Class.IsVehicle() || len(track.History) < 2 {
			continue
		}
		last := track.History[len(track.History)-1]
		if last.FrameIndex != frameIndex {
			continue
		}
		prev := track.History[len(track.History)-2]
		if prev.Box.BottomCenter().DistanceTo(last.Box.BottomCenter()) > e.config.StopDisplacement {
			continue
		}
		ref := last.Box.BottomCenter()
		if e.nearLightRegion(ref) {
			e.stopSamples = append(e.stopSamples, ref.Y)
		}
	}

	if e.framesSeen >= e.config.DerivationWindow {
		e.derive()
	}
}

func (e *LineEngine) growScene(b BBox) {
	if x := b.X + b.W; x > e.sceneMaxX {
		e.sceneMaxX = x
	}
	if y := b.Y + b.H; y > e.sceneMaxY {
		e.sceneMaxY = y
	}
	e.sceneObsSeen = true
}

func (e *LineEngine) growLightRegion(b BBox) {
	if e.lightRegion == nil {
		region := b
		e.lightRegion = &region
		return
	}
	x1 := math.Min(e.lightRegion.X, b.X)
	y1 := math.Min(e.lightRegion.Y, b.Y)
	x2 := math.Max(e.lightRegion.X+e.lightRegion.W, b.X+b.W)
	y2 := math.Max(e.lightRegion.Y+e.lightRegion.H, b.Y+b.H)
	e.lightRegion = &BBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// nearLightRegion reports whether a stopped-vehicle reference point plausibly
// queues at the light: below the mounted light head when one has been seen,
// anywhere otherwise.
func (e *LineEngine) nearLightRegion(p Point) bool {
	if e.lightRegion == nil {
		return true
	}
	return p.Y > e.lightRegion.Y+e.lightRegion.H
}

// derive fits the stop line once the observation window has elapsed. The
// densest tolerance-wide band of stopped-vehicle samples wins; with too few
// samples the line falls back to a fixed fraction of the observed scene
// height. With no scene observations at all, derivation waits.
func (e *LineEngine) derive() {
	if !e.sceneObsSeen {
		return
	}

	y, ok := e.densestBand()
	if !ok {
		y = e.config.FallbackFraction * e.sceneMaxY
	}

	inset := e.config.FallbackInsetPx
	if inset*2 >= e.sceneMaxX {
		inset = 0
	}
	e.lineMu.Lock()
	e.line = ViolationLine{
		A:         Point{X: inset, Y: y},
		B:         Point{X: e.sceneMaxX - inset, Y: y},
		Tolerance: e.config.TolerancePx,
	}
	e.established = true
	e.lineMu.Unlock()
	e.stopSamples = nil
	Diagf("violation line derived: (%.0f, %.0f) -> (%.0f, %.0f)", e.line.A.X, e.line.A.Y, e.line.B.X, e.line.B.Y)
}

// densestBand slides a band of twice the tolerance over the stopped-vehicle
// Y samples and returns the mean of the densest placement.
func (e *LineEngine) densestBand() (float64, bool) {
	if len(e.stopSamples) < e.config.MinStoppedSamples {
		return 0, false
	}
	width := e.config.TolerancePx * 2
	if width <= 0 {
		width = 1
	}

	bestCount := 0
	bestSum := 0.0
	for _, center := range e.stopSamples {
		count := 0
		sum := 0.0
		for _, y := range e.stopSamples {
			if math.Abs(y-center) <= width {
				count++
				sum += y
			}
		}
		if count > bestCount {
			bestCount = count
			bestSum = sum
		}
	}
	if bestCount < e.config.MinStoppedSamples {
		return 0, false
	}
	return bestSum / float64(bestCount), true
}

// redWithinLag reports whether the light was red with sufficient confidence
// at frameIndex or within the lag window before it.
func (e *LineEngine) redWithinLag(frameIndex int64) (LightState, bool) {
	for i := len(e.lights) - 1; i >= 0; i-- {
		s := e.lights[i]
		if s.frameIndex > frameIndex || frameIndex-s.frameIndex > e.config.RedLagFrames {
			continue
		}
		if s.state.Color == LightRed && s.state.Confidence >= e.config.RedConfidence {
			return s.state, true
		}
	}
	return LightState{}, false
}

// Evaluate checks one vehicle track for a red-light crossing completed at
// frameIndex. It returns an event candidate at most once per track; repeat
// frames on the far side of the line are no-ops.
func (e *LineEngine) Evaluate(track *Track, frameIndex int64) *ViolationEvent {
	if !e.established || !track.Class.IsVehicle() || len(track.History) < 2 {
		return nil
	}
	last := track.History[len(track.History)-1]
	if last.FrameIndex != frameIndex {
		return nil // no fresh observation this frame
	}

	state := e.tracks[track.ID]
	if state == nil {
		state = &trackLineState{}
		e.tracks[track.ID] = state
		// Seed the side from the oldest retained observation so the first
		// evaluation has a "before" reference.
		state.lastSide = e.line.side(track.History[0].Box.BottomCenter())
	}
	if state.crossed {
		return nil
	}

	prev := track.History[len(track.History)-2].Box.BottomCenter()
	curr := last.Box.BottomCenter()
	currSide := e.line.side(curr)
	if currSide == 0 {
		return nil // sitting on the line is not yet a transition
	}
	if state.lastSide == 0 {
		state.lastSide = currSide
		return nil
	}
	if currSide == state.lastSide {
		return nil
	}

	// Side flipped: confirm the movement segment actually crosses inside the
	// tolerance band before committing.
	hit, ok := e.line.crossingPoint(prev, curr)
	state.lastSide = currSide
	if !ok {
		return nil
	}

	light, red := e.redWithinLag(frameIndex)
	if !red {
		return nil // lawful crossing; the track keeps its one-event budget
	}

	state.crossed = true
	crossing := hit
	return &ViolationEvent{
		TrackID:      track.ID,
		Kind:         ViolationRedLight,
		FrameIndex:   frameIndex,
		VehicleClass: track.Class,
		Confidence:   light.Confidence,
		Crossing:     &crossing,
		EvidenceBox:  last.Box,
	}
}

// Forget drops per-track state once the tracker purges a track.
func (e *LineEngine) Forget(trackID string) {
	delete(e.tracks, trackID)
}
