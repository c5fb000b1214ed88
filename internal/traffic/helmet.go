package traffic

// HelmetConfig holds rider association and helmet decision parameters.
type HelmetConfig struct {
	ConfirmationWindow int     // consecutive uncovered frames before an event
	HeadRegionFraction float64 // top fraction of the person box checked for a helmet
	ContainmentRatio   float64 // person-in-vehicle area fraction for association
	AdjacencyGapPx     float64 // vertical slack for a rider sitting above the vehicle box
}

// DefaultHelmetConfig returns the stock helmet rule parameters.
func DefaultHelmetConfig() HelmetConfig {
	return HelmetConfig{
		ConfirmationWindow: 5,
		HeadRegionFraction: 0.3,
		ContainmentRatio:   0.6,
		AdjacencyGapPx:     20,
	}
}

// trackHelmetState is the evaluator's per-track memory.
type trackHelmetState struct {
	streak   int // consecutive evaluated frames with an uncovered rider
	violated bool
}

// HelmetRule flags two-wheeler tracks whose riders lack helmet coverage over
// a confirmation window. One instance per stream.
type HelmetRule struct {
	Config HelmetConfig

	tracks map[string]*trackHelmetState
}

// NewHelmetRule creates a helmet rule evaluator.
func NewHelmetRule(config HelmetConfig) *HelmetRule {
	return &HelmetRule{
		Config: config,
		tracks: make(map[string]*trackHelmetState),
	}
}

// riderOf reports whether a person detection belongs to the vehicle box:
// either substantially contained in it or seated adjacent above it.
func (h *HelmetRule) riderOf(person BBox, vehicle BBox) bool {
	if person.ContainmentIn(vehicle) >= h.Config.ContainmentRatio {
		return true
	}
	return person.AdjacentAbove(vehicle, h.Config.AdjacencyGapPx)
}

// covered reports whether any helmet detection overlaps the person's head
// region.
func (h *HelmetRule) covered(person BBox, helmets []Detection) bool {
	head := person.HeadRegion(h.Config.HeadRegionFraction)
	for _, helmet := range helmets {
		if head.Intersection(helmet.BBox) > 0 {
			return true
		}
	}
	return false
}

// Evaluate updates the helmet decision for one two-wheeler track with this
// frame's person and helmet detections. A frame with at least one uncovered
// rider extends the streak; a frame where every associated rider is covered
// resets it; a frame with no associated rider leaves it unchanged, so a
// single missed person detection does not restart confirmation. Emits at
// most one event per track.
func (h *HelmetRule) Evaluate(track *Track, frameIndex int64, persons, helmets []Detection) *ViolationEvent {
	if !track.Class.IsTwoWheeler() {
		return nil
	}
	if n := len(track.History); n == 0 || track.History[n-1].FrameIndex != frameIndex {
		return nil // no fresh observation this frame
	}

	state := h.tracks[track.ID]
	if state == nil {
		state = &trackHelmetState{}
		h.tracks[track.ID] = state
	}
	if state.violated {
		return nil
	}

	vehicle := track.LastBox()
	var (
		riders    int
		uncovered *Detection
	)
	for i := range persons {
		p := persons[i]
		if !h.riderOf(p.BBox, vehicle) {
			continue
		}
		riders++
		if h.covered(p.BBox, helmets) {
			continue
		}
		if uncovered == nil || p.Confidence > uncovered.Confidence {
			uncovered = &persons[i]
		}
	}

	if riders == 0 {
		return nil
	}
	if uncovered == nil {
		state.streak = 0
		return nil
	}

	state.streak++
	if state.streak < h.Config.ConfirmationWindow {
		return nil
	}

	state.violated = true
	return &ViolationEvent{
		TrackID:      track.ID,
		Kind:         ViolationHelmet,
		FrameIndex:   frameIndex,
		VehicleClass: track.Class,
		Confidence:   uncovered.Confidence,
		EvidenceBox:  uncovered.BBox,
	}
}

// Forget drops per-track state once the tracker purges a track.
func (h *HelmetRule) Forget(trackID string) {
	delete(h.tracks, trackID)
}
