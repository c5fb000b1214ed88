package traffic

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// OCRFunc asks the external OCR collaborator to read the plate crop at box in
// the frame identified by frameIndex. Implementations may block on network or
// model latency; an error or empty result means "no evidence this frame" and
// the resolver retries on a later frame.
type OCRFunc func(ctx context.Context, frameIndex int64, box BBox) (text string, confidence float64, err error)

// PlateConfig holds plate binding and validation parameters.
type PlateConfig struct {
	StableFrames      int     // observations a track needs before binding a plate
	MaxBindDistancePx float64 // max centroid distance from the vehicle's lower region
	OCRConfidence     float64 // below this the read is unreadable
	Pattern           string  // regional plate format
}

// DefaultPlateConfig returns the stock plate parameters.
func DefaultPlateConfig() PlateConfig {
	return PlateConfig{
		StableFrames:      3,
		MaxBindDistancePx: 100,
		OCRConfidence:     0.3,
		Pattern:           `^[A-Z]{2}[0-9]{2}[A-Z]{1,2}[0-9]{4}$`,
	}
}

// NormalizePlate uppercases the raw OCR text and strips whitespace, dashes
// and every other non-alphanumeric rune, leaving only A-Z and 0-9.
func NormalizePlate(raw string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// plateResolution is the final per-track outcome.
type plateResolution struct {
	outcome PlateOutcome
	text    string
}

// PlateResolver binds a plate detection to each stable vehicle track, reads
// it through the OCR collaborator, and validates the text against the
// regional pattern. One instance per stream.
type PlateResolver struct {
	Config PlateConfig

	ocr      OCRFunc
	pattern  *regexp.Regexp
	resolved map[string]*plateResolution
}

// NewPlateResolver creates a plate resolver. The OCR collaborator may be nil,
// in which case every bound plate resolves as unreadable.
func NewPlateResolver(config PlateConfig, ocr OCRFunc) (*PlateResolver, error) {
	pattern, err := regexp.Compile(config.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plate pattern %q: %w", config.Pattern, err)
	}
	return &PlateResolver{
		Config:   config,
		ocr:      ocr,
		pattern:  pattern,
		resolved: make(map[string]*plateResolution),
	}, nil
}

// bind picks the plate detection nearest the vehicle's lower region, within
// the binding distance. Ties resolve to the higher detection confidence, then
// to input order.
func (p *PlateResolver) bind(vehicle BBox, plates []Detection) (Detection, bool) {
	anchor := vehicle.LowerRegion().Centroid()
	best := -1
	bestDist := p.Config.MaxBindDistancePx
	for i, plate := range plates {
		dist := plate.BBox.Centroid().DistanceTo(anchor)
		if dist > bestDist {
			continue
		}
		if dist == bestDist && best >= 0 && plate.Confidence <= plates[best].Confidence {
			continue
		}
		best = i
		bestDist = dist
	}
	if best < 0 {
		return Detection{}, false
	}
	return plates[best], true
}

// Evaluate attempts plate resolution for one vehicle track. Binding waits for
// the track to stabilise so a transient false plate detection is never
// attached. OCR failures leave the track unresolved for retry; a definitive
// read resolves the track permanently: invalid-format and unreadable reads
// produce the track's single plate event, a valid read produces none.
func (p *PlateResolver) Evaluate(ctx context.Context, track *Track, frameIndex int64, plates []Detection) *ViolationEvent {
	if !track.Class.IsVehicle() {
		return nil
	}
	if _, done := p.resolved[track.ID]; done {
		return nil
	}
	// Unlike the other rules, resolution does not require a fresh observation:
	// a lost track in its retention window can still bind a plate read against
	// its last known position.
	if len(track.History) < p.Config.StableFrames {
		return nil
	}

	plate, ok := p.bind(track.LastBox(), plates)
	if !ok {
		return nil
	}

	var (
		text string
		conf float64
	)
	if p.ocr != nil {
		var err error
		text, conf, err = p.ocr(ctx, frameIndex, plate.BBox)
		if err != nil {
			return nil // collaborator failure: no evidence this frame
		}
	}

	normalized := NormalizePlate(text)
	res := &plateResolution{text: normalized}
	switch {
	case normalized == "" || conf < p.Config.OCRConfidence:
		res.outcome = PlateUnreadable
	case !p.pattern.MatchString(normalized):
		res.outcome = PlateInvalidFormat
	default:
		res.outcome = PlateValid
	}
	p.resolved[track.ID] = res

	if res.outcome == PlateValid {
		return nil
	}
	return &ViolationEvent{
		TrackID:      track.ID,
		Kind:         ViolationPlate,
		FrameIndex:   frameIndex,
		VehicleClass: track.Class,
		Confidence:   conf,
		PlateText:    normalized,
		PlateOutcome: res.outcome,
		EvidenceBox:  plate.BBox,
	}
}

// Outcome returns the resolved plate outcome and normalized text for a track,
// if resolution has completed.
func (p *PlateResolver) Outcome(trackID string) (PlateOutcome, string, bool) {
	res := p.resolved[trackID]
	if res == nil {
		return "", "", false
	}
	return res.outcome, res.text, true
}

// Forget drops per-track state once the tracker purges a track.
func (p *PlateResolver) Forget(trackID string) {
	delete(p.resolved, trackID)
}
