package traffic

import (
	"fmt"
	"sort"
	"sync"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // new track, needs confirmation
	TrackActive    TrackState = "active"    // confirmed track with stable history
	TrackLost      TrackState = "lost"      // unmatched beyond MaxMisses, retained for late evaluation
)

// TrackerConfig holds configuration parameters for track association.
type TrackerConfig struct {
	MaxTracks           int     // maximum concurrent tracks per stream
	MaxMisses           int     // consecutive unmatched frames before a track is lost
	HitsToConfirm       int     // consecutive matches needed to promote tentative to active
	RetentionFrames     int64   // frames a lost track is retained before purge
	AffinityFloorIoU    float64 // minimum IoU for an overlap match
	MaxCentroidDistance float64 // gating distance (px) for proximity matches
	UsePrediction       bool    // predict centroids with a Kalman filter before matching
	FrameIntervalSec    float64 // nominal frame interval fed to the predictor
}

// DefaultTrackerConfig returns default association parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxTracks:           100,
		MaxMisses:           5,
		HitsToConfirm:       2,
		RetentionFrames:     10,
		AffinityFloorIoU:    0.1,
		MaxCentroidDistance: 100,
		UsePrediction:       true,
		FrameIntervalSec:    defaultFrameStep,
	}
}

// Track is a persistent identity for one detected object across frames. The
// tracker owns all mutation; rule evaluators read history and never modify it.
type Track struct {
	ID    string
	Class Class
	State TrackState

	Hits   int // consecutive successful associations
	Misses int // consecutive missed associations

	FirstFrame int64
	LastFrame  int64 // frame index of the most recent observation

	// History holds the raw observed boxes in strictly increasing frame
	// order. Prediction smoothing never rewrites it.
	History []Observation

	seq       int64 // numeric creation order, used for deterministic tie-breaks
	lostAt    int64 // frame index at which the track became lost
	predictor *centroidPredictor
}

// LastBox returns the most recently observed bounding box.
func (tr *Track) LastBox() BBox {
	if len(tr.History) == 0 {
		return BBox{}
	}
	return tr.History[len(tr.History)-1].Box
}

// LastConfidence returns the confidence of the most recent observation.
func (tr *Track) LastConfidence() float64 {
	if len(tr.History) == 0 {
		return 0
	}
	return tr.History[len(tr.History)-1].Confidence
}

// RefPoint returns the track reference point, the bottom centre of the most
// recent box. For vehicles this approximates the road contact point.
func (tr *Track) RefPoint() Point {
	return tr.LastBox().BottomCenter()
}

// predictedBox returns the last observed box recentred on the Kalman
// prediction when available, otherwise the last box unchanged.
func (tr *Track) predictedBox() BBox {
	box := tr.LastBox()
	if tr.predictor == nil || !tr.predictor.primed {
		return box
	}
	c := tr.predictor.predicted
	return BBox{X: c.X - box.W/2, Y: c.Y - box.H/2, W: box.W, H: box.H}
}

// Tracker maintains continuity of identity for vehicles and persons across
// frames despite detector noise. One instance per stream.
type Tracker struct {
	Tracks      map[string]*Track
	NextTrackID int64
	Config      TrackerConfig

	mu sync.RWMutex
}

// NewTracker creates a tracker with the specified configuration.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		Tracks:      make(map[string]*Track),
		NextTrackID: 1,
		Config:      config,
	}
}

// Update processes one frame's gated detections and returns the tracks purged
// this frame. Detections must already be confidence-gated and belong to
// trackable classes (vehicles, persons); frames must arrive in order.
func (t *Tracker) Update(frameIndex int64, detections []Detection) (purged []*Track) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Step 1: project track centroids forward one frame.
	if t.Config.UsePrediction {
		for _, track := range t.Tracks {
			if track.State != TrackLost && track.predictor != nil {
				track.predictor.predict()
			}
		}
	}

	// Step 2: associate detections to tracks.
	matches := t.associate(detections)

	// Step 3: update matched tracks.
	matched := make(map[string]bool, len(matches))
	for di, trackID := range matches {
		if trackID == "" {
			continue
		}
		t.observe(t.Tracks[trackID], frameIndex, detections[di])
		matched[trackID] = true
	}

	// Step 4: penalise unmatched tracks.
	for id, track := range t.Tracks {
		if matched[id] || track.State == TrackLost {
			continue
		}
		track.Misses++
		track.Hits = 0
		if track.Misses >= t.Config.MaxMisses {
			track.State = TrackLost
			track.lostAt = frameIndex
		}
	}

	// Step 5: spawn new tracks from unmatched detections. A detection with no
	// candidate above the affinity floor always starts a fresh track rather
	// than being forced onto a poor match.
	for di, trackID := range matches {
		if trackID != "" {
			continue
		}
		if len(t.Tracks) >= t.Config.MaxTracks {
			break
		}
		t.initTrack(frameIndex, detections[di])
	}

	// Step 6: purge lost tracks past the retention window.
	return t.purgeLost(frameIndex)
}

// matchCandidate is one scored (detection, track) pairing considered by
// associate.
type matchCandidate struct {
	det      int
	trackID  string
	trackSeq int64
	score    float64
	conf     float64
}

// associate pairs detections with same-class tracks greedily by descending
// affinity. Ties resolve to the higher detection confidence, then to the
// lowest track id, so association is deterministic for identical input.
// Returns a track id per detection index, empty string for unmatched.
func (t *Tracker) associate(detections []Detection) []string {
	matches := make([]string, len(detections))

	var cands []matchCandidate
	for di, d := range detections {
		for id, track := range t.Tracks {
			if track.State == TrackLost || track.Class != d.Class {
				continue
			}
			score := t.affinity(d, track)
			if score <= 0 {
				continue
			}
			cands = append(cands, matchCandidate{
				det:      di,
				trackID:  id,
				trackSeq: track.seq,
				score:    score,
				conf:     d.Confidence,
			})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].conf != cands[j].conf {
			return cands[i].conf > cands[j].conf
		}
		if cands[i].trackSeq != cands[j].trackSeq {
			return cands[i].trackSeq < cands[j].trackSeq
		}
		return cands[i].det < cands[j].det
	})

	detUsed := make([]bool, len(detections))
	trackUsed := make(map[string]bool, len(t.Tracks))
	for _, c := range cands {
		if detUsed[c.det] || trackUsed[c.trackID] {
			continue
		}
		matches[c.det] = c.trackID
		detUsed[c.det] = true
		trackUsed[c.trackID] = true
	}
	return matches
}

// affinity scores a detection against a track. Overlap matches score in
// (1, 2] and proximity-only matches in (0, 1], so any IoU match above the
// floor outranks every distance match. Zero means no candidate.
func (t *Tracker) affinity(d Detection, track *Track) float64 {
	box := track.predictedBox()
	if iou := d.BBox.IoU(box); iou > 0 && iou >= t.Config.AffinityFloorIoU {
		return 1 + iou
	}
	dist := d.BBox.Centroid().DistanceTo(box.Centroid())
	if dist <= t.Config.MaxCentroidDistance {
		return 1 - dist/(t.Config.MaxCentroidDistance+1)
	}
	return 0
}

// observe appends a matched detection to the track history and advances the
// lifecycle counters.
func (t *Tracker) observe(track *Track, frameIndex int64, d Detection) {
	track.History = append(track.History, Observation{
		FrameIndex: frameIndex,
		Box:        d.BBox,
		Confidence: d.Confidence,
	})
	track.LastFrame = frameIndex
	track.Hits++
	track.Misses = 0
	if track.predictor != nil {
		track.predictor.correct(d.BBox.Centroid())
	}
	if track.State == TrackTentative && track.Hits >= t.Config.HitsToConfirm {
		track.State = TrackActive
	}
}

// initTrack creates a new track from an unmatched detection.
func (t *Tracker) initTrack(frameIndex int64, d Detection) *Track {
	track := &Track{
		ID:         fmt.Sprintf("track_%d", t.NextTrackID),
		Class:      d.Class,
		State:      TrackTentative,
		Hits:       1,
		FirstFrame: frameIndex,
		LastFrame:  frameIndex,
		History: []Observation{{
			FrameIndex: frameIndex,
			Box:        d.BBox,
			Confidence: d.Confidence,
		}},
		seq: t.NextTrackID,
	}
	if t.Config.UsePrediction {
		track.predictor = newCentroidPredictor(d.BBox.Centroid(), t.Config.FrameIntervalSec)
	}
	t.NextTrackID++
	t.Tracks[track.ID] = track
	return track
}

// purgeLost removes lost tracks whose retention window has elapsed and
// returns them, ordered by creation, so the pipeline can finalise summaries.
func (t *Tracker) purgeLost(frameIndex int64) []*Track {
	var purged []*Track
	for id, track := range t.Tracks {
		if track.State == TrackLost && frameIndex-track.lostAt >= t.Config.RetentionFrames {
			purged = append(purged, track)
			delete(t.Tracks, id)
		}
	}
	sort.Slice(purged, func(i, j int) bool { return purged[i].seq < purged[j].seq })
	return purged
}

// GetActiveTracks returns all tracks not yet lost, ordered by creation.
func (t *Tracker) GetActiveTracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracks := make([]*Track, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		if track.State != TrackLost {
			tracks = append(tracks, track)
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].seq < tracks[j].seq })
	return tracks
}

// GetConfirmedTracks returns tracks in the active state, ordered by creation.
func (t *Tracker) GetConfirmedTracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracks := make([]*Track, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		if track.State == TrackActive {
			tracks = append(tracks, track)
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].seq < tracks[j].seq })
	return tracks
}

// GetAllTracks returns every retained track including lost ones still inside
// their retention window, ordered by creation. Rule evaluators that work
// during retention (plate resolution) need the lost ones too.
func (t *Tracker) GetAllTracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracks := make([]*Track, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		tracks = append(tracks, track)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].seq < tracks[j].seq })
	return tracks
}

// GetTrackCount returns the number of retained tracks, lost ones included.
func (t *Tracker) GetTrackCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Tracks)
}

// GetTrack returns a track by id.
func (t *Tracker) GetTrack(id string) (*Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	track, ok := t.Tracks[id]
	return track, ok
}
