// Package traffic implements the per-stream violation detection pipeline:
// detection intake, track association, and the rule evaluators (red-light,
// speed, helmet, plate) feeding a de-duplicating violation ledger.
//
// The package is transport-free. Callers construct a Pipeline per camera
// stream and feed it frames strictly in sequence; events are delivered
// incrementally through sinks. Nothing in here is shared between streams.
package traffic

import "time"

// Class identifies what kind of object an upstream detector reported.
type Class string

const (
	ClassCar          Class = "car"
	ClassMotorcycle   Class = "motorcycle"
	ClassBus          Class = "bus"
	ClassTruck        Class = "truck"
	ClassPerson       Class = "person"
	ClassHelmet       Class = "helmet"
	ClassTrafficLight Class = "traffic_light"
	ClassPlate        Class = "plate"
)

// IsVehicle reports whether the class is a trackable vehicle class.
func (c Class) IsVehicle() bool {
	switch c {
	case ClassCar, ClassMotorcycle, ClassBus, ClassTruck:
		return true
	}
	return false
}

// IsTwoWheeler reports whether the class is subject to the helmet rule.
func (c Class) IsTwoWheeler() bool {
	return c == ClassMotorcycle
}

// LightColor is the traffic light phase observed for a frame.
type LightColor string

const (
	LightRed     LightColor = "red"
	LightYellow  LightColor = "yellow"
	LightGreen   LightColor = "green"
	LightUnknown LightColor = "unknown"
)

// LightState carries the per-frame traffic light observation. The upstream
// classifier supplies it; frames with no visible light report LightUnknown
// with zero confidence.
type LightState struct {
	Color      LightColor `json:"color"`
	Confidence float64    `json:"confidence"`
}

// Detection is a single detector output for one frame. Immutable once
// produced upstream.
type Detection struct {
	Class      Class   `json:"class"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Frame is the per-frame input bundle the pipeline consumes.
type Frame struct {
	Index      int64       `json:"frame_index"`
	Timestamp  time.Time   `json:"timestamp"`
	Detections []Detection `json:"detections"`
	Light      LightState  `json:"light"`
}

// ViolationKind names the rule that produced an event.
type ViolationKind string

const (
	ViolationRedLight ViolationKind = "red_light"
	ViolationSpeed    ViolationKind = "speed"
	ViolationHelmet   ViolationKind = "helmet"
	ViolationPlate    ViolationKind = "plate"
)

// PlateOutcome classifies the result of plate resolution for a track.
type PlateOutcome string

const (
	PlateValid         PlateOutcome = "valid"
	PlateInvalidFormat PlateOutcome = "invalid_format"
	PlateUnreadable    PlateOutcome = "unreadable"
)

// ViolationEvent is the single output record of the pipeline. At most one
// event exists per (track, kind) within a stream; events are immutable after
// the ledger emits them.
type ViolationEvent struct {
	StreamID     string        `json:"stream_id"`
	TrackID      string        `json:"track_id"`
	Kind         ViolationKind `json:"kind"`
	FrameIndex   int64         `json:"frame_index"`
	Timestamp    time.Time     `json:"timestamp"`
	VehicleClass Class         `json:"vehicle_class,omitempty"`
	Confidence   float64       `json:"confidence"`

	// Kind-specific evidence. SpeedKMH is set for speed events, PlateText and
	// PlateOutcome for plate events, Crossing for red-light events.
	SpeedKMH     float64      `json:"speed_kmh,omitempty"`
	PlateText    string       `json:"plate_text,omitempty"`
	PlateOutcome PlateOutcome `json:"plate_outcome,omitempty"`
	Crossing     *Point       `json:"crossing,omitempty"`

	// EvidenceBox is the triggering detection's box expanded by the configured
	// margin and clamped to the observed scene, for downstream crop rendering.
	EvidenceBox BBox `json:"evidence_box"`
}

// Observation is one (frame, box) sample in a track's history.
type Observation struct {
	FrameIndex int64   `json:"frame_index"`
	Box        BBox    `json:"box"`
	Confidence float64 `json:"confidence"`
}
