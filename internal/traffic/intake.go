package traffic

// IntakeConfig holds the per-class confidence gates applied to raw detector
// output. Detections below their class threshold never reach the tracker or
// the rule evaluators, so these five values are the single control point for
// false-positive pressure downstream.
type IntakeConfig struct {
	VehicleConfidence      float64
	PersonConfidence       float64
	HelmetConfidence       float64
	TrafficLightConfidence float64
	PlateConfidence        float64
}

// DefaultIntakeConfig returns the stock intake thresholds.
func DefaultIntakeConfig() IntakeConfig {
	return IntakeConfig{
		VehicleConfidence:      0.5,
		PersonConfidence:       0.5,
		HelmetConfidence:       0.5,
		TrafficLightConfidence: 0.3,
		PlateConfidence:        0.3,
	}
}

// Observations is the normalized per-frame bundle produced by intake:
// surviving detections grouped by class, ready for association and rule
// evaluation.
type Observations struct {
	FrameIndex int64
	Vehicles   []Detection
	Persons    []Detection
	Helmets    []Detection
	Lights     []Detection
	Plates     []Detection

	// Discarded counts detections dropped this frame, malformed boxes and
	// below-threshold scores together.
	Discarded int
}

// Intake normalizes raw per-frame detector output.
type Intake struct {
	Config IntakeConfig
}

// NewIntake creates an intake stage with the given gates.
func NewIntake(config IntakeConfig) *Intake {
	return &Intake{Config: config}
}

// threshold returns the confidence gate for a class. Unknown classes gate at
// 1.0 so they are always dropped rather than forwarded unchecked.
func (in *Intake) threshold(c Class) float64 {
	switch {
	case c.IsVehicle():
		return in.Config.VehicleConfidence
	case c == ClassPerson:
		return in.Config.PersonConfidence
	case c == ClassHelmet:
		return in.Config.HelmetConfidence
	case c == ClassTrafficLight:
		return in.Config.TrafficLightConfidence
	case c == ClassPlate:
		return in.Config.PlateConfidence
	}
	return 1.0
}

// Normalize filters and groups one frame's detections. Malformed bounding
// boxes are discarded here and never propagate.
func (in *Intake) Normalize(frame Frame) Observations {
	obs := Observations{FrameIndex: frame.Index}
	for _, d := range frame.Detections {
		if !d.BBox.Valid() || d.Confidence < 0 || d.Confidence > 1 {
			obs.Discarded++
			continue
		}
		if d.Confidence < in.threshold(d.Class) {
			obs.Discarded++
			continue
		}
		switch {
		case d.Class.IsVehicle():
			obs.Vehicles = append(obs.Vehicles, d)
		case d.Class == ClassPerson:
			obs.Persons = append(obs.Persons, d)
		case d.Class == ClassHelmet:
			obs.Helmets = append(obs.Helmets, d)
		case d.Class == ClassTrafficLight:
			obs.Lights = append(obs.Lights, d)
		case d.Class == ClassPlate:
			obs.Plates = append(obs.Plates, d)
		default:
			obs.Discarded++
		}
	}
	return obs
}
