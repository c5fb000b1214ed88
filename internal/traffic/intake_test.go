package traffic

import (
	"math"
	"testing"
)

func TestIntakeNormalize_ConfidenceGates(t *testing.T) {
	in := NewIntake(DefaultIntakeConfig())

	frame := Frame{
		Index: 7,
		Detections: []Detection{
			{Class: ClassCar, BBox: BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.5},
			{Class: ClassBus, BBox: BBox{X: 20, Y: 0, W: 10, H: 10}, Confidence: 0.49},
			{Class: ClassPerson, BBox: BBox{X: 40, Y: 0, W: 10, H: 10}, Confidence: 0.5},
			{Class: ClassPerson, BBox: BBox{X: 60, Y: 0, W: 10, H: 10}, Confidence: 0.4},
			{Class: ClassTrafficLight, BBox: BBox{X: 80, Y: 0, W: 10, H: 10}, Confidence: 0.3},
			{Class: ClassTrafficLight, BBox: BBox{X: 100, Y: 0, W: 10, H: 10}, Confidence: 0.2},
			{Class: ClassPlate, BBox: BBox{X: 120, Y: 0, W: 10, H: 10}, Confidence: 0.35},
			{Class: ClassHelmet, BBox: BBox{X: 140, Y: 0, W: 10, H: 10}, Confidence: 0.45},
		},
	}

	obs := in.Normalize(frame)
	if obs.FrameIndex != 7 {
		t.Errorf("FrameIndex = %d, want 7", obs.FrameIndex)
	}
	if len(obs.Vehicles) != 1 {
		t.Errorf("expected 1 vehicle after gating, got %d", len(obs.Vehicles))
	}
	if len(obs.Persons) != 1 {
		t.Errorf("expected 1 person after gating, got %d", len(obs.Persons))
	}
	if len(obs.Lights) != 1 {
		t.Errorf("expected 1 light after gating, got %d", len(obs.Lights))
	}
	if len(obs.Plates) != 1 {
		t.Errorf("expected 1 plate after gating, got %d", len(obs.Plates))
	}
	if len(obs.Helmets) != 0 {
		t.Errorf("expected helmet below 0.5 to be dropped, got %d", len(obs.Helmets))
	}
	if obs.Discarded != 4 {
		t.Errorf("Discarded = %d, want 4", obs.Discarded)
	}
}

func TestIntakeNormalize_MalformedDiscarded(t *testing.T) {
	in := NewIntake(DefaultIntakeConfig())

	frame := Frame{
		Index: 1,
		Detections: []Detection{
			{Class: ClassCar, BBox: BBox{X: math.NaN(), Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassCar, BBox: BBox{X: 0, Y: 0, W: 0, H: 10}, Confidence: 0.9},
			{Class: ClassCar, BBox: BBox{X: -5, Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassCar, BBox: BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 1.5},
			{Class: ClassCar, BBox: BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: -0.1},
		},
	}

	obs := in.Normalize(frame)
	if len(obs.Vehicles) != 0 {
		t.Errorf("expected all malformed detections dropped, got %d vehicles", len(obs.Vehicles))
	}
	if obs.Discarded != 5 {
		t.Errorf("Discarded = %d, want 5", obs.Discarded)
	}
}

func TestIntakeNormalize_UnknownClassDiscarded(t *testing.T) {
	in := NewIntake(DefaultIntakeConfig())

	frame := Frame{
		Index: 1,
		Detections: []Detection{
			{Class: Class("bicycle"), BBox: BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.99},
		},
	}

	obs := in.Normalize(frame)
	if obs.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1 for unknown class", obs.Discarded)
	}
	total := len(obs.Vehicles) + len(obs.Persons) + len(obs.Helmets) + len(obs.Lights) + len(obs.Plates)
	if total != 0 {
		t.Errorf("unknown class leaked into a bucket, %d grouped detections", total)
	}
}

func TestIntakeNormalize_Grouping(t *testing.T) {
	in := NewIntake(DefaultIntakeConfig())

	frame := Frame{
		Index: 3,
		Detections: []Detection{
			{Class: ClassMotorcycle, BBox: BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassTruck, BBox: BBox{X: 20, Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassPerson, BBox: BBox{X: 40, Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassHelmet, BBox: BBox{X: 60, Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassTrafficLight, BBox: BBox{X: 80, Y: 0, W: 10, H: 10}, Confidence: 0.9},
			{Class: ClassPlate, BBox: BBox{X: 100, Y: 0, W: 10, H: 10}, Confidence: 0.9},
		},
	}

	obs := in.Normalize(frame)
	if len(obs.Vehicles) != 2 || len(obs.Persons) != 1 || len(obs.Helmets) != 1 ||
		len(obs.Lights) != 1 || len(obs.Plates) != 1 {
		t.Errorf("grouping wrong: vehicles=%d persons=%d helmets=%d lights=%d plates=%d",
			len(obs.Vehicles), len(obs.Persons), len(obs.Helmets), len(obs.Lights), len(obs.Plates))
	}
	if obs.Discarded != 0 {
		t.Errorf("Discarded = %d, want 0", obs.Discarded)
	}
}
