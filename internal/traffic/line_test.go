package traffic

import (
	"math"
	"testing"
)

func horizontalLine(y float64) *ViolationLine {
	return &ViolationLine{A: Point{X: 100, Y: y}, B: Point{X: 500, Y: y}, Tolerance: 15}
}

func TestViolationLineSide(t *testing.T) {
	line := horizontalLine(320)

	if got := line.side(Point{X: 220, Y: 300}); got != -1 {
		t.Errorf("side(above) = %d, want -1", got)
	}
	if got := line.side(Point{X: 220, Y: 340}); got != 1 {
		t.Errorf("side(below) = %d, want 1", got)
	}
	if got := line.side(Point{X: 220, Y: 320}); got != 0 {
		t.Errorf("side(on line) = %d, want 0", got)
	}
}

func TestViolationLineCrossingPoint(t *testing.T) {
	line := horizontalLine(320)

	// Straight down through the segment interior.
	hit, ok := line.crossingPoint(Point{X: 220, Y: 300}, Point{X: 220, Y: 340})
	if !ok {
		t.Fatal("expected a crossing inside the segment")
	}
	if hit.X != 220 || hit.Y != 320 {
		t.Errorf("crossing at %+v, want (220, 320)", hit)
	}

	// Just past endpoint B but inside the lateral tolerance band.
	if _, ok := line.crossingPoint(Point{X: 510, Y: 300}, Point{X: 510, Y: 340}); !ok {
		t.Error("expected crossing 10px past B to pass with tolerance 15")
	}

	// Beyond the tolerance band.
	if _, ok := line.crossingPoint(Point{X: 520, Y: 300}, Point{X: 520, Y: 340}); ok {
		t.Error("expected crossing 20px past B to fail with tolerance 15")
	}

	// Movement parallel to the line.
	if _, ok := line.crossingPoint(Point{X: 200, Y: 300}, Point{X: 260, Y: 300}); ok {
		t.Error("expected parallel movement to produce no crossing")
	}

	// Movement that stops short of the line.
	if _, ok := line.crossingPoint(Point{X: 220, Y: 280}, Point{X: 220, Y: 310}); ok {
		t.Error("expected movement ending above the line to produce no crossing")
	}
}

func redLightConfig(line *ViolationLine) LineEngineConfig {
	config := DefaultLineEngineConfig()
	config.Configured = line
	return config
}

var (
	redLight   = LightState{Color: LightRed, Confidence: 0.9}
	greenLight = LightState{Color: LightGreen, Confidence: 0.9}
	noLight    = LightState{Color: LightUnknown}
)

func TestLineEngine_ConfiguredLineEstablished(t *testing.T) {
	engine := NewLineEngine(redLightConfig(&ViolationLine{A: Point{X: 0, Y: 100}, B: Point{X: 200, Y: 100}}))
	line, ok := engine.Line()
	if !ok {
		t.Fatal("configured line should be established immediately")
	}
	if line.Tolerance != DefaultLineEngineConfig().TolerancePx {
		t.Errorf("zero tolerance should default to %v, got %v", DefaultLineEngineConfig().TolerancePx, line.Tolerance)
	}
}

func TestLineEngine_RedLightCrossing(t *testing.T) {
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))

	// Vehicle bottom centre travels 300 -> 340 between frames 49 and 50.
	track := trackWith("track_1", ClassCar, obsAt(49, BBox{X: 200, Y: 250, W: 40, H: 50}))

	engine.ObserveFrame(49, Observations{}, redLight, nil)
	if ev := engine.Evaluate(track, 49); ev != nil {
		t.Fatalf("frame 49: no crossing yet, got %+v", ev)
	}

	appendObs(track, 50, BBox{X: 200, Y: 290, W: 40, H: 50})
	engine.ObserveFrame(50, Observations{}, redLight, nil)
	ev := engine.Evaluate(track, 50)
	if ev == nil {
		t.Fatal("frame 50: expected a red-light event")
	}
	if ev.Kind != ViolationRedLight {
		t.Errorf("kind = %v, want %v", ev.Kind, ViolationRedLight)
	}
	if ev.FrameIndex != 50 {
		t.Errorf("frame index = %d, want 50", ev.FrameIndex)
	}
	if ev.TrackID != "track_1" || ev.VehicleClass != ClassCar {
		t.Errorf("event identity wrong: %+v", ev)
	}
	if ev.Confidence != 0.9 {
		t.Errorf("confidence = %v, want the light confidence 0.9", ev.Confidence)
	}
	if ev.Crossing == nil || ev.Crossing.X != 220 || ev.Crossing.Y != 320 {
		t.Errorf("crossing = %+v, want (220, 320)", ev.Crossing)
	}

	// Frame 51: still on the far side; the track's event budget is spent.
	appendObs(track, 51, BBox{X: 200, Y: 330, W: 40, H: 50})
	engine.ObserveFrame(51, Observations{}, redLight, nil)
	if ev := engine.Evaluate(track, 51); ev != nil {
		t.Errorf("frame 51: expected no repeat event, got %+v", ev)
	}
}

func TestLineEngine_GreenCrossingKeepsBudget(t *testing.T) {
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))

	track := trackWith("track_1", ClassCar, obsAt(1, BBox{X: 200, Y: 250, W: 40, H: 50}))
	engine.ObserveFrame(1, Observations{}, greenLight, nil)
	engine.Evaluate(track, 1)

	// Lawful crossing on green: no event.
	appendObs(track, 2, BBox{X: 200, Y: 290, W: 40, H: 50})
	engine.ObserveFrame(2, Observations{}, greenLight, nil)
	if ev := engine.Evaluate(track, 2); ev != nil {
		t.Fatalf("green crossing produced an event: %+v", ev)
	}

	// The same track re-crosses on red later and still owes its one event.
	appendObs(track, 3, BBox{X: 200, Y: 250, W: 40, H: 50})
	engine.ObserveFrame(3, Observations{}, redLight, nil)
	if ev := engine.Evaluate(track, 3); ev == nil {
		t.Error("red re-crossing should produce the track's event")
	}
}

func TestLineEngine_RedLagWindow(t *testing.T) {
	// Red seen at frame 48 and then occluded; crossing completes at frame 50
	// within the 2-frame lag.
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))
	track := trackWith("track_1", ClassCar, obsAt(48, BBox{X: 200, Y: 250, W: 40, H: 50}))

	engine.ObserveFrame(48, Observations{}, redLight, nil)
	engine.Evaluate(track, 48)
	appendObs(track, 49, BBox{X: 200, Y: 255, W: 40, H: 50})
	engine.ObserveFrame(49, Observations{}, noLight, nil)
	engine.Evaluate(track, 49)
	appendObs(track, 50, BBox{X: 200, Y: 290, W: 40, H: 50})
	engine.ObserveFrame(50, Observations{}, noLight, nil)
	if ev := engine.Evaluate(track, 50); ev == nil {
		t.Error("expected red within the lag window to gate the crossing")
	}
}

func TestLineEngine_RedOutsideLagWindow(t *testing.T) {
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))
	track := trackWith("track_1", ClassCar, obsAt(47, BBox{X: 200, Y: 250, W: 40, H: 50}))

	engine.ObserveFrame(47, Observations{}, redLight, nil)
	engine.Evaluate(track, 47)
	for f := int64(48); f <= 49; f++ {
		appendObs(track, f, BBox{X: 200, Y: 250 + float64(f-47)*2, W: 40, H: 50})
		engine.ObserveFrame(f, Observations{}, noLight, nil)
		engine.Evaluate(track, f)
	}
	appendObs(track, 50, BBox{X: 200, Y: 290, W: 40, H: 50})
	engine.ObserveFrame(50, Observations{}, noLight, nil)
	if ev := engine.Evaluate(track, 50); ev != nil {
		t.Errorf("red 3 frames back is outside the 2-frame lag, got %+v", ev)
	}
}

func TestLineEngine_LowConfidenceRedIgnored(t *testing.T) {
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))
	track := trackWith("track_1", ClassCar, obsAt(1, BBox{X: 200, Y: 250, W: 40, H: 50}))

	weakRed := LightState{Color: LightRed, Confidence: 0.2}
	engine.ObserveFrame(1, Observations{}, weakRed, nil)
	engine.Evaluate(track, 1)
	appendObs(track, 2, BBox{X: 200, Y: 290, W: 40, H: 50})
	engine.ObserveFrame(2, Observations{}, weakRed, nil)
	if ev := engine.Evaluate(track, 2); ev != nil {
		t.Errorf("red below the confidence gate produced an event: %+v", ev)
	}
}

func TestLineEngine_OnLineIsNotATransition(t *testing.T) {
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))
	track := trackWith("track_1", ClassCar, obsAt(1, BBox{X: 200, Y: 250, W: 40, H: 50}))

	engine.ObserveFrame(1, Observations{}, redLight, nil)
	engine.Evaluate(track, 1)

	// Bottom centre lands exactly on the line: no side yet.
	appendObs(track, 2, BBox{X: 200, Y: 270, W: 40, H: 50})
	engine.ObserveFrame(2, Observations{}, redLight, nil)
	if ev := engine.Evaluate(track, 2); ev != nil {
		t.Fatalf("sitting on the line produced an event: %+v", ev)
	}

	// Completing the move to the far side produces the event.
	appendObs(track, 3, BBox{X: 200, Y: 290, W: 40, H: 50})
	engine.ObserveFrame(3, Observations{}, redLight, nil)
	if ev := engine.Evaluate(track, 3); ev == nil {
		t.Error("expected the completed transition to produce an event")
	}
}

func TestLineEngine_NonVehicleIgnored(t *testing.T) {
	engine := NewLineEngine(redLightConfig(horizontalLine(320)))
	track := trackWith("track_1", ClassPerson,
		obsAt(1, BBox{X: 200, Y: 250, W: 40, H: 50}),
		obsAt(2, BBox{X: 200, Y: 290, W: 40, H: 50}),
	)
	engine.ObserveFrame(1, Observations{}, redLight, nil)
	engine.ObserveFrame(2, Observations{}, redLight, nil)
	if ev := engine.Evaluate(track, 2); ev != nil {
		t.Errorf("person track produced a red-light event: %+v", ev)
	}
}

func TestLineEngine_FallbackDerivation(t *testing.T) {
	config := DefaultLineEngineConfig()
	config.DerivationWindow = 5
	engine := NewLineEngine(config)

	if _, ok := engine.Line(); ok {
		t.Fatal("line established before any observation")
	}

	// Five frames of scene geometry with no stopped traffic: the line falls
	// back to the configured fraction of the observed scene height.
	obs := Observations{Vehicles: []Detection{{Class: ClassCar, BBox: BBox{X: 0, Y: 0, W: 400, H: 400}, Confidence: 0.9}}}
	for f := int64(1); f <= 5; f++ {
		engine.ObserveFrame(f, obs, noLight, nil)
	}

	line, ok := engine.Line()
	if !ok {
		t.Fatal("expected fallback line after the derivation window")
	}
	if line.A.Y != 300 || line.B.Y != 300 {
		t.Errorf("fallback line at y=%v, want 0.75 * 400 = 300", line.A.Y)
	}
	if line.A.X != 50 || line.B.X != 350 {
		t.Errorf("fallback endpoints (%v, %v), want inset 50 from [0, 400]", line.A.X, line.B.X)
	}
}

func TestLineEngine_DerivationFromStoppedTraffic(t *testing.T) {
	config := DefaultLineEngineConfig()
	config.DerivationWindow = 4
	config.MinStoppedSamples = 3
	engine := NewLineEngine(config)

	lightDet := Detection{Class: ClassTrafficLight, BBox: BBox{X: 200, Y: 0, W: 20, H: 40}, Confidence: 0.9}
	carBox := BBox{X: 300, Y: 300, W: 40, H: 50} // bottom centre y = 350
	track := trackWith("track_1", ClassCar, obsAt(1, carBox))

	for f := int64(1); f <= 4; f++ {
		if f > 1 {
			appendObs(track, f, carBox)
		}
		obs := Observations{
			Vehicles: []Detection{{Class: ClassCar, BBox: carBox, Confidence: 0.9}},
			Lights:   []Detection{lightDet},
		}
		engine.ObserveFrame(f, obs, redLight, []*Track{track})
	}

	line, ok := engine.Line()
	if !ok {
		t.Fatal("expected derived line after the window")
	}
	if math.Abs(line.A.Y-350) > 1e-9 {
		t.Errorf("derived line at y=%v, want the stopped-traffic band at 350", line.A.Y)
	}
}

func TestLineEngine_DerivationWaitsForScene(t *testing.T) {
	config := DefaultLineEngineConfig()
	config.DerivationWindow = 3
	engine := NewLineEngine(config)

	// Empty frames advance the window but give nothing to derive from.
	for f := int64(1); f <= 5; f++ {
		engine.ObserveFrame(f, Observations{}, noLight, nil)
	}
	if _, ok := engine.Line(); ok {
		t.Fatal("line derived from an empty scene")
	}

	obs := Observations{Vehicles: []Detection{{Class: ClassCar, BBox: BBox{X: 0, Y: 0, W: 200, H: 200}, Confidence: 0.9}}}
	engine.ObserveFrame(6, obs, noLight, nil)
	if _, ok := engine.Line(); !ok {
		t.Error("expected derivation once scene geometry exists")
	}
}
