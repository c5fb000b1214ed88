package traffic

import (
	kalman "github.com/LdDl/kalman-filter"
)

// Kalman filter noise parameters for centroid prediction. Tuned for
// pixel-space vehicle motion at typical camera frame rates.
const (
	kalmanAccelX     = 1.0
	kalmanAccelY     = 1.0
	kalmanStdDevA    = 2.0
	kalmanStdDevMx   = 0.1
	kalmanStdDevMy   = 0.1
	defaultFrameStep = 1.0 / 25.0
)

// centroidPredictor smooths a track's centroid with a constant-acceleration
// 2D Kalman filter and projects it one frame ahead for association gating.
// The raw detector boxes in track history are never altered; prediction only
// informs matching.
type centroidPredictor struct {
	filter    *kalman.Kalman2D
	predicted Point
	primed    bool
}

func newCentroidPredictor(start Point, frameIntervalSec float64) *centroidPredictor {
	dt := frameIntervalSec
	if dt <= 0 {
		dt = defaultFrameStep
	}
	return &centroidPredictor{
		filter: kalman.NewKalman2D(dt, kalmanAccelX, kalmanAccelY,
			kalmanStdDevA, kalmanStdDevMx, kalmanStdDevMy,
			kalman.WithState2D(start.X, start.Y)),
	}
}

// predict advances the filter one step and caches the projected centroid.
func (p *centroidPredictor) predict() Point {
	p.filter.Predict()
	x, y := p.filter.GetState()
	p.predicted = Point{X: x, Y: y}
	p.primed = true
	return p.predicted
}

// correct folds a matched measurement back into the filter state. On a
// singular update the raw measurement stands.
func (p *centroidPredictor) correct(measured Point) Point {
	if err := p.filter.Update(measured.X, measured.Y); err != nil {
		p.predicted = measured
		return measured
	}
	x, y := p.filter.GetState()
	p.predicted = Point{X: x, Y: y}
	return p.predicted
}
