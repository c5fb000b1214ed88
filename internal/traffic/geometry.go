package traffic

import "math"

// BBox is an axis-aligned pixel-space bounding box with origin at the top
// left, matching the detector's coordinate convention.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Point is a pixel-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance to p2.
func (p Point) DistanceTo(p2 Point) float64 {
	dx := p.X - p2.X
	dy := p.Y - p2.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Valid reports whether the box has positive extent and finite, non-negative
// coordinates. Intake discards anything that fails this.
func (b BBox) Valid() bool {
	for _, v := range [4]float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.W > 0 && b.H > 0 && b.X >= 0 && b.Y >= 0
}

// Area returns the box area in square pixels.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Centroid returns the box centre.
func (b BBox) Centroid() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// BottomCenter returns the midpoint of the box's bottom edge. Rule evaluators
// use it as the track reference point: for vehicles it approximates the road
// contact point.
func (b BBox) BottomCenter() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H}
}

// Intersection returns the overlap area between b and b2.
func (b BBox) Intersection(b2 BBox) float64 {
	x1 := math.Max(b.X, b2.X)
	y1 := math.Max(b.Y, b2.Y)
	x2 := math.Min(b.X+b.W, b2.X+b2.W)
	y2 := math.Min(b.Y+b.H, b2.Y+b2.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1)
}

// IoU returns intersection-over-union in [0, 1].
func (b BBox) IoU(b2 BBox) float64 {
	inter := b.Intersection(b2)
	if inter == 0 {
		return 0
	}
	union := b.Area() + b2.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ContainmentIn returns the fraction of b's area that lies inside b2.
func (b BBox) ContainmentIn(b2 BBox) float64 {
	area := b.Area()
	if area == 0 {
		return 0
	}
	return b.Intersection(b2) / area
}

// HorizontalOverlap returns the width of the horizontal range shared by the
// two boxes, in pixels.
func (b BBox) HorizontalOverlap(b2 BBox) float64 {
	x1 := math.Max(b.X, b2.X)
	x2 := math.Min(b.X+b.W, b2.X+b2.W)
	if x2 <= x1 {
		return 0
	}
	return x2 - x1
}

// AdjacentAbove reports whether b sits above b2 with horizontal overlap, with
// at most maxGap pixels of vertical separation. This is the rider-on-vehicle
// geometry: the person box typically ends where the two-wheeler box begins.
func (b BBox) AdjacentAbove(b2 BBox, maxGap float64) bool {
	if b.HorizontalOverlap(b2) <= 0 {
		return false
	}
	bottom := b.Y + b.H
	// The person's bottom edge must land near or inside the vehicle's
	// vertical span, without the person being below the vehicle.
	return bottom >= b2.Y-maxGap && b.Y < b2.Y
}

// HeadRegion returns the top fraction of the box. The helmet rule checks
// helmet coverage against this region of a person box.
func (b BBox) HeadRegion(fraction float64) BBox {
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	return BBox{X: b.X, Y: b.Y, W: b.W, H: b.H * fraction}
}

// LowerRegion returns the bottom half of the box, where a mounted plate is
// expected on a vehicle.
func (b BBox) LowerRegion() BBox {
	return BBox{X: b.X, Y: b.Y + b.H/2, W: b.W, H: b.H / 2}
}

// Expand grows the box by margin pixels on every side, clamping the origin
// at zero.
func (b BBox) Expand(margin float64) BBox {
	out := BBox{
		X: b.X - margin,
		Y: b.Y - margin,
		W: b.W + 2*margin,
		H: b.H + 2*margin,
	}
	if out.X < 0 {
		out.W += out.X
		out.X = 0
	}
	if out.Y < 0 {
		out.H += out.Y
		out.Y = 0
	}
	return out
}
