package wheel

import (
	"fmt"
	"math"
)

// PointerAngle is where the fixed pointer sits, in wheel degrees. 0° is the
// +x axis and angles grow clockwise as in SVG, so 270° is the top.
const PointerAngle = 270.0

const (
	maxLabelRunes  = 10
	keptLabelRunes = 8
)

// Layout describes where the wheel is drawn
type Layout struct {
	CenterX     float64 `json:"centerX"`
	CenterY     float64 `json:"centerY"`
	Radius      float64 `json:"radius"`
	LabelFactor float64 `json:"labelFactor"` // label distance from center as a fraction of Radius
}

// DefaultLayout is a 400x400 viewport with a 150 radius wheel
func DefaultLayout() Layout {
	return Layout{CenterX: 200, CenterY: 200, Radius: 150, LabelFactor: 0.7}
}

// Segment is one candidate's wedge on the wheel
type Segment struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	Label         string  `json:"label"`
	StartAngle    float64 `json:"startAngle"`
	EndAngle      float64 `json:"endAngle"`
	MidAngle      float64 `json:"midAngle"`
	Path          string  `json:"path"`
	LabelX        float64 `json:"labelX"`
	LabelY        float64 `json:"labelY"`
	LabelRotation float64 `json:"labelRotation"`
}

// SegmentAngle returns the angular width of each of n segments
func SegmentAngle(n int) float64 {
	if n <= 0 {
		return 0
	}
	return 360 / float64(n)
}

// MidAngle returns the midpoint of segment i out of n
func MidAngle(i, n int) float64 {
	return (float64(i) + 0.5) * SegmentAngle(n)
}

// Segments lays out names in the given order, one equal wedge each
func (l Layout) Segments(names []string) []Segment {
	n := len(names)
	if n == 0 {
		return nil
	}

	width := SegmentAngle(n)
	segments := make([]Segment, 0, n)
	for i, name := range names {
		start := float64(i) * width
		end := float64(i+1) * width
		mid := (start + end) / 2

		lx, ly := l.project(mid, l.Radius*l.LabelFactor)
		segments = append(segments, Segment{
			Index:         i,
			Name:          name,
			Label:         TruncateLabel(name),
			StartAngle:    start,
			EndAngle:      end,
			MidAngle:      mid,
			Path:          l.wedgePath(start, end, n),
			LabelX:        round(lx),
			LabelY:        round(ly),
			LabelRotation: mid,
		})
	}
	return segments
}

// project converts a wheel angle in degrees to a point at distance r from the center
func (l Layout) project(deg, r float64) (float64, float64) {
	rad := deg * math.Pi / 180
	return l.CenterX + r*math.Cos(rad), l.CenterY + r*math.Sin(rad)
}

func (l Layout) wedgePath(start, end float64, n int) string {
	if n == 1 {
		// a single wedge is the whole disc; SVG arcs cannot start and end on the same point
		top := l.CenterY - l.Radius
		bottom := l.CenterY + l.Radius
		return fmt.Sprintf("M %g %g A %g %g 0 1 1 %g %g A %g %g 0 1 1 %g %g Z",
			round(l.CenterX), round(top),
			round(l.Radius), round(l.Radius), round(l.CenterX), round(bottom),
			round(l.Radius), round(l.Radius), round(l.CenterX), round(top))
	}

	x1, y1 := l.project(start, l.Radius)
	x2, y2 := l.project(end, l.Radius)
	largeArc := 0
	if end-start > 180 {
		largeArc = 1
	}
	return fmt.Sprintf("M %g %g L %g %g A %g %g 0 %d 1 %g %g Z",
		round(l.CenterX), round(l.CenterY),
		round(x1), round(y1),
		round(l.Radius), round(l.Radius), largeArc,
		round(x2), round(y2))
}

// TruncateLabel shortens names longer than ten characters to eight plus an ellipsis
func TruncateLabel(name string) string {
	runes := []rune(name)
	if len(runes) <= maxLabelRunes {
		return name
	}
	return string(runes[:keptLabelRunes]) + "..."
}

// LandingIndex returns the segment under the pointer after the wheel has been
// rotated clockwise by rotation degrees
func LandingIndex(rotation float64, n int) int {
	if n <= 0 {
		return -1
	}
	at := normalize(PointerAngle - rotation)
	idx := int(math.Floor(at / SegmentAngle(n)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// normalize maps an angle into [0, 360)
func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

func round(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		return 0
	}
	return r
}
