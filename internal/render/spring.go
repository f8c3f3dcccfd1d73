package render

import (
	"math"
	"time"

	"github.com/dooshek/micscope/internal/chart"
)

const (
	// DefaultStiffness of the bounds animation
	DefaultStiffness = 50.0

	// boundsPadding keeps the trace off the top and bottom edges
	boundsPadding = 1.0
)

// Spring is a critically damped spring chasing a target value. It is solved in
// closed form, so any step size is stable.
type Spring struct {
	omega    float64
	value    float64
	velocity float64
	target   float64
	primed   bool
}

// NewSpring creates a spring with the given stiffness (unit mass).
func NewSpring(stiffness float64) *Spring {
	if stiffness <= 0 {
		stiffness = DefaultStiffness
	}
	return &Spring{omega: math.Sqrt(stiffness)}
}

// SetTarget moves the rest position. The first target is adopted immediately.
func (s *Spring) SetTarget(target float64) {
	if !s.primed {
		s.Snap(target)
		return
	}
	s.target = target
}

// Snap jumps to v and stops.
func (s *Spring) Snap(v float64) {
	s.value = v
	s.target = v
	s.velocity = 0
	s.primed = true
}

// Step advances the spring by dt and returns the new value.
func (s *Spring) Step(dt time.Duration) float64 {
	t := dt.Seconds()
	if t <= 0 {
		return s.value
	}

	x0 := s.value - s.target
	b := s.velocity + s.omega*x0
	decay := math.Exp(-s.omega * t)

	s.value = s.target + (x0+b*t)*decay
	s.velocity = (s.velocity - s.omega*b*t) * decay
	return s.value
}

func (s *Spring) Value() float64 {
	return s.value
}

func (s *Spring) Target() float64 {
	return s.target
}

// BoundsSmoother animates the displayed y range towards the manager's bounds.
type BoundsSmoother struct {
	min *Spring
	max *Spring
}

func NewBoundsSmoother(stiffness float64) *BoundsSmoother {
	return &BoundsSmoother{min: NewSpring(stiffness), max: NewSpring(stiffness)}
}

// Update retargets both springs to the padded bounds and advances them by dt.
func (bs *BoundsSmoother) Update(b chart.Bounds, dt time.Duration) chart.Bounds {
	bs.min.SetTarget(b.MinY - boundsPadding)
	bs.max.SetTarget(b.MaxY + boundsPadding)
	return chart.Bounds{MinY: bs.min.Step(dt), MaxY: bs.max.Step(dt)}
}

// Current returns the displayed range without advancing time.
func (bs *BoundsSmoother) Current() chart.Bounds {
	return chart.Bounds{MinY: bs.min.Value(), MaxY: bs.max.Value()}
}
