package ssp

import (
	"fmt"
	"math"
)

// Role tags a processor with the mass species it carries.
type Role int

const (
	RoleI Role = iota // Informed
	RoleN             // Neutral
	RoleU             // Unresolved
)

func (r Role) String() string {
	switch r {
	case RoleI:
		return "I"
	case RoleN:
		return "N"
	case RoleU:
		return "U"
	}
	return "?"
}

// Metrics are the per-field diagnostics recomputed on CommitStep.
type Metrics struct {
	Stability  float64
	Coherence  float64
	Divergence float64
}

// Processor owns one fixed-length scalar field. Its total mass is the
// sum of the entries; every mutation keeps entries non-negative.
type Processor struct {
	role     Role
	field    []float64
	capacity float64
	step     uint64
	metrics  Metrics
}

// NewProcessor creates a field of fieldLen entries carrying totalMass,
// distributed uniformly.
func NewProcessor(role Role, fieldLen int, totalMass float64) (*Processor, error) {
	if fieldLen < 0 {
		return nil, fmt.Errorf("processor %s: negative field length %d", role, fieldLen)
	}
	if totalMass < 0 {
		return nil, fmt.Errorf("processor %s: negative total mass %f", role, totalMass)
	}
	p := &Processor{
		role:     role,
		field:    make([]float64, fieldLen),
		capacity: totalMass,
	}
	if p.capacity == 0 {
		p.capacity = 1
	}
	if fieldLen > 0 && totalMass > 0 {
		per := totalMass / float64(fieldLen)
		for i := range p.field {
			p.field[i] = per
		}
	}
	return p, nil
}

func (p *Processor) Role() Role {
	return p.role
}

func (p *Processor) Len() int {
	return len(p.field)
}

func (p *Processor) Step() uint64 {
	return p.step
}

// Field returns a copy of the field entries.
func (p *Processor) Field() []float64 {
	out := make([]float64, len(p.field))
	copy(out, p.field)
	return out
}

func (p *Processor) TotalMass() float64 {
	total := 0.0
	for _, v := range p.field {
		total += v
	}
	return total
}

// AddUniform adds x to every entry. x must be non-negative.
func (p *Processor) AddUniform(x float64) error {
	if x < 0 {
		return fmt.Errorf("processor %s: add_uniform with negative amount %f", p.role, x)
	}
	for i := range p.field {
		p.field[i] += x
	}
	return nil
}

// ScaleAll multiplies every entry by k. k must be non-negative.
func (p *Processor) ScaleAll(k float64) error {
	if k < 0 {
		return fmt.Errorf("processor %s: scale_all with negative factor %f", p.role, k)
	}
	for i := range p.field {
		p.field[i] *= k
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RouteTo transfers field[i]*clamp(mask[i],0,1)*rate from p to other at
// every index. Mask entries outside [0,1] are clamped, never an error;
// the same delta leaves p and enters other, so the pair conserves
// exactly.
func (p *Processor) RouteTo(other *Processor, mask []float64, rate float64) error {
	if other == nil {
		return fmt.Errorf("processor %s: route_to requires a destination", p.role)
	}
	if len(mask) != len(p.field) {
		return fmt.Errorf("processor %s: mask length %d does not match field length %d", p.role, len(mask), len(p.field))
	}
	if len(other.field) != len(p.field) {
		return fmt.Errorf("processor %s: destination field length %d does not match %d", p.role, len(other.field), len(p.field))
	}
	if rate < 0 || rate > 1 {
		return fmt.Errorf("processor %s: route rate %f outside [0,1]", p.role, rate)
	}
	for i := range p.field {
		delta := p.field[i] * clamp01(mask[i]) * rate
		p.field[i] -= delta
		other.field[i] += delta
	}
	return nil
}

// CommitStep advances the step counter and recomputes the per-field
// metrics: stability is the headroom against capacity, coherence falls
// with variance, divergence is the mean neighbor delta.
func (p *Processor) CommitStep() {
	p.step++
	p.metrics = p.computeMetrics()
}

func (p *Processor) Metrics() Metrics {
	return p.metrics
}

func (p *Processor) computeMetrics() Metrics {
	n := len(p.field)
	if n == 0 {
		return Metrics{Stability: 1, Coherence: 1}
	}

	total := p.TotalMass()
	load := total / p.capacity
	stability := 1 - clamp01(load)

	mean := total / float64(n)
	variance := 0.0
	for _, v := range p.field {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(n)
	coherence := 1 / (1 + variance)

	divergence := 0.0
	if n > 1 {
		for i := 0; i < n-1; i++ {
			divergence += math.Abs(p.field[i+1] - p.field[i])
		}
		divergence /= float64(n - 1)
	}

	return Metrics{Stability: stability, Coherence: coherence, Divergence: divergence}
}
