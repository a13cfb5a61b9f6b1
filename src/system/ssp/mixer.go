package ssp

import (
	"fmt"
	"math"
)

// MaxScaleFactor bounds the corrective scaling the mixer may apply to
// the U field in one step. Exceeding it is a hard error, not a clamp.
const MaxScaleFactor = 10.0

// ConservationError reports a step after which the three field totals
// drifted further from the budget than eps_conservation allows, or a
// drift the mixer could not correct within its bounds.
type ConservationError struct {
	Current float64
	Target  float64
	Eps     float64
	Reason  string
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("conservation violated: total %f vs target %f (eps %g): %s", e.Current, e.Target, e.Eps, e.Reason)
}

// ScaleCapError reports a corrective scale factor above MaxScaleFactor.
type ScaleCapError struct {
	Factor float64
	Cap    float64
}

func (e *ScaleCapError) Error() string {
	return fmt.Sprintf("corrective scale factor %f exceeds cap %f", e.Factor, e.Cap)
}

// CollapseRefusedError reports a collapse request whose epsilon guard
// failed. The step performs no work in that case.
type CollapseRefusedError struct {
	UMass   float64
	Epsilon float64
}

func (e *CollapseRefusedError) Error() string {
	return fmt.Sprintf("collapse refused: U mass %f below requested epsilon %f", e.UMass, e.Epsilon)
}

// MixerConfig carries the numeric tolerances of the conservation loop.
// Zero values fall back to defaults.
type MixerConfig struct {
	EpsConservation float64
	EpsDelta        float64
	KStable         int
	EmaAlpha        float64
}

// MixerMetrics is the post-step diagnostic snapshot.
type MixerMetrics struct {
	ConservationError float64
	CollapseRatio     float64
	LoopGain          float64
	TransportReady    bool
	Steps             int
}

// Mixer enforces the shared mass budget across exactly three
// processors (I, N, U). A collapse request is a one-shot flag consumed
// by the next Step.
type Mixer struct {
	target float64
	cfg    MixerConfig

	pendingCollapse bool
	collapseAlpha   float64
	collapseEps     float64

	initialized bool
	initialU    float64
	prevI       float64
	prevN       float64
	prevU       float64
	stableSteps int
	metrics     MixerMetrics
}

func NewMixer(totalMass float64, cfg MixerConfig) (*Mixer, error) {
	if totalMass <= 0 {
		return nil, fmt.Errorf("mixer: total mass budget must be positive, got %f", totalMass)
	}
	if cfg.EpsConservation <= 0 {
		cfg.EpsConservation = 1e-6
	}
	if cfg.EpsDelta <= 0 {
		cfg.EpsDelta = 1e-3
	}
	if cfg.KStable <= 0 {
		cfg.KStable = 3
	}
	if cfg.EmaAlpha <= 0 || cfg.EmaAlpha > 1 {
		cfg.EmaAlpha = 0.2
	}
	return &Mixer{target: totalMass, cfg: cfg}, nil
}

func (m *Mixer) Target() float64 {
	return m.target
}

func (m *Mixer) Metrics() MixerMetrics {
	return m.metrics
}

// RequestCollapse arms the one-shot collapse: the next Step moves an
// alpha fraction of U, half into I and half into N, provided U still
// carries at least epsilon mass.
func (m *Mixer) RequestCollapse(alpha float64, epsilon float64) {
	m.pendingCollapse = true
	m.collapseAlpha = clamp01(alpha)
	m.collapseEps = epsilon
}

// Step runs one conservation pass: consume a pending collapse, correct
// numeric drift against the budget within bounds, verify conservation,
// update the stability tracking and commit all three processors.
func (m *Mixer) Step(pi *Processor, pn *Processor, pu *Processor) error {
	if err := m.checkTriple(pi, pn, pu); err != nil {
		return err
	}

	if !m.initialized {
		m.initialU = pu.TotalMass()
		m.prevI = pi.TotalMass()
		m.prevN = pn.TotalMass()
		m.prevU = pu.TotalMass()
		m.initialized = true
	}

	if m.pendingCollapse {
		m.pendingCollapse = false
		uMass := pu.TotalMass()
		if uMass < m.collapseEps {
			return &CollapseRefusedError{UMass: uMass, Epsilon: m.collapseEps}
		}
		for i := range pu.field {
			moved := pu.field[i] * m.collapseAlpha
			pu.field[i] -= moved
			pi.field[i] += moved / 2
			pn.field[i] += moved / 2
		}
	}

	if err := m.correctDrift(pi, pn, pu); err != nil {
		return err
	}

	total := pi.TotalMass() + pn.TotalMass() + pu.TotalMass()
	consErr := math.Abs(total - m.target)
	if consErr > m.cfg.EpsConservation {
		return &ConservationError{Current: total, Target: m.target, Eps: m.cfg.EpsConservation, Reason: "post-correction drift"}
	}

	m.updateStability(pi, pn, pu, consErr)

	pi.CommitStep()
	pn.CommitStep()
	pu.CommitStep()
	return nil
}

func (m *Mixer) checkTriple(pi *Processor, pn *Processor, pu *Processor) error {
	if pi == nil || pn == nil || pu == nil {
		return fmt.Errorf("mixer: step requires all three processors")
	}
	if pi.role != RoleI || pn.role != RoleN || pu.role != RoleU {
		return fmt.Errorf("mixer: role mismatch %s/%s/%s", pi.role, pn.role, pu.role)
	}
	if pi.Len() != pn.Len() || pn.Len() != pu.Len() {
		return fmt.Errorf("mixer: field lengths differ %d/%d/%d", pi.Len(), pn.Len(), pu.Len())
	}
	return nil
}

// correctDrift pulls the running total back onto the budget using the
// U field as the slack reservoir. Excess beyond what U can absorb, or
// a deficit requiring more than MaxScaleFactor amplification, is a
// hard error.
func (m *Mixer) correctDrift(pi *Processor, pn *Processor, pu *Processor) error {
	total := pi.TotalMass() + pn.TotalMass() + pu.TotalMass()
	diff := total - m.target
	if math.Abs(diff) <= m.cfg.EpsConservation/2 {
		return nil
	}

	uMass := pu.TotalMass()
	if diff > 0 {
		if uMass < diff {
			return &ConservationError{Current: total, Target: m.target, Eps: m.cfg.EpsConservation, Reason: "excess exceeds U reservoir"}
		}
		return pu.ScaleAll((uMass - diff) / uMass)
	}

	deficit := -diff
	if uMass <= 0 {
		if pu.Len() == 0 {
			return &ConservationError{Current: total, Target: m.target, Eps: m.cfg.EpsConservation, Reason: "deficit with empty U field"}
		}
		return pu.AddUniform(deficit / float64(pu.Len()))
	}
	factor := (uMass + deficit) / uMass
	if factor > MaxScaleFactor {
		return &ScaleCapError{Factor: factor, Cap: MaxScaleFactor}
	}
	return pu.ScaleAll(factor)
}

func (m *Mixer) updateStability(pi *Processor, pn *Processor, pu *Processor, consErr float64) {
	iMass := pi.TotalMass()
	nMass := pn.TotalMass()
	uMass := pu.TotalMass()

	delta := (math.Abs(iMass-m.prevI) + math.Abs(nMass-m.prevN) + math.Abs(uMass-m.prevU)) / m.target
	m.metrics.LoopGain = m.cfg.EmaAlpha*delta + (1-m.cfg.EmaAlpha)*m.metrics.LoopGain

	if delta <= m.cfg.EpsDelta {
		m.stableSteps++
	} else {
		m.stableSteps = 0
	}
	m.metrics.TransportReady = m.stableSteps >= m.cfg.KStable

	if m.initialU > 0 {
		m.metrics.CollapseRatio = clamp01(1 - uMass/m.initialU)
	}
	m.metrics.ConservationError = consErr
	m.metrics.Steps++

	m.prevI = iMass
	m.prevN = nMass
	m.prevU = uMass
}
