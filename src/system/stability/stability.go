package stability

import (
	"fmt"
	"strings"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/crf"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

// Metrics aggregates the structural diagnostics of one diagram/state
// snapshot.
type Metrics struct {
	NodeCount      int
	CollapseCount  int
	CollapseRatio  float64
	CouplingCount  int
	GradientCohere float64
	TransportCount int
	// TransportFidelity is meaningless without transport nodes;
	// Defined distinguishes "all fine" from "nothing to check".
	TransportFidelity        float64
	TransportFidelityDefined bool
	LoopGain                 float64
	LoopGainDefined          bool

	AdmissibleCount int
	ExcludedCount   int
	UnresolvedCount int
}

// ComputeMetrics derives the aggregate metrics from the diagram and the
// state's labels and loop history.
func ComputeMetrics(d *diagram.Diagram, state *crf.State) Metrics {
	var m Metrics
	m.NodeCount = len(d.Nodes)

	var transportWithTarget int
	for _, n := range d.Nodes {
		switch n.Op {
		case ast.OpCollapse:
			m.CollapseCount++
		case ast.OpCoupling:
			m.CouplingCount++
		case ast.OpTransport:
			m.TransportCount++
			if n.Meta["target_compartment"] != "" {
				transportWithTarget++
			}
		}
	}
	if m.NodeCount > 0 {
		m.CollapseRatio = float64(m.CollapseCount) / float64(m.NodeCount)
		m.GradientCohere = float64(m.CouplingCount) / float64(m.NodeCount)
	}
	if m.TransportCount > 0 {
		m.TransportFidelity = float64(transportWithTarget) / float64(m.TransportCount)
		m.TransportFidelityDefined = true
	}

	for _, label := range state.INULabels {
		switch label {
		case crf.LabelI:
			m.AdmissibleCount++
		case crf.LabelN:
			m.ExcludedCount++
		case crf.LabelU:
			m.UnresolvedCount++
		}
	}

	if len(state.LoopHistory) >= 2 {
		m.LoopGain = labelDiffFraction(
			state.LoopHistory[len(state.LoopHistory)-2],
			state.LoopHistory[len(state.LoopHistory)-1],
		)
		m.LoopGainDefined = true
	}

	return m
}

// labelDiffFraction is the fraction of differing labels over the union
// of keys of both maps.
func labelDiffFraction(prev map[string]crf.Label, cur map[string]crf.Label) float64 {
	keys := make(map[string]bool, len(prev)+len(cur))
	for k := range prev {
		keys[k] = true
	}
	for k := range cur {
		keys[k] = true
	}
	if len(keys) == 0 {
		return 0
	}
	changed := 0
	for k := range keys {
		pv, pok := prev[k]
		cv, cok := cur[k]
		if !pok || !cok || pv != cv {
			changed++
		}
	}
	return float64(changed) / float64(len(keys))
}

// CheckLoopConvergence compares the last two loop history entries. A
// history shorter than two entries cannot converge.
func CheckLoopConvergence(state *crf.State, tolerance float64) (bool, string) {
	if len(state.LoopHistory) < 2 {
		return false, "insufficient loop history"
	}
	frac := labelDiffFraction(
		state.LoopHistory[len(state.LoopHistory)-2],
		state.LoopHistory[len(state.LoopHistory)-1],
	)
	if frac <= tolerance {
		return true, fmt.Sprintf("converged: %.4f of labels changed", frac)
	}
	return false, fmt.Sprintf("not converged: %.4f of labels changed", frac)
}

// IsStructurallyStable evaluates the stability conditions: no rule is
// both matching and authorized, the admissible region is transport
// invariant, the rule set only contains identity rules, or the label
// loop has converged. With requireAll every condition must hold, the
// default accepts any one of them.
func IsStructurallyStable(
	d *diagram.Diagram,
	state *crf.State,
	csi crf.CSI,
	constraints []crf.Constraint,
	rules []rewrite.Rule,
	reg *crf.PredicateRegistry,
	tolerance float64,
	requireAll bool,
) (bool, []string, string) {
	var met []string
	var missed []string

	record := func(name string, ok bool) {
		if ok {
			met = append(met, name)
		} else {
			missed = append(missed, name)
		}
	}

	record("no_admissible_rewrites", noAdmissibleRewrites(d, state, csi, constraints, rules, reg))
	record("transport_invariant", transportInvariant(d, state))
	record("identity_only_rules", identityOnlyRules(rules))
	converged, _ := CheckLoopConvergence(state, tolerance)
	record("loop_convergence", converged)

	var stable bool
	if requireAll {
		stable = len(missed) == 0
	} else {
		stable = len(met) > 0
	}

	summary := fmt.Sprintf("met [%s] missed [%s]", strings.Join(met, ", "), strings.Join(missed, ", "))
	return stable, met, summary
}

func noAdmissibleRewrites(d *diagram.Diagram, state *crf.State, csi crf.CSI, constraints []crf.Constraint, rules []rewrite.Rule, reg *crf.PredicateRegistry) bool {
	for _, rule := range rules {
		pattern, err := ast.Parse(rule.Pattern)
		if err != nil {
			continue
		}
		if _, ok := rewrite.FindMatch(d, pattern); !ok {
			continue
		}
		probe := state.Clone()
		allowed, _ := crf.AuthorizeRewrite(reg, constraints, probe, d, csi, rule)
		if allowed {
			return false
		}
	}
	return true
}

func transportInvariant(d *diagram.Diagram, state *crf.State) bool {
	for _, n := range d.Nodes {
		if n.Op == ast.OpTransport && n.Meta["target_compartment"] == "" {
			return false
		}
	}
	for _, label := range state.INULabels {
		if label == crf.LabelU {
			return false
		}
	}
	return true
}

func identityOnlyRules(rules []rewrite.Rule) bool {
	if len(rules) == 0 {
		return true
	}
	for _, rule := range rules {
		pattern, perr := ast.Parse(rule.Pattern)
		replacement, rerr := ast.Parse(rule.Replacement)
		if perr != nil || rerr != nil {
			return false
		}
		if !pattern.Equal(replacement) {
			return false
		}
	}
	return true
}
