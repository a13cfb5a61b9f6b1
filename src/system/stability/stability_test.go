package stability

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/crf"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

func buildDiagram(t *testing.T, text string) *diagram.Diagram {
	t.Helper()
	expr, err := ast.Parse(text)
	require.NoError(t, err)
	d, err := diagram.FromExpr(expr, "d0")
	require.NoError(t, err)
	return d
}

func TestComputeMetricsCounts(t *testing.T) {
	d := buildDiagram(t, "C(O(P(a)), T(P(b)))")
	tNodeID := ""
	for i := range d.Nodes {
		if d.Nodes[i].Op == ast.OpTransport {
			tNodeID = d.Nodes[i].ID
			d.Nodes[i].Meta = map[string]string{"target_compartment": "comp_b"}
		}
	}
	require.NotEmpty(t, tNodeID)

	state := crf.NewState("s0", "d0", "")
	crf.AssignINULabels(d, nil, state, crf.CSI{})

	m := ComputeMetrics(d, state)
	require.Equal(t, 7, m.NodeCount)
	require.Equal(t, 1, m.CollapseCount)
	require.InDelta(t, 1.0/7.0, m.CollapseRatio, 1e-9)
	require.Equal(t, 1, m.CouplingCount)
	require.Equal(t, 1, m.TransportCount)
	require.True(t, m.TransportFidelityDefined)
	require.InDelta(t, 1.0, m.TransportFidelity, 1e-9)
}

func TestTransportFidelityUndefinedWithoutTransportNodes(t *testing.T) {
	d := buildDiagram(t, "P(a)")
	state := crf.NewState("s0", "d0", "")
	m := ComputeMetrics(d, state)
	require.False(t, m.TransportFidelityDefined)
}

func TestCheckLoopConvergence(t *testing.T) {
	state := crf.NewState("s0", "d0", "")

	ok, msg := CheckLoopConvergence(state, 0.1)
	require.False(t, ok)
	require.Contains(t, msg, "insufficient")

	state.PushHistory(map[string]crf.Label{"n1": crf.LabelI, "n2": crf.LabelU})
	ok, _ = CheckLoopConvergence(state, 0.1)
	require.False(t, ok, "single entry history must not converge")

	state.PushHistory(map[string]crf.Label{"n1": crf.LabelI, "n2": crf.LabelU})
	ok, _ = CheckLoopConvergence(state, 0.1)
	require.True(t, ok, "identical last two entries converge")

	state.PushHistory(map[string]crf.Label{"n1": crf.LabelN, "n2": crf.LabelN})
	ok, _ = CheckLoopConvergence(state, 0.1)
	require.False(t, ok, "full label flip exceeds tolerance")
}

func TestLoopGainFromHistory(t *testing.T) {
	d := buildDiagram(t, "P(a)")
	state := crf.NewState("s0", "d0", "")
	state.PushHistory(map[string]crf.Label{"n1": crf.LabelI, "n2": crf.LabelI})
	state.PushHistory(map[string]crf.Label{"n1": crf.LabelI, "n2": crf.LabelN})

	m := ComputeMetrics(d, state)
	require.True(t, m.LoopGainDefined)
	require.InDelta(t, 0.5, m.LoopGain, 1e-9)
}

func TestIsStructurallyStableNoRewrites(t *testing.T) {
	d := buildDiagram(t, "O(P(a))")
	state := crf.NewState("s0", "d0", "")
	crf.AssignINULabels(d, nil, state, crf.CSI{})
	reg := crf.NewPredicateRegistry()

	// rule pattern matches nothing in the diagram
	rules := []rewrite.Rule{{ID: "r1", Pattern: "C($a, $b)", Replacement: "T($a)"}}
	stable, met, _ := IsStructurallyStable(d, state, crf.CSI{}, nil, rules, reg, 0.1, false)
	require.True(t, stable)
	require.Contains(t, met, "no_admissible_rewrites")
}

func TestIsStructurallyStableRequireAll(t *testing.T) {
	d := buildDiagram(t, "P(a)")
	state := crf.NewState("s0", "d0", "")
	crf.AssignINULabels(d, nil, state, crf.CSI{})
	reg := crf.NewPredicateRegistry()

	// a matching, authorized rule exists and the loop history is empty:
	// any-of mode still passes via transport invariance, all-of fails
	rules := []rewrite.Rule{{ID: "r1", Pattern: "P($x)", Replacement: "O($x)"}}
	stable, _, _ := IsStructurallyStable(d, state, crf.CSI{}, nil, rules, reg, 0.1, false)
	require.True(t, stable)

	stable, _, _ = IsStructurallyStable(d, state, crf.CSI{}, nil, rules, reg, 0.1, true)
	require.False(t, stable)
}
