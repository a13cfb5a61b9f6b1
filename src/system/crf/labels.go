package crf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
)

// AssignINULabels labels every node and edge of the diagram and stores
// the map on the state. A node referencing a degree of freedom outside
// the CSI labels N; a transport node without a target compartment
// cannot be decided and labels U; everything else labels I. Edges
// inherit N from a forbidden endpoint pair when pair constraints are
// present.
func AssignINULabels(d *diagram.Diagram, constraints []Constraint, state *State, csi CSI) map[string]Label {
	labels := make(map[string]Label, len(d.Nodes)+len(d.Edges))

	for i := range d.Nodes {
		labels[d.Nodes[i].ID] = labelNode(&d.Nodes[i], csi)
	}

	for _, e := range d.Edges {
		labels[e.ID] = labelEdge(d, e, csi, labels)
	}

	state.INULabels = labels
	return labels
}

func labelNode(n *diagram.Node, csi CSI) Label {
	if len(csi.AllowedDofs) > 0 {
		for _, dof := range n.DofRefs {
			if !csi.allowsDof(dof) {
				return LabelN
			}
		}
	}

	switch n.Op {
	case ast.OpTransport:
		if n.Meta["target_compartment"] == "" {
			return LabelU
		}
		return LabelI
	case ast.OpAtom, ast.OpPresence, ast.OpSynthesis, ast.OpSeverance, ast.OpCollapse, ast.OpCoupling:
		return LabelI
	}
	return LabelU
}

func labelEdge(d *diagram.Diagram, e diagram.Edge, csi CSI, nodeLabels map[string]Label) Label {
	if nodeLabels[e.From] == LabelN || nodeLabels[e.To] == LabelN {
		return LabelN
	}
	if len(csi.AllowedPairs) == 0 {
		return LabelI
	}
	from := d.FindNode(e.From)
	to := d.FindNode(e.To)
	if from == nil || to == nil {
		return LabelN
	}
	for _, fd := range from.DofRefs {
		for _, td := range to.DofRefs {
			if !csi.allowsPair(fd, td) {
				return LabelN
			}
		}
	}
	return LabelI
}

// CheckAdmissible inspects the state's labels. A state containing N
// labels is not admissible; U labels leave it admissible but
// unresolved.
func CheckAdmissible(state *State) (bool, string) {
	var nIds, uIds []string
	for id, label := range state.INULabels {
		switch label {
		case LabelN:
			nIds = append(nIds, id)
		case LabelU:
			uIds = append(uIds, id)
		}
	}
	if len(nIds) > 0 {
		sort.Strings(nIds)
		return false, fmt.Sprintf("forbidden elements present: %s", strings.Join(nIds, ", "))
	}
	if len(uIds) > 0 {
		sort.Strings(uIds)
		return true, fmt.Sprintf("unresolved elements present: %s", strings.Join(uIds, ", "))
	}
	return true, "All elements admissible"
}
