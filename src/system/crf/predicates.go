package crf

import (
	"fmt"
	"strings"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

// Predicate evaluates one named condition against the diagram/state.
type Predicate func(d *diagram.Diagram, state *State, csi CSI) (bool, string)

// PredicateRegistry maps constraint predicate names to their
// implementations. New returns a registry preloaded with the built-in
// predicates; callers may Register their own.
type PredicateRegistry struct {
	preds map[string]Predicate
}

func NewPredicateRegistry() *PredicateRegistry {
	r := &PredicateRegistry{preds: map[string]Predicate{}}
	r.Register("no_cross_csi_interaction", predNoCrossCSIInteraction)
	r.Register("collapse_irreversible", predCollapseIrreversible)
	r.Register("no_cycles", predNoCycles)
	r.Register("valid_compartment_transitions", predValidCompartmentTransitions)
	return r
}

func (r *PredicateRegistry) Register(name string, p Predicate) {
	r.preds[name] = p
}

func (r *PredicateRegistry) Get(name string) (Predicate, bool) {
	p, ok := r.preds[name]
	return p, ok
}

func predNoCrossCSIInteraction(d *diagram.Diagram, state *State, csi CSI) (bool, string) {
	if len(csi.AllowedDofs) == 0 {
		return true, ""
	}
	for _, n := range d.Nodes {
		for _, dof := range n.DofRefs {
			if !csi.allowsDof(dof) {
				return false, fmt.Sprintf("node %s references dof %s outside csi %s", n.ID, dof, csi.ID)
			}
		}
	}
	return true, ""
}

func predCollapseIrreversible(d *diagram.Diagram, state *State, csi CSI) (bool, string) {
	for _, n := range d.Nodes {
		if n.Op == ast.OpCollapse && !n.Irreversible {
			return false, fmt.Sprintf("collapse node %s is not marked irreversible", n.ID)
		}
	}
	return true, ""
}

func predNoCycles(d *diagram.Diagram, state *State, csi CSI) (bool, string) {
	if d.HasCycle() {
		return false, "cycle detected in diagram " + d.ID
	}
	return true, ""
}

func predValidCompartmentTransitions(d *diagram.Diagram, state *State, csi CSI) (bool, string) {
	for _, n := range d.Nodes {
		if n.Op != ast.OpTransport {
			continue
		}
		target := n.Meta["target_compartment"]
		if target == "" {
			return false, fmt.Sprintf("transport node %s names no target compartment", n.ID)
		}
		if d.Compartment != "" && target == d.Compartment {
			return false, fmt.Sprintf("transport node %s targets its own compartment %s", n.ID, target)
		}
	}
	return true, ""
}

// AuthorizationError carries the constraint ids a denied rewrite
// violated.
type AuthorizationError struct {
	RuleID   string
	Violated []string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("rewrite %s denied: violated constraints %s", e.RuleID, strings.Join(e.Violated, ", "))
}

// AuthorizeRewrite evaluates every constraint against the diagram and
// state before a rule may apply. Hard constraints with a failing or
// unknown predicate deny outright; soft failures are routed through
// the conflict-resolution strategies, denying only when the strategy
// itself fails. The state absorbs whatever bookkeeping the resolutions
// produced.
func AuthorizeRewrite(reg *PredicateRegistry, constraints []Constraint, state *State, d *diagram.Diagram, csi CSI, rule rewrite.Rule) (bool, []string) {
	var violated []string

	for _, c := range constraints {
		pred, known := reg.Get(c.Predicate)
		var pass bool
		var detail string
		if known {
			pass, detail = pred(d, state, csi)
		} else {
			pass, detail = false, "unknown predicate "+c.Predicate
		}
		if pass {
			continue
		}

		if c.Type == ConstraintHard {
			violated = append(violated, c.ID)
			continue
		}

		conflictType := c.OnViolation
		if conflictType == "" {
			conflictType = "soft_violation"
		}
		res := ResolveConflict(conflictType, Conflict{
			Type:         conflictType,
			ConstraintID: c.ID,
			Reason:       detail,
		}, state, d)
		if res.NewState != nil {
			*state = *res.NewState
		}
		if !res.Success {
			violated = append(violated, c.ID)
		}
	}

	return len(violated) == 0, violated
}
