package crf

import (
	"strings"
	"testing"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

func buildDiagram(t *testing.T, text string, id string) *diagram.Diagram {
	t.Helper()
	expr, err := ast.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	d, err := diagram.FromExpr(expr, id)
	if err != nil {
		t.Fatalf("build %q: %v", text, err)
	}
	return d
}

func TestAssignLabelsAllAdmissibleWithoutConstraints(t *testing.T) {
	d := buildDiagram(t, "S+(P(a), P(b))", "d0")
	state := NewState("s0", "d0", "")
	labels := AssignINULabels(d, nil, state, CSI{ID: "open"})
	for id, label := range labels {
		if label != LabelI {
			t.Fatalf("element %s labeled %s, expected I", id, label)
		}
	}
	ok, msg := CheckAdmissible(state)
	if !ok || msg != "All elements admissible" {
		t.Fatalf("expected full admissibility, got %v %q", ok, msg)
	}
}

func TestAssignLabelsForbiddenDof(t *testing.T) {
	d := buildDiagram(t, "P(secret)", "d0")
	state := NewState("s0", "d0", "csi1")
	csi := CSI{ID: "csi1", AllowedDofs: []string{"open_dof"}}
	labels := AssignINULabels(d, nil, state, csi)

	foundN := false
	for _, label := range labels {
		if label == LabelN {
			foundN = true
		}
	}
	if !foundN {
		t.Fatalf("dof outside csi must label N: %v", labels)
	}
	ok, msg := CheckAdmissible(state)
	if ok {
		t.Fatalf("state with N labels must not be admissible")
	}
	if !strings.Contains(msg, "forbidden") {
		t.Fatalf("expected forbidden message, got %q", msg)
	}
}

func TestAssignLabelsTransportWithoutTargetIsUnresolved(t *testing.T) {
	d := diagram.New("d0")
	d.AddNode(diagram.Node{ID: "a1", Op: ast.OpAtom, DofRefs: []string{"x"}})
	d.AddNode(diagram.Node{ID: "t1", Op: ast.OpTransport, Inputs: []string{"a1"}})
	d.AddEdge(diagram.Edge{ID: "e1", From: "a1", To: "t1"})

	state := NewState("s0", "d0", "")
	AssignINULabels(d, nil, state, CSI{ID: "open", AllowedDofs: []string{"x"}})
	if state.INULabels["t1"] != LabelU {
		t.Fatalf("transport without target must label U, got %s", state.INULabels["t1"])
	}
	ok, msg := CheckAdmissible(state)
	if !ok {
		t.Fatalf("U labels must stay admissible")
	}
	if !strings.Contains(msg, "unresolved") {
		t.Fatalf("expected unresolved message, got %q", msg)
	}
}

func TestEdgePairConstraint(t *testing.T) {
	d := diagram.New("d0")
	d.AddNode(diagram.Node{ID: "a", Op: ast.OpAtom, DofRefs: []string{"x"}})
	d.AddNode(diagram.Node{ID: "b", Op: ast.OpAtom, DofRefs: []string{"y"}})
	d.AddEdge(diagram.Edge{ID: "e1", From: "a", To: "b"})

	state := NewState("s0", "d0", "")
	csi := CSI{ID: "c", AllowedDofs: []string{"x", "y"}, AllowedPairs: [][2]string{{"y", "x"}}}
	AssignINULabels(d, nil, state, csi)
	if state.INULabels["e1"] != LabelN {
		t.Fatalf("pair (x,y) not allowed, edge must label N, got %s", state.INULabels["e1"])
	}

	csi.AllowedPairs = [][2]string{{"x", "y"}}
	AssignINULabels(d, nil, state, csi)
	if state.INULabels["e1"] != LabelI {
		t.Fatalf("allowed pair must label I, got %s", state.INULabels["e1"])
	}
}

func TestAuthorizeRewriteHardDenial(t *testing.T) {
	d := buildDiagram(t, "P(Freedom)", "d0")
	// break the collapse invariant by hand
	d.AddNode(diagram.Node{ID: "bad_o", Op: ast.OpCollapse, Irreversible: false})

	reg := NewPredicateRegistry()
	state := NewState("s0", "d0", "")
	constraints := []Constraint{
		{ID: "h1", Type: ConstraintHard, Predicate: "collapse_irreversible"},
		{ID: "h2", Type: ConstraintHard, Predicate: "no_cycles"},
	}
	rule := rewrite.Rule{ID: "r1", Pattern: "P($x)", Replacement: "O($x)"}

	allowed, violated := AuthorizeRewrite(reg, constraints, state, d, CSI{}, rule)
	if allowed {
		t.Fatalf("expected denial")
	}
	if len(violated) != 1 || violated[0] != "h1" {
		t.Fatalf("expected violated [h1], got %v", violated)
	}
}

func TestAuthorizeRewriteUnknownPredicateIsViolation(t *testing.T) {
	d := buildDiagram(t, "P(Freedom)", "d0")
	reg := NewPredicateRegistry()
	state := NewState("s0", "d0", "")
	constraints := []Constraint{{ID: "h1", Type: ConstraintHard, Predicate: "does_not_exist"}}
	rule := rewrite.Rule{ID: "r1", Pattern: "P($x)", Replacement: "O($x)"}

	allowed, violated := AuthorizeRewrite(reg, constraints, state, d, CSI{}, rule)
	if allowed || len(violated) != 1 {
		t.Fatalf("unknown predicate on hard constraint must deny, got %v %v", allowed, violated)
	}
}

func TestAuthorizeRewriteSoftViolationAttenuates(t *testing.T) {
	d := buildDiagram(t, "P(secret)", "d0")
	reg := NewPredicateRegistry()
	state := NewState("s0", "d0", "")
	csi := CSI{ID: "csi1", AllowedDofs: []string{"open_dof"}}
	constraints := []Constraint{{ID: "s1", Type: ConstraintSoft, Predicate: "no_cross_csi_interaction"}}
	rule := rewrite.Rule{ID: "r1", Pattern: "P($x)", Replacement: "O($x)"}

	allowed, violated := AuthorizeRewrite(reg, constraints, state, d, csi, rule)
	if !allowed || len(violated) != 0 {
		t.Fatalf("soft violation must attenuate and allow, got %v %v", allowed, violated)
	}
	if len(state.AttenuatedConstraints) != 1 || state.AttenuatedConstraints[0] != "s1" {
		t.Fatalf("constraint not recorded as attenuated: %v", state.AttenuatedConstraints)
	}
}

func TestResolveConflictStrategies(t *testing.T) {
	d := diagram.New("d0")
	base := NewState("s0", "d0", "")

	res := ResolveConflict("temporal_mismatch", Conflict{ConstraintID: "c1"}, base, d)
	if !res.Success || res.Action != "defer" || len(res.NewState.DeferredConflicts) != 1 {
		t.Fatalf("defer strategy broken: %+v", res)
	}

	res = ResolveConflict("dof_interference", Conflict{Elements: []string{"n1", "n2"}}, base, d)
	if !res.Success || len(res.NewState.PartitionedElements) != 2 {
		t.Fatalf("partition strategy broken: %+v", res)
	}

	res = ResolveConflict("scope_overflow", Conflict{ConstraintID: "c2"}, base, d)
	if !res.Success || len(res.NewState.EscalatedConflicts) != 1 {
		t.Fatalf("escalate strategy broken: %+v", res)
	}

	res = ResolveConflict("ambiguous_choice", Conflict{Choices: []string{"left", "right"}}, base, d)
	if !res.Success || !res.NewState.Bifurcated || res.NewState.BifurcationChoices[0] != "left" {
		t.Fatalf("bifurcate strategy broken: %+v", res)
	}

	res = ResolveConflict("ambiguous_choice", Conflict{}, base, d)
	if res.Success {
		t.Fatalf("bifurcation without choices must fail")
	}

	res = ResolveConflict("hard_violation", Conflict{ConstraintID: "c3"}, base, d)
	if res.Success || !res.NewState.Halted {
		t.Fatalf("halt strategy broken: %+v", res)
	}

	res = ResolveConflict("no_such_type", Conflict{}, base, d)
	if res.Success || res.Action != "halt" {
		t.Fatalf("unknown conflict type must halt: %+v", res)
	}

	// strategies are pure: the base state never changes
	if len(base.DeferredConflicts) != 0 || len(base.PartitionedElements) != 0 || base.Halted {
		t.Fatalf("base state mutated by strategies: %+v", base)
	}
}

func TestValidatePackageFindings(t *testing.T) {
	good := buildDiagram(t, "P(Freedom)", "d_good")
	bad := diagram.New("d_bad")
	bad.AddNode(diagram.Node{ID: "o1", Op: ast.OpCollapse, Irreversible: false})
	bad.AddEdge(diagram.Edge{ID: "e1", From: "o1", To: "ghost"})

	pkg := &Package{
		Dofs:     []Dof{{ID: "Freedom"}, {ID: "Freedom"}},
		CSIs:     []CSI{{ID: "c1", AllowedDofs: []string{"missing_dof"}}},
		Diagrams: []*diagram.Diagram{good, bad},
		States:   []*State{NewState("s1", "d_missing", "c1")},
		Rules: []rewrite.Rule{
			{ID: "r1", Pattern: "P($x", Replacement: "O($x)"},
		},
	}

	errs := ValidatePackage(pkg)
	categories := map[string]int{}
	for _, e := range errs {
		categories[e.Category]++
	}
	if categories["identity"] == 0 {
		t.Fatalf("duplicate dof not reported: %v", errs)
	}
	if categories["reference"] == 0 {
		t.Fatalf("dangling references not reported: %v", errs)
	}
	if categories["structure"] == 0 {
		t.Fatalf("structural problem not reported: %v", errs)
	}
	if categories["semantics"] == 0 {
		t.Fatalf("collapse irreversibility not reported: %v", errs)
	}
	if categories["rule"] == 0 {
		t.Fatalf("rule parse failure not reported: %v", errs)
	}
}

func TestValidatePackageCleanPasses(t *testing.T) {
	d := buildDiagram(t, "O(P(Freedom))", "d0")
	pkg := &Package{
		Dofs:        []Dof{{ID: "Freedom"}},
		CSIs:        []CSI{{ID: "c1", AllowedDofs: []string{"Freedom"}}},
		Diagrams:    []*diagram.Diagram{d},
		States:      []*State{NewState("s1", "d0", "c1")},
		Constraints: []Constraint{{ID: "h1", Type: ConstraintHard, Predicate: "no_cycles"}},
		Rules:       []rewrite.Rule{{ID: "r1", Pattern: "P($x)", Replacement: "O($x)"}},
	}
	for _, e := range ValidatePackage(pkg) {
		if e.Severity == SeverityError {
			t.Fatalf("clean package reported error: %v", e)
		}
	}
}
