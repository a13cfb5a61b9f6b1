package rewrite

import (
	"strings"
	"testing"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
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

func TestSimpleAtomRewrite(t *testing.T) {
	// P(Freedom) with P($x) -> O($x): the P node goes away, one O node
	// appears, the Freedom atom survives as its input
	d := buildDiagram(t, "P(Freedom)", "d0")
	res, err := Apply(d, "P($x)", "O($x)", "r1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied {
		t.Fatalf("rewrite not applied: %v", res.Messages)
	}

	var oCount, pCount int
	var oNode *diagram.Node
	for i := range d.Nodes {
		switch d.Nodes[i].Op {
		case ast.OpPresence:
			pCount++
		case ast.OpCollapse:
			oCount++
			oNode = &d.Nodes[i]
		}
	}
	if pCount != 0 {
		t.Fatalf("expected no P node, found %d", pCount)
	}
	if oCount != 1 {
		t.Fatalf("expected exactly one O node, found %d", oCount)
	}
	if !strings.HasPrefix(oNode.ID, "r1_n") {
		t.Fatalf("new node id not rule scoped: %s", oNode.ID)
	}
	inputs := d.Inputs(oNode.ID)
	if len(inputs) != 1 {
		t.Fatalf("expected one input on O, got %v", inputs)
	}
	atom := d.FindNode(inputs[0])
	if atom.Op != ast.OpAtom || atom.DofRefs[0] != "Freedom" {
		t.Fatalf("Freedom atom not retained as input: %+v", atom)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("diagram invalid after rewrite: %v", err)
	}
}

func TestNoMatchLeavesDiagramUntouched(t *testing.T) {
	d := buildDiagram(t, "P(Freedom)", "d0")
	before := len(d.Nodes)
	res, err := Apply(d, "C($a, $b)", "T($a)", "r1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatalf("expected no match")
	}
	if len(d.Nodes) != before {
		t.Fatalf("diagram mutated on no-match")
	}
}

func TestCycleRejectionAllOrNothing(t *testing.T) {
	// hand built diagram where splicing S+(P($a), $b) -> S-($a, $b)
	// redirects the inner P node's side edge onto the new root and
	// closes a loop through the bound atom k
	d := diagram.New("d0")
	d.AddNode(diagram.Node{ID: "ax", Op: ast.OpAtom, DofRefs: []string{"x"}})
	d.AddNode(diagram.Node{ID: "p1", Op: ast.OpPresence, Inputs: []string{"ax"}})
	d.AddNode(diagram.Node{ID: "k", Op: ast.OpAtom, DofRefs: []string{"k"}})
	d.AddNode(diagram.Node{ID: "s1", Op: ast.OpSynthesis, Inputs: []string{"p1", "k"}})
	d.AddEdge(diagram.Edge{ID: "e1", From: "ax", To: "p1", Port: 0})
	d.AddEdge(diagram.Edge{ID: "e2", From: "p1", To: "s1", Port: 0})
	d.AddEdge(diagram.Edge{ID: "e3", From: "k", To: "s1", Port: 1})
	d.AddEdge(diagram.Edge{ID: "e4", From: "p1", To: "k", Port: 0})
	if d.HasCycle() {
		t.Fatalf("fixture must start acyclic")
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("fixture invalid: %v", err)
	}

	nodesBefore, err := d.ToJSON()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	res, aerr := Apply(d, "S+(P($a), $b)", "S-($a, $b)", "r1")
	if aerr != nil {
		t.Fatalf("apply: %v", aerr)
	}
	if res.Applied {
		t.Fatalf("expected rejection, rewrite applied")
	}
	found := false
	for _, msg := range res.Messages {
		if strings.Contains(msg, "cycle") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rejection message must mention cycle: %v", res.Messages)
	}

	nodesAfter, err := d.ToJSON()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if string(nodesBefore) != string(nodesAfter) {
		t.Fatalf("diagram changed despite rejection")
	}
}

func TestFixpointIdempotence(t *testing.T) {
	d := buildDiagram(t, "S+(P(a), P(b))", "d0")
	fp, err := ApplyUntilFixpoint(d, "P($x)", "O($x)", "r1")
	if err != nil {
		t.Fatalf("fixpoint: %v", err)
	}
	if !fp.Converged {
		t.Fatalf("fixpoint did not converge")
	}
	if fp.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", fp.Iterations)
	}
	res, err := Apply(d, "P($x)", "O($x)", "r1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatalf("extra apply after fixpoint must not match")
	}
}

func TestDroppedVariableDetachesSubtree(t *testing.T) {
	d := buildDiagram(t, "C(P(a), P(b))", "d0")
	res, err := Apply(d, "C($a, $b)", "T($a)", "r2")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied {
		t.Fatalf("rewrite not applied: %v", res.Messages)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("diagram invalid after drop: %v", err)
	}
	var tCount int
	for _, n := range d.Nodes {
		if n.Op == ast.OpTransport {
			tCount++
		}
	}
	if tCount != 1 {
		t.Fatalf("expected one T node, got %d", tCount)
	}
}

func TestLiteralAtomOnlyMatchesIdenticalLiteral(t *testing.T) {
	d := buildDiagram(t, "P(Freedom)", "d0")
	res, err := Apply(d, "P(Justice)", "O(Justice)", "r1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatalf("literal Justice must not match atom Freedom")
	}
}

func TestVariableConflictRebind(t *testing.T) {
	// C($x, $x) requires both inputs to be the same node
	d := buildDiagram(t, "C(P(a), P(b))", "d0")
	if _, ok := FindMatch(d, mustParseExpr(t, "C($x, $x)")); ok {
		t.Fatalf("conflicting rebind must fail the match")
	}
}

func TestUnboundReplacementVariableRejected(t *testing.T) {
	d := buildDiagram(t, "P(Freedom)", "d0")
	res, err := Apply(d, "P($x)", "O($y)", "r1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatalf("unbound replacement variable must reject")
	}
}

func TestRuleJSONAlternateKeys(t *testing.T) {
	var r Rule
	data := []byte(`{"id":"r1","pattern_expr":"P($x)","replacement_expr":"O($x)"}`)
	if err := r.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Pattern != "P($x)" || r.Replacement != "O($x)" {
		t.Fatalf("alternate keys not honored: %+v", r)
	}
}

func mustParseExpr(t *testing.T, text string) ast.Node {
	t.Helper()
	expr, err := ast.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return expr
}
