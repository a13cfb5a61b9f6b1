package rewrite

import (
	"fmt"

	"github.com/voodooEntity/sidgraph/src/system/ast"
	"github.com/voodooEntity/sidgraph/src/system/diagram"
)

// MaxRewriteIterations caps the fixpoint loop.
const MaxRewriteIterations = 1000

// Bindings maps pattern variable names to the node ids they matched.
// Scoped to a single match attempt.
type Bindings map[string]string

// Match describes one successful pattern alignment. Matched nodes are
// consumed by the rewrite; bound nodes are the variable targets and
// survive it.
type Match struct {
	RootID   string
	Bindings Bindings
	Matched  map[string]bool
	Bound    map[string]bool
}

// Result reports the outcome of a single rewrite attempt. A rejected
// rewrite is not an error: the diagram is untouched and Messages carry
// the reason.
type Result struct {
	Applied  bool
	Messages []string
}

// FixpointResult reports a fixpoint run. Converged is false when the
// iteration cap was hit while a match still existed.
type FixpointResult struct {
	Converged  bool
	Iterations int
}

// FindMatch scans the diagram in node order and returns the first
// subgraph matching the pattern.
func FindMatch(d *diagram.Diagram, pattern ast.Node) (Match, bool) {
	for _, n := range d.Nodes {
		m := Match{
			RootID:   n.ID,
			Bindings: Bindings{},
			Matched:  map[string]bool{},
			Bound:    map[string]bool{},
		}
		if matchExpr(d, pattern, n.ID, &m) {
			return m, true
		}
	}
	return Match{}, false
}

func matchExpr(d *diagram.Diagram, pattern ast.Node, nodeID string, m *Match) bool {
	if pattern.IsAtom() {
		if ast.IsVariable(pattern.Atom) {
			if prev, ok := m.Bindings[pattern.Atom]; ok {
				return prev == nodeID
			}
			m.Bindings[pattern.Atom] = nodeID
			m.Bound[nodeID] = true
			return true
		}
		// a literal atom matches only an identical atom leaf
		node := d.FindNode(nodeID)
		if node == nil || node.Op != ast.OpAtom {
			return false
		}
		if len(node.DofRefs) == 0 || node.DofRefs[0] != pattern.Atom {
			return false
		}
		m.Matched[nodeID] = true
		return true
	}

	node := d.FindNode(nodeID)
	if node == nil || node.Op != pattern.Op {
		return false
	}
	inputs := d.Inputs(nodeID)
	if len(inputs) != len(pattern.Args) {
		return false
	}
	m.Matched[nodeID] = true
	for i, arg := range pattern.Args {
		if !matchExpr(d, arg, inputs[i], m) {
			return false
		}
	}
	return true
}

// instantiate builds the replacement expression inside d. Variables
// resolve to their bound original nodes instead of being rebuilt.
func instantiate(expr ast.Node, d *diagram.Diagram, b Bindings, gen *diagram.IDGenerator) (string, error) {
	if expr.IsAtom() {
		if ast.IsVariable(expr.Atom) {
			id, ok := b[expr.Atom]
			if !ok {
				return "", fmt.Errorf("replacement references unbound variable %s", expr.Atom)
			}
			return id, nil
		}
		id := gen.NodeID(d)
		d.AddNode(diagram.Node{ID: id, Op: ast.OpAtom, DofRefs: []string{expr.Atom}})
		return id, nil
	}

	childIDs := make([]string, len(expr.Args))
	for i, arg := range expr.Args {
		childID, err := instantiate(arg, d, b, gen)
		if err != nil {
			return "", err
		}
		childIDs[i] = childID
	}

	id := gen.NodeID(d)
	node := diagram.Node{ID: id, Op: expr.Op, Inputs: childIDs}
	if expr.Op == ast.OpCollapse {
		node.Irreversible = true
	}
	d.AddNode(node)
	for i, childID := range childIDs {
		d.AddEdge(diagram.Edge{
			ID:    gen.EdgeID(d),
			From:  childID,
			To:    id,
			Label: "arg",
			Port:  i,
		})
	}
	return id, nil
}

// Apply parses both expressions and applies the rewrite once. Parse
// failures are returned as errors, rewrite rejection as a Result.
func Apply(d *diagram.Diagram, patternText string, replacementText string, ruleID string) (Result, error) {
	pattern, err := ast.Parse(patternText)
	if err != nil {
		return Result{}, fmt.Errorf("rule %s pattern: %w", ruleID, err)
	}
	replacement, err := ast.Parse(replacementText)
	if err != nil {
		return Result{}, fmt.Errorf("rule %s replacement: %w", ruleID, err)
	}
	return ApplyExpr(d, pattern, replacement, ruleID), nil
}

// ApplyRule is Apply for a Rule value.
func ApplyRule(d *diagram.Diagram, rule Rule) (Result, error) {
	return Apply(d, rule.Pattern, rule.Replacement, rule.ID)
}

// ApplyExpr applies one rewrite in place. The change is all or nothing:
// the matched nodes are removed, the replacement is instantiated with
// fresh rule-scoped ids, bound nodes are reattached, and the whole
// splice is discarded if it would introduce a cycle or break structure.
func ApplyExpr(d *diagram.Diagram, pattern ast.Node, replacement ast.Node, ruleID string) Result {
	m, ok := FindMatch(d, pattern)
	if !ok {
		return Result{Messages: []string{fmt.Sprintf("rule %s: no match", ruleID)}}
	}

	work := d.Clone()
	oldEdgeCount := len(work.Edges)

	gen := diagram.NewIDGenerator(ruleID)
	newRoot, err := instantiate(replacement, work, m.Bindings, gen)
	if err != nil {
		return Result{Messages: []string{fmt.Sprintf("rule %s: %v", ruleID, err)}}
	}

	removed := make(map[string]bool, len(m.Matched))
	for id := range m.Matched {
		if !m.Bound[id] {
			removed[id] = true
		}
	}

	// splice: reconnect the old subgraph's external edges to the new
	// root; interior edges and edges from bound nodes go away, the
	// latter because instantiate already reattached bound nodes.
	rebuilt := make([]diagram.Edge, 0, len(work.Edges))
	for i, e := range work.Edges {
		if i >= oldEdgeCount {
			rebuilt = append(rebuilt, e)
			continue
		}
		fromRemoved := removed[e.From]
		toRemoved := removed[e.To]
		switch {
		case fromRemoved && toRemoved:
		case toRemoved:
			if m.Bound[e.From] {
				continue
			}
			e.To = newRoot
			rebuilt = append(rebuilt, e)
		case fromRemoved:
			e.From = newRoot
			rebuilt = append(rebuilt, e)
		default:
			rebuilt = append(rebuilt, e)
		}
	}
	work.Edges = rebuilt

	for i := range work.Nodes {
		if removed[work.Nodes[i].ID] {
			continue
		}
		for j, ref := range work.Nodes[i].Inputs {
			if removed[ref] {
				work.Nodes[i].Inputs[j] = newRoot
			}
		}
	}
	for id := range removed {
		work.RemoveNode(id)
	}
	work.MarkDirty()

	if work.HasCycle() {
		return Result{Messages: []string{fmt.Sprintf("rule %s rejected: splice would create a cycle", ruleID)}}
	}
	if verr := work.Validate(); verr != nil {
		return Result{Messages: []string{fmt.Sprintf("rule %s rejected: %v", ruleID, verr)}}
	}

	d.ReplaceWith(work)
	return Result{
		Applied:  true,
		Messages: []string{fmt.Sprintf("rule %s applied at %s", ruleID, m.RootID)},
	}
}

// ApplyUntilFixpoint reapplies the rewrite until no occurrence remains
// or the iteration cap is reached.
func ApplyUntilFixpoint(d *diagram.Diagram, patternText string, replacementText string, ruleID string) (FixpointResult, error) {
	pattern, err := ast.Parse(patternText)
	if err != nil {
		return FixpointResult{}, fmt.Errorf("rule %s pattern: %w", ruleID, err)
	}
	replacement, err := ast.Parse(replacementText)
	if err != nil {
		return FixpointResult{}, fmt.Errorf("rule %s replacement: %w", ruleID, err)
	}
	return ApplyExprUntilFixpoint(d, pattern, replacement, ruleID), nil
}

func ApplyExprUntilFixpoint(d *diagram.Diagram, pattern ast.Node, replacement ast.Node, ruleID string) FixpointResult {
	iterations := 0
	for i := 0; i < MaxRewriteIterations; i++ {
		res := ApplyExpr(d, pattern, replacement, ruleID)
		if !res.Applied {
			_, still := FindMatch(d, pattern)
			return FixpointResult{Converged: !still, Iterations: iterations}
		}
		iterations++
	}
	_, still := FindMatch(d, pattern)
	return FixpointResult{Converged: !still, Iterations: iterations}
}
