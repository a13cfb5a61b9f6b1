package diagram

import (
	"fmt"

	"github.com/voodooEntity/sidgraph/src/system/ast"
)

// IDGenerator mints fresh node and edge ids scoped to a rule id. Ids
// are checked against the diagram so repeated applications of the same
// rule never collide.
type IDGenerator struct {
	prefix  string
	nodeSeq int
	edgeSeq int
}

func NewIDGenerator(ruleID string) *IDGenerator {
	return &IDGenerator{prefix: ruleID}
}

func (g *IDGenerator) NodeID(d *Diagram) string {
	for {
		g.nodeSeq++
		id := g.format("n", g.nodeSeq)
		if d.FindNode(id) == nil {
			return id
		}
	}
}

func (g *IDGenerator) EdgeID(d *Diagram) string {
	for {
		g.edgeSeq++
		id := g.format("e", g.edgeSeq)
		if d.FindEdge(id) == nil {
			return id
		}
	}
}

func (g *IDGenerator) format(kind string, seq int) string {
	if g.prefix == "" {
		return fmt.Sprintf("%s%d", kind, seq)
	}
	return fmt.Sprintf("%s_%s%d", g.prefix, kind, seq)
}

// FromExpr materializes an expression tree as a diagram: one node per
// subtree. Atoms become leaf nodes carrying the atom name as a dof_ref,
// operator applications become operator nodes whose inputs point at the
// child nodes, one "arg" edge per parent/child relation.
func FromExpr(expr ast.Node, ruleID string) (*Diagram, error) {
	d := New(ruleID)
	gen := NewIDGenerator(ruleID)
	if _, err := BuildExpr(expr, d, gen); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// BuildExpr appends the expression's nodes and edges to d and returns
// the root node id.
func BuildExpr(expr ast.Node, d *Diagram, gen *IDGenerator) (string, error) {
	if expr.IsAtom() {
		id := gen.NodeID(d)
		d.AddNode(Node{
			ID:      id,
			Op:      ast.OpAtom,
			DofRefs: []string{expr.Atom},
		})
		return id, nil
	}

	childIDs := make([]string, len(expr.Args))
	for i, arg := range expr.Args {
		childID, err := BuildExpr(arg, d, gen)
		if err != nil {
			return "", err
		}
		childIDs[i] = childID
	}

	id := gen.NodeID(d)
	node := Node{ID: id, Op: expr.Op, Inputs: childIDs}
	if expr.Op == ast.OpCollapse {
		node.Irreversible = true
	}
	d.AddNode(node)

	for i, childID := range childIDs {
		d.AddEdge(Edge{
			ID:    gen.EdgeID(d),
			From:  childID,
			To:    id,
			Label: "arg",
			Port:  i,
		})
	}

	return id, nil
}

// ToExpr converts the subgraph rooted at rootID back into an expression
// tree. The diagram must be acyclic.
func (d *Diagram) ToExpr(rootID string) (ast.Node, error) {
	node := d.FindNode(rootID)
	if node == nil {
		return ast.Node{}, fmt.Errorf("node %s not found in diagram %s", rootID, d.ID)
	}
	if node.Op == ast.OpAtom {
		if len(node.DofRefs) == 0 {
			return ast.Node{}, fmt.Errorf("atom node %s carries no dof_ref", node.ID)
		}
		return ast.NewAtom(node.DofRefs[0]), nil
	}
	inputs := d.Inputs(rootID)
	args := make([]ast.Node, len(inputs))
	for i, in := range inputs {
		arg, err := d.ToExpr(in)
		if err != nil {
			return ast.Node{}, err
		}
		args[i] = arg
	}
	return ast.NewOp(node.Op, args...), nil
}

// Roots returns the ids of nodes without outgoing edges, in node order.
func (d *Diagram) Roots() []string {
	hasOut := make(map[string]bool, len(d.Nodes))
	for _, e := range d.Edges {
		hasOut[e.From] = true
	}
	var roots []string
	for _, n := range d.Nodes {
		if !hasOut[n.ID] {
			roots = append(roots, n.ID)
		}
	}
	return roots
}
