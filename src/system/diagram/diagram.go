package diagram

import (
	"sort"
	"strings"

	"github.com/voodooEntity/sidgraph/src/system/ast"
)

// Node is a mutable diagram node. DofRefs hold the degree-of-freedom
// atoms a presence node grounds; Inputs mirror the incoming edges in
// argument order.
type Node struct {
	ID           string
	Op           ast.Op
	DofRefs      []string
	Inputs       []string
	Irreversible bool
	Meta         map[string]string
}

// Edge connects From to To. Label defaults to "arg"; Port orders
// multiple inputs of the same target.
type Edge struct {
	ID     string
	From   string
	To     string
	Label  string
	Port   int
	ToPort int
}

// Diagram is a mutable directed graph of operator nodes. The adjacency
// cache is rebuilt lazily after mutations.
type Diagram struct {
	ID          string
	Compartment string
	Nodes       []Node
	Edges       []Edge

	adjacency map[string][]string
	dirty     bool
}

func New(id string) *Diagram {
	return &Diagram{ID: id, dirty: true}
}

func (d *Diagram) AddNode(n Node) {
	d.Nodes = append(d.Nodes, n)
	d.dirty = true
}

func (d *Diagram) AddEdge(e Edge) {
	if e.Label == "" {
		e.Label = "arg"
	}
	d.Edges = append(d.Edges, e)
	d.dirty = true
}

// FindNode returns a pointer into the node slice, valid until the next
// mutation.
func (d *Diagram) FindNode(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

func (d *Diagram) FindEdge(id string) *Edge {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			return &d.Edges[i]
		}
	}
	return nil
}

// RemoveNode drops the node, its incident edges and any input
// references other nodes hold to it.
func (d *Diagram) RemoveNode(id string) {
	nodes := d.Nodes[:0]
	for _, n := range d.Nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	d.Nodes = nodes

	edges := d.Edges[:0]
	for _, e := range d.Edges {
		if e.From != id && e.To != id {
			edges = append(edges, e)
		}
	}
	d.Edges = edges

	for i := range d.Nodes {
		inputs := d.Nodes[i].Inputs[:0]
		for _, ref := range d.Nodes[i].Inputs {
			if ref != id {
				inputs = append(inputs, ref)
			}
		}
		d.Nodes[i].Inputs = inputs
	}
	d.dirty = true
}

func (d *Diagram) RemoveEdge(id string) {
	edges := d.Edges[:0]
	for _, e := range d.Edges {
		if e.ID != id {
			edges = append(edges, e)
		}
	}
	d.Edges = edges
	d.dirty = true
}

// MarkDirty forces an adjacency rebuild on the next traversal. Callers
// mutating nodes or edges through returned pointers must call it.
func (d *Diagram) MarkDirty() {
	d.dirty = true
}

func (d *Diagram) rebuildAdjacency() {
	d.adjacency = make(map[string][]string, len(d.Nodes))
	for _, e := range d.Edges {
		d.adjacency[e.From] = append(d.adjacency[e.From], e.To)
	}
	d.dirty = false
}

// Inputs returns the source nodes of all edges into id, ordered by
// port.
func (d *Diagram) Inputs(id string) []string {
	type in struct {
		from string
		port int
	}
	var ins []in
	for _, e := range d.Edges {
		if e.To == id {
			ins = append(ins, in{e.From, e.Port})
		}
	}
	sort.SliceStable(ins, func(a, b int) bool { return ins[a].port < ins[b].port })
	out := make([]string, len(ins))
	for i, v := range ins {
		out[i] = v.from
	}
	return out
}

// Outputs returns the targets of all edges leaving id.
func (d *Diagram) Outputs(id string) []string {
	if d.dirty {
		d.rebuildAdjacency()
	}
	return d.adjacency[id]
}

// HasCycle runs an iterative three color DFS over the edge relation.
// No recursion: diagrams can be deep chains.
func (d *Diagram) HasCycle() bool {
	if d.dirty {
		d.rebuildAdjacency()
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.Nodes))

	type frame struct {
		id   string
		next int
	}

	for _, start := range d.Nodes {
		if color[start.ID] != white {
			continue
		}
		stack := []frame{{id: start.ID}}
		color[start.ID] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := d.adjacency[top.id]
			if top.next < len(succ) {
				next := succ[top.next]
				top.next++
				switch color[next] {
				case gray:
					return true
				case white:
					color[next] = gray
					stack = append(stack, frame{id: next})
				}
			} else {
				color[top.id] = black
				stack = stack[:len(stack)-1]
			}
		}
	}
	return false
}

func (d *Diagram) Clone() *Diagram {
	out := New(d.ID)
	out.Compartment = d.Compartment
	out.Nodes = make([]Node, len(d.Nodes))
	for i, n := range d.Nodes {
		cn := n
		cn.DofRefs = append([]string(nil), n.DofRefs...)
		cn.Inputs = append([]string(nil), n.Inputs...)
		if n.Meta != nil {
			cn.Meta = make(map[string]string, len(n.Meta))
			for k, v := range n.Meta {
				cn.Meta[k] = v
			}
		}
		out.Nodes[i] = cn
	}
	out.Edges = append([]Edge(nil), d.Edges...)
	return out
}

// ReplaceWith swaps this diagram's content for the other's. Used by the
// rewrite engine to commit an all-or-nothing change.
func (d *Diagram) ReplaceWith(other *Diagram) {
	d.Compartment = other.Compartment
	d.Nodes = other.Nodes
	d.Edges = other.Edges
	d.dirty = true
}

// StructuralError aggregates every structural problem found by
// Validate.
type StructuralError struct {
	DiagramID string
	Problems  []string
}

func (e *StructuralError) Error() string {
	return "diagram " + e.DiagramID + " invalid: " + strings.Join(e.Problems, "; ")
}

// Validate checks id uniqueness, edge endpoint existence and input
// reference integrity. It returns nil or a *StructuralError listing
// every problem.
func (d *Diagram) Validate() error {
	var problems []string

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			problems = append(problems, "node with empty id")
			continue
		}
		if seen[n.ID] {
			problems = append(problems, "duplicate node id "+n.ID)
		}
		seen[n.ID] = true
	}

	edgeSeen := make(map[string]bool, len(d.Edges))
	for _, e := range d.Edges {
		if e.ID != "" {
			if edgeSeen[e.ID] {
				problems = append(problems, "duplicate edge id "+e.ID)
			}
			edgeSeen[e.ID] = true
		}
		if !seen[e.From] {
			problems = append(problems, "edge "+e.ID+" references missing node "+e.From)
		}
		if !seen[e.To] {
			problems = append(problems, "edge "+e.ID+" references missing node "+e.To)
		}
	}

	for _, n := range d.Nodes {
		for _, ref := range n.Inputs {
			if !seen[ref] {
				problems = append(problems, "node "+n.ID+" input references missing node "+ref)
			}
		}
	}

	if len(problems) > 0 {
		return &StructuralError{DiagramID: d.ID, Problems: problems}
	}
	return nil
}
