package ast

import "strings"

type Kind int

const (
	KindAtom Kind = iota
	KindOp
)

// Node is a single expression tree node, either an atom leaf or an
// operator application.
type Node struct {
	Kind Kind
	Atom string
	Op   Op
	Args []Node
}

func NewAtom(name string) Node {
	return Node{Kind: KindAtom, Atom: name}
}

func NewOp(op Op, args ...Node) Node {
	return Node{Kind: KindOp, Op: op, Args: args}
}

func (n Node) IsAtom() bool {
	return n.Kind == KindAtom
}

func (n Node) Clone() Node {
	out := Node{Kind: n.Kind, Atom: n.Atom, Op: n.Op}
	if len(n.Args) > 0 {
		out.Args = make([]Node, len(n.Args))
		for i, arg := range n.Args {
			out.Args[i] = arg.Clone()
		}
	}
	return out
}

func (n Node) Equal(other Node) bool {
	if n.Kind != other.Kind {
		return false
	}
	if n.Kind == KindAtom {
		return n.Atom == other.Atom
	}
	if n.Op != other.Op || len(n.Args) != len(other.Args) {
		return false
	}
	for i := range n.Args {
		if !n.Args[i].Equal(other.Args[i]) {
			return false
		}
	}
	return true
}

// String renders the node back to expression syntax. Parse(n.String())
// yields a tree equal to n.
func (n Node) String() string {
	if n.Kind == KindAtom {
		return n.Atom
	}
	parts := make([]string, len(n.Args))
	for i, arg := range n.Args {
		parts[i] = arg.String()
	}
	return n.Op.String() + "(" + strings.Join(parts, ", ") + ")"
}
