package ast

import "strings"

// Op enumerates the diagram node tags. The set is closed: every consumer
// switches exhaustively over these values, there is no string fallback.
// OpAtom tags the leaf nodes the diagram builder mints for atoms; it is
// not an operator of the expression grammar.
type Op int

const (
	OpAtom      Op = iota // leaf
	OpPresence            // P
	OpSynthesis           // S+
	OpSeverance           // S-
	OpCollapse            // O
	OpCoupling            // C
	OpTransport           // T
)

func (o Op) String() string {
	switch o {
	case OpAtom:
		return "atom"
	case OpPresence:
		return "P"
	case OpSynthesis:
		return "S+"
	case OpSeverance:
		return "S-"
	case OpCollapse:
		return "O"
	case OpCoupling:
		return "C"
	case OpTransport:
		return "T"
	}
	return "?"
}

// ParseOp maps an operator symbol of the expression grammar to its Op
// value. It does not accept "atom"; see ParseTag for node tags.
func ParseOp(symbol string) (Op, bool) {
	switch symbol {
	case "P":
		return OpPresence, true
	case "S+":
		return OpSynthesis, true
	case "S-":
		return OpSeverance, true
	case "O":
		return OpCollapse, true
	case "C":
		return OpCoupling, true
	case "T":
		return OpTransport, true
	}
	return 0, false
}

// ParseTag maps a serialized node tag to its Op value, covering the
// operator symbols plus the atom leaf tag.
func ParseTag(tag string) (Op, bool) {
	if tag == "atom" {
		return OpAtom, true
	}
	return ParseOp(tag)
}

// Arity returns the argument bounds for an operator. max == -1 means
// unbounded. P, O and T take exactly one argument, C takes exactly two,
// S+ and S- take at least one.
func (o Op) Arity() (min int, max int) {
	switch o {
	case OpAtom:
		return 0, 0
	case OpPresence, OpCollapse, OpTransport:
		return 1, 1
	case OpCoupling:
		return 2, 2
	case OpSynthesis, OpSeverance:
		return 1, -1
	}
	return 0, -1
}

// IsVariable reports whether an atom name is a pattern variable.
// Only the $ sigil marks variables.
func IsVariable(name string) bool {
	return strings.HasPrefix(name, "$")
}
