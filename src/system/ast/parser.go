package ast

import (
	"fmt"
)

// ParseError reports a syntax or arity problem with its byte offset in
// the input.
type ParseError struct {
	Msg string
	Pos int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isWordStart(c byte) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func tokenize(text string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case isWordStart(c):
			start := i
			i++
			for i < len(text) && isWordPart(text[i]) {
				i++
			}
			word := text[start:i]
			// S+ and S- are two character operator symbols
			if word == "S" && i < len(text) && (text[i] == '+' || text[i] == '-') {
				word = text[start : i+1]
				i++
			}
			tokens = append(tokens, token{tokWord, word, start})
		default:
			return nil, &ParseError{Msg: fmt.Sprintf("unexpected character %q", c), Pos: i}
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(text)})
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// Parse parses a full expression. Trailing input after the expression is
// an error.
func Parse(text string) (Node, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return Node{}, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return Node{}, err
	}
	if tail := p.peek(); tail.kind != tokEOF {
		return Node{}, &ParseError{Msg: fmt.Sprintf("unexpected trailing input %q", tail.text), Pos: tail.pos}
	}
	return node, nil
}

func (p *parser) parseExpr() (Node, error) {
	t := p.next()
	if t.kind != tokWord {
		return Node{}, &ParseError{Msg: fmt.Sprintf("expected expression, got %q", t.text), Pos: t.pos}
	}

	op, isOp := ParseOp(t.text)
	if !isOp {
		return NewAtom(t.text), nil
	}

	var args []Node
	if p.peek().kind == tokLParen {
		p.next()
		var err error
		args, err = p.parseArgs()
		if err != nil {
			return Node{}, err
		}
	}
	if err := checkArity(op, len(args), t.pos); err != nil {
		return Node{}, err
	}
	return NewOp(op, args...), nil
}

func (p *parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t := p.next()
		if t.kind == tokRParen {
			return args, nil
		}
		if t.kind != tokComma {
			return nil, &ParseError{Msg: fmt.Sprintf("expected ',' or ')', got %q", t.text), Pos: t.pos}
		}
	}
}

func checkArity(op Op, got int, pos int) error {
	min, max := op.Arity()
	if got < min {
		return &ParseError{Msg: fmt.Sprintf("operator %s requires at least %d argument(s), got %d", op, min, got), Pos: pos}
	}
	if max >= 0 && got > max {
		return &ParseError{Msg: fmt.Sprintf("operator %s takes at most %d argument(s), got %d", op, max, got), Pos: pos}
	}
	return nil
}
