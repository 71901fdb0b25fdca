package selector

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	lex    *lexer
	lookhd *token
	err    error
}

// Parse parses a comma-separated CSS selector list in the subset
// documented for the Selector Handler: type, #id, .class, attribute
// selectors, descendant/child/adjacent-sibling/general-sibling
// combinators, and the pseudo-classes :first-child, :last-child,
// :nth-child(an+b) and :not(simple-selector).
func Parse(src string) (List, error) {
	p := &parser{lex: newLexer(src)}
	var list List
	for {
		p.skipWS()
		cx, err := p.parseComplex()
		if err != nil {
			return nil, err
		}
		if p.err != nil {
			return nil, p.err
		}
		list = append(list, cx)
		p.skipWS()
		if p.peek().kind == tokComma {
			p.advance()
			continue
		}
		if p.peek().kind == tokEOF {
			break
		}
		return nil, fmt.Errorf("selector: unexpected token at position %d", p.lex.pos)
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("selector: empty selector")
	}
	return list, nil
}

func (p *parser) peek() token {
	if p.lookhd == nil {
		t, err := p.lex.next()
		if err != nil {
			t = token{kind: tokEOF}
			if p.err == nil {
				p.err = err
			}
		}
		p.lookhd = &t
	}
	return *p.lookhd
}

func (p *parser) advance() token {
	t := p.peek()
	p.lookhd = nil
	return t
}

func (p *parser) skipWS() {
	for p.peek().kind == tokWS {
		p.advance()
	}
}

func (p *parser) parseComplex() (Complex, error) {
	first, err := p.parseCompound()
	if err != nil {
		return nil, err
	}
	steps := Complex{{combinator: NoCombinator, compound: first}}
	for {
		comb, ok, err := p.tryCombinator()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		next, err := p.parseCompound()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{combinator: comb, compound: next})
	}
	return steps, nil
}

// tryCombinator consumes whitespace and an optional explicit combinator
// token, reporting whether another compound selector follows.
func (p *parser) tryCombinator() (Combinator, bool, error) {
	sawWS := false
	for p.peek().kind == tokWS {
		sawWS = true
		p.advance()
	}
	switch p.peek().kind {
	case tokGT:
		p.advance()
		p.skipWS()
		return Child, true, nil
	case tokPlus:
		p.advance()
		p.skipWS()
		return AdjacentSibling, true, nil
	case tokTilde:
		p.advance()
		p.skipWS()
		return GeneralSibling, true, nil
	case tokComma, tokEOF, tokRParen:
		return 0, false, nil
	default:
		if sawWS {
			return Descendant, true, nil
		}
		return 0, false, nil
	}
}

func (p *parser) parseCompound() (Compound, error) {
	var c Compound
	matched := false

	switch p.peek().kind {
	case tokIdent:
		c.Type = p.advance().text
		matched = true
	case tokStar:
		p.advance()
		c.Type = "*"
		matched = true
	}

loop:
	for {
		switch p.peek().kind {
		case tokHash:
			c.ID = p.advance().text
			matched = true
		case tokClass:
			c.Classes = append(c.Classes, p.advance().text)
			matched = true
		case tokLBracket:
			attr, err := p.parseAttr()
			if err != nil {
				return c, err
			}
			c.Attrs = append(c.Attrs, attr)
			matched = true
		case tokColon:
			p.advance()
			pseudo, err := p.parsePseudo()
			if err != nil {
				return c, err
			}
			c.Pseudos = append(c.Pseudos, pseudo)
			matched = true
		default:
			break loop
		}
	}

	if !matched {
		return c, fmt.Errorf("selector: expected a simple selector near position %d", p.lex.pos)
	}
	return c, nil
}

func (p *parser) parseAttr() (AttrSelector, error) {
	var a AttrSelector
	p.advance() // consume '['
	p.skipWS()
	if p.peek().kind != tokIdent {
		return a, fmt.Errorf("selector: expected attribute name at position %d", p.lex.pos)
	}
	a.Name = p.advance().text
	p.skipWS()

	switch p.peek().kind {
	case tokRBracket:
		a.Op = AttrPresent
		p.advance()
		return a, nil
	case tokEquals:
		a.Op = AttrEquals
	case tokIncludes:
		a.Op = AttrIncludes
	case tokDashMatch:
		a.Op = AttrDashMatch
	case tokPrefix:
		a.Op = AttrPrefix
	case tokSuffix:
		a.Op = AttrSuffix
	case tokSubstring:
		a.Op = AttrSubstring
	default:
		return a, fmt.Errorf("selector: expected attribute operator at position %d", p.lex.pos)
	}
	p.advance()
	p.skipWS()

	switch p.peek().kind {
	case tokString:
		a.Value = p.advance().text
	case tokIdent:
		a.Value = p.advance().text
	default:
		return a, fmt.Errorf("selector: expected attribute value at position %d", p.lex.pos)
	}
	p.skipWS()
	if p.peek().kind != tokRBracket {
		return a, fmt.Errorf("selector: expected ']' at position %d", p.lex.pos)
	}
	p.advance()
	return a, nil
}

func (p *parser) parsePseudo() (PseudoSelector, error) {
	if p.peek().kind != tokIdent {
		return PseudoSelector{}, fmt.Errorf("selector: expected pseudo-class name at position %d", p.lex.pos)
	}
	name := p.advance().text
	switch strings.ToLower(name) {
	case "first-child":
		return PseudoSelector{Kind: PseudoFirstChild}, nil
	case "last-child":
		return PseudoSelector{Kind: PseudoLastChild}, nil
	case "not":
		if p.peek().kind != tokLParen {
			return PseudoSelector{}, fmt.Errorf("selector: expected '(' after :not at position %d", p.lex.pos)
		}
		p.advance()
		p.skipWS()
		inner, err := p.parseCompound()
		if err != nil {
			return PseudoSelector{}, err
		}
		p.skipWS()
		if p.peek().kind != tokRParen {
			return PseudoSelector{}, fmt.Errorf("selector: expected ')' to close :not at position %d", p.lex.pos)
		}
		p.advance()
		return PseudoSelector{Kind: PseudoNot, Negated: &inner}, nil
	case "nth-child":
		if p.peek().kind != tokLParen {
			return PseudoSelector{}, fmt.Errorf("selector: expected '(' after :nth-child at position %d", p.lex.pos)
		}
		p.advance()
		raw := p.readRawUntilCloseParen()
		nth, err := parseNth(raw)
		if err != nil {
			return PseudoSelector{}, err
		}
		if p.peek().kind != tokRParen {
			return PseudoSelector{}, fmt.Errorf("selector: expected ')' to close :nth-child at position %d", p.lex.pos)
		}
		p.advance()
		return PseudoSelector{Kind: PseudoNthChild, Nth: nth}, nil
	default:
		return PseudoSelector{}, fmt.Errorf("selector: unsupported pseudo-class %q", name)
	}
}

// readRawUntilCloseParen consumes raw characters directly from the lexer
// up to (not including) the next unnested ')'. Used for :nth-child's
// an+b micro-syntax, which tokenizes awkwardly as generic CSS tokens.
func (p *parser) readRawUntilCloseParen() string {
	p.lookhd = nil // discard any buffered lookahead; not expected here
	start := p.lex.pos
	for p.lex.pos < len(p.lex.input) && p.lex.input[p.lex.pos] != ')' {
		p.lex.pos++
	}
	raw := string(p.lex.input[start:p.lex.pos])
	return strings.TrimSpace(raw)
}

// parseNth parses the an+b micro-syntax: "odd", "even", "<b>", "<a>n",
// "<a>n+<b>", "<a>n-<b>".
func parseNth(raw string) (NthExpr, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "odd":
		return NthExpr{A: 2, B: 1}, nil
	case "even":
		return NthExpr{A: 2, B: 0}, nil
	}
	s = strings.ReplaceAll(s, " ", "")
	nIdx := strings.IndexByte(s, 'n')
	if nIdx < 0 {
		b, err := strconv.Atoi(s)
		if err != nil {
			return NthExpr{}, fmt.Errorf("selector: invalid nth-child expression %q", raw)
		}
		return NthExpr{A: 0, B: b}, nil
	}
	aPart := s[:nIdx]
	var a int
	switch aPart {
	case "", "+":
		a = 1
	case "-":
		a = -1
	default:
		v, err := strconv.Atoi(aPart)
		if err != nil {
			return NthExpr{}, fmt.Errorf("selector: invalid nth-child coefficient in %q", raw)
		}
		a = v
	}
	rest := s[nIdx+1:]
	b := 0
	if rest != "" {
		v, err := strconv.Atoi(rest)
		if err != nil {
			return NthExpr{}, fmt.Errorf("selector: invalid nth-child offset in %q", raw)
		}
		b = v
	}
	return NthExpr{A: a, B: b}, nil
}
