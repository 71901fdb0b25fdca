package selector

import (
	"strings"

	"golang.org/x/net/html"
)

// Matches reports whether node satisfies at least one complex selector in
// the list (comma-separated selectors are an OR).
func Matches(list List, node *html.Node) bool {
	if node == nil || node.Type != html.ElementNode {
		return false
	}
	for _, cx := range list {
		if matchComplex(cx, node) {
			return true
		}
	}
	return false
}

func matchComplex(cx Complex, node *html.Node) bool {
	if len(cx) == 0 {
		return false
	}
	if !matchCompound(cx[len(cx)-1].compound, node) {
		return false
	}
	return matchFromIndex(cx, len(cx)-2, node)
}

// matchFromIndex verifies that the structural relationships required by
// cx[0..idx] hold, given that cx[idx+1] already matched at node.
func matchFromIndex(cx Complex, idx int, node *html.Node) bool {
	if idx < 0 {
		return true
	}
	combinator := cx[idx+1].combinator
	compound := cx[idx].compound

	switch combinator {
	case Descendant:
		for anc := node.Parent; anc != nil; anc = anc.Parent {
			if anc.Type == html.ElementNode && matchCompound(compound, anc) && matchFromIndex(cx, idx-1, anc) {
				return true
			}
		}
		return false
	case Child:
		anc := node.Parent
		if anc == nil || anc.Type != html.ElementNode {
			return false
		}
		return matchCompound(compound, anc) && matchFromIndex(cx, idx-1, anc)
	case AdjacentSibling:
		sib := prevElementSibling(node)
		if sib == nil {
			return false
		}
		return matchCompound(compound, sib) && matchFromIndex(cx, idx-1, sib)
	case GeneralSibling:
		for sib := prevElementSibling(node); sib != nil; sib = prevElementSibling(sib) {
			if matchCompound(compound, sib) && matchFromIndex(cx, idx-1, sib) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func prevElementSibling(node *html.Node) *html.Node {
	for s := node.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func nextElementSibling(node *html.Node) *html.Node {
	for s := node.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func matchCompound(c Compound, node *html.Node) bool {
	if c.Type != "" && c.Type != "*" && !strings.EqualFold(c.Type, node.Data) {
		return false
	}
	if c.ID != "" && attrValue(node, "id") != c.ID {
		return false
	}
	for _, class := range c.Classes {
		if !hasClass(node, class) {
			return false
		}
	}
	for _, a := range c.Attrs {
		if !matchAttr(a, node) {
			return false
		}
	}
	for _, p := range c.Pseudos {
		if !matchPseudo(p, node) {
			return false
		}
	}
	return true
}

func attrValue(node *html.Node, name string) string {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(node *html.Node, name string) bool {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

func hasClass(node *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(node, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func matchAttr(a AttrSelector, node *html.Node) bool {
	if a.Op == AttrPresent {
		return hasAttr(node, a.Name)
	}
	if !hasAttr(node, a.Name) {
		return false
	}
	val := attrValue(node, a.Name)
	switch a.Op {
	case AttrEquals:
		return val == a.Value
	case AttrIncludes:
		for _, w := range strings.Fields(val) {
			if w == a.Value {
				return true
			}
		}
		return false
	case AttrDashMatch:
		return val == a.Value || strings.HasPrefix(val, a.Value+"-")
	case AttrPrefix:
		return a.Value != "" && strings.HasPrefix(val, a.Value)
	case AttrSuffix:
		return a.Value != "" && strings.HasSuffix(val, a.Value)
	case AttrSubstring:
		return a.Value != "" && strings.Contains(val, a.Value)
	default:
		return false
	}
}

func matchPseudo(p PseudoSelector, node *html.Node) bool {
	switch p.Kind {
	case PseudoFirstChild:
		return prevElementSibling(node) == nil
	case PseudoLastChild:
		return nextElementSibling(node) == nil
	case PseudoNthChild:
		return matchNth(p.Nth, elementIndex(node))
	case PseudoNot:
		if p.Negated == nil {
			return true
		}
		return !matchCompound(*p.Negated, node)
	default:
		return false
	}
}

// elementIndex returns node's 1-based position among its parent's element
// children, in document order.
func elementIndex(node *html.Node) int {
	idx := 1
	for s := node.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

// matchNth reports whether there exists k >= 0 with pos == a*k + b.
func matchNth(nth NthExpr, pos int) bool {
	if nth.A == 0 {
		return pos == nth.B
	}
	diff := pos - nth.B
	if diff%nth.A != 0 {
		return false
	}
	return diff/nth.A >= 0
}
