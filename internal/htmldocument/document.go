// Package htmldocument is the HTML Document Engine: it parses HTML bytes
// into an in-memory tree, resolves CSS selectors against it, extracts and
// mutates selected node-sets, and serializes the tree back to bytes.
package htmldocument

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jamesaduncan/rustybeam/internal/htmldocument/selector"
)

// ParseError is returned only when the input bytes are not valid UTF-8;
// otherwise parsing is tolerant and always succeeds with a best-effort
// tree, per the underlying HTML5 parsing algorithm.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "htmldocument: " + e.Reason
}

// Document wraps a parsed HTML tree rooted at the synthetic document node
// produced by html.Parse.
type Document struct {
	root *html.Node
}

// Root returns the document's root html.Node (type html.DocumentNode).
func (d *Document) Root() *html.Node {
	return d.root
}

// Parse parses an HTML byte sequence into a Document. Malformed markup
// never produces an error - the HTML5 parsing algorithm always yields a
// best-effort tree - but input that is not valid UTF-8 does, since the
// tree cannot represent text content correctly.
func Parse(data []byte) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, &ParseError{Reason: "input is not valid UTF-8"}
	}
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return &Document{root: root}, nil
}

// NodeSet is an ordered (document order) collection of matched nodes.
type NodeSet []*html.Node

// Select evaluates a CSS selector against the document and returns the
// matched nodes in document order.
func (d *Document) Select(sel string) (NodeSet, error) {
	list, err := selector.Parse(sel)
	if err != nil {
		return nil, err
	}
	var result NodeSet
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && selector.Matches(list, n) {
			result = append(result, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return result, nil
}

// Serialize produces the canonical byte serialization of the document.
// Serialization is deterministic: the same tree always serializes to the
// same bytes.
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, fmt.Errorf("htmldocument: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderOuter serializes node including its own opening/closing tags.
func RenderOuter(node *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return nil, fmt.Errorf("htmldocument: render_outer: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderInner serializes node's children concatenated, without node's own
// tags.
func RenderInner(node *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, fmt.Errorf("htmldocument: render_inner: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// parseFragment parses an HTML fragment as it would appear as a child of
// an element named contextTag. Passing the correct context is what keeps
// a bare "<td>X</td>" fragment from being wrapped in a synthetic
// table/tbody/tr chain by the HTML5 parsing algorithm's foster-parenting
// rules - a historical defect this engine must not reproduce.
func parseFragment(fragment []byte, contextTag string) ([]*html.Node, error) {
	if !utf8.Valid(fragment) {
		return nil, &ParseError{Reason: "fragment is not valid UTF-8"}
	}
	if contextTag == "" {
		contextTag = "body"
	}
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     contextTag,
		DataAtom: atom.Lookup([]byte(contextTag)),
	}
	nodes, err := html.ParseFragment(bytes.NewReader(fragment), context)
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return nodes, nil
}

// contextTagFor returns the tag name to use as fragment-parsing context
// when inserting content as node's children.
func contextTagFor(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return "body"
	}
	return node.Data
}
