package htmldocument

import "golang.org/x/net/html"

// ReplaceInner parses fragment as children of node and replaces node's
// existing children with the fragment's roots.
func ReplaceInner(node *html.Node, fragment []byte) error {
	roots, err := parseFragment(fragment, contextTagFor(node))
	if err != nil {
		return err
	}
	for c := node.FirstChild; c != nil; {
		next := c.NextSibling
		node.RemoveChild(c)
		c = next
	}
	for _, r := range roots {
		if r.Parent != nil {
			r.Parent.RemoveChild(r)
		}
		node.AppendChild(r)
	}
	return nil
}

// ReplaceOuter parses fragment in the context of node's parent and
// replaces node itself with the fragment's roots.
func ReplaceOuter(node *html.Node, fragment []byte) error {
	parent := node.Parent
	if parent == nil {
		return ReplaceInner(node, fragment)
	}
	roots, err := parseFragment(fragment, contextTagFor(parent))
	if err != nil {
		return err
	}
	for _, r := range roots {
		if r.Parent != nil {
			r.Parent.RemoveChild(r)
		}
		parent.InsertBefore(r, node)
	}
	parent.RemoveChild(node)
	return nil
}

// Append parses fragment as children of node and appends its roots after
// node's existing last child.
func Append(node *html.Node, fragment []byte) error {
	roots, err := parseFragment(fragment, contextTagFor(node))
	if err != nil {
		return err
	}
	for _, r := range roots {
		if r.Parent != nil {
			r.Parent.RemoveChild(r)
		}
		node.AppendChild(r)
	}
	return nil
}

// Remove detaches node and all its descendants from its parent.
func Remove(node *html.Node) error {
	if node.Parent == nil {
		return nil
	}
	node.Parent.RemoveChild(node)
	return nil
}
