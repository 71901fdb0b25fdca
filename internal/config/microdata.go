package config

import (
	"strings"

	"golang.org/x/net/html"
)

// item is one parsed microdata item: its itemtype tokens and the
// itemprop-named values found within its scope.
type item struct {
	types []string
	props map[string][]propValue
}

// propValue is either a plain text value or a nested item, matching the
// two shapes an itemprop can take in the microdata model (spec §6: a
// "plugin" property property may itself be a nested *Plugin item).
type propValue struct {
	text string
	item *item
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// itemTypeMatches reports whether typeAttr (a space-separated itemtype
// list) contains a URL whose last path segment equals want, e.g.
// "http://rustybeam.net/ServerConfig" matches want == "ServerConfig".
func itemTypeMatches(typeAttr, want string) bool {
	for _, t := range strings.Fields(typeAttr) {
		if lastSegment(t) == want {
			return true
		}
	}
	return false
}

func lastSegment(url string) string {
	idx := strings.LastIndexByte(url, '/')
	if idx == -1 {
		return url
	}
	return url[idx+1:]
}

// textContent concatenates an element's text node descendants, trimmed.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// propText extracts an itemprop element's value per the microdata rules
// for the handful of element types that carry their value in an
// attribute rather than text content.
func propText(n *html.Node) string {
	switch n.Data {
	case "meta":
		return attrVal(n, "content")
	case "a", "link", "area":
		return attrVal(n, "href")
	case "img", "audio", "video", "source", "track", "iframe", "embed":
		return attrVal(n, "src")
	case "time":
		if v := attrVal(n, "datetime"); v != "" {
			return v
		}
	case "data", "meter":
		if v := attrVal(n, "value"); v != "" {
			return v
		}
	}
	if v := attrVal(n, "content"); v != "" {
		return v
	}
	return textContent(n)
}

// collectProps walks root's subtree collecting itemprop values into
// props, stopping descent at the boundary of any nested item (an
// element carrying its own itemscope). This mirrors the HTML microdata
// top-level-properties algorithm closely enough for a config format that
// controls its own document shape.
func collectProps(root *html.Node, props map[string][]propValue) {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		name := attrVal(c, "itemprop")
		isScope := hasAttr(c, "itemscope")

		switch {
		case name != "" && isScope:
			nested := &item{
				types: strings.Fields(attrVal(c, "itemtype")),
				props: make(map[string][]propValue),
			}
			collectProps(c, nested.props)
			props[name] = append(props[name], propValue{item: nested})
		case name != "":
			props[name] = append(props[name], propValue{text: propText(c)})
			collectProps(c, props)
		case isScope:
			// A nested item with no itemprop naming it here isn't a
			// property of this item - it's an unrelated item embedded in
			// the markup (or a stray ServerConfig root). Don't descend.
		default:
			collectProps(c, props)
		}
	}
}

func findItem(root *html.Node, wantType string) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasAttr(n, "itemscope") && itemTypeMatches(attrVal(n, "itemtype"), wantType) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

func firstText(props map[string][]propValue, key string) string {
	vals, ok := props[key]
	if !ok || len(vals) == 0 {
		return ""
	}
	return vals[0].text
}

func allText(props map[string][]propValue, key string) []string {
	vals := props[key]
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v.text != "" {
			out = append(out, v.text)
		}
	}
	return out
}
