package selector

// AttrOp is the kind of attribute-value comparison in an attribute selector.
type AttrOp int

const (
	AttrPresent AttrOp = iota // [attr]
	AttrEquals                // [attr=val]
	AttrIncludes              // [attr~=val] space-separated word match
	AttrDashMatch             // [attr|=val] exact or prefix before '-'
	AttrPrefix                // [attr^=val]
	AttrSuffix                // [attr$=val]
	AttrSubstring             // [attr*=val]
)

// AttrSelector matches one attribute test.
type AttrSelector struct {
	Name  string
	Op    AttrOp
	Value string
}

// NthExpr represents the an+b expression accepted by :nth-child().
type NthExpr struct {
	A int
	B int
}

// Pseudo identifies a supported pseudo-class.
type Pseudo int

const (
	PseudoFirstChild Pseudo = iota
	PseudoLastChild
	PseudoNthChild
	PseudoNot
)

// PseudoSelector is one pseudo-class test attached to a compound selector.
type PseudoSelector struct {
	Kind    Pseudo
	Nth     NthExpr    // valid when Kind == PseudoNthChild
	Negated *Compound  // valid when Kind == PseudoNot; the negated simple selector
}

// Compound is a sequence of simple selectors with no combinator between
// them - all must match the same element (e.g. "div#id.class[attr]").
type Compound struct {
	Type    string // "" means no type constraint; "*" is the explicit universal selector
	ID      string
	Classes []string
	Attrs   []AttrSelector
	Pseudos []PseudoSelector
}

// Combinator connects one compound selector to the next one in a complex
// selector, describing the structural relationship required between them.
type Combinator int

const (
	// NoCombinator marks the first compound in a complex selector.
	NoCombinator Combinator = iota
	Descendant
	Child
	AdjacentSibling
	GeneralSibling
)

// step pairs a compound selector with the combinator that connects it to
// the previous step in the complex selector (ignored for the first step).
type step struct {
	combinator Combinator
	compound   Compound
}

// Complex is one selector in a comma-separated list, e.g. "ul.entry > li".
type Complex []step

// List is a full, comma-separated selector, e.g. "a, b > c".
type List []Complex
