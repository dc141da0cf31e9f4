// Package expr evaluates annotated expression trees against the bindings that
// are live at a traced line.
//
// Trees are produced by an annotation front-end, keyed by line number. Each
// evaluation works on a clone, so the caller's trees are never mutated and
// every step gets its own evaluated copy.
package expr

// Kind tags a node with the syntactic form it was built from.
type Kind string

const (
	KindNum        Kind = "num"
	KindVariable   Kind = "variable"
	KindString     Kind = "string"
	KindList       Kind = "list"
	KindSubscript  Kind = "subscript"
	KindAttribute  Kind = "attribute"
	KindTuple      Kind = "tuple"
	KindBinOp      Kind = "binop"
	KindBoolOp     Kind = "boolop"
	KindCompare    Kind = "compare"
	KindFunction   Kind = "function"
	KindReturn     Kind = "return"
	KindAssignment Kind = "assignment"
)

// Node is one expression tree node. Disp holds the display text: the literal,
// name or operator for leaves and operator nodes, the callee for function
// nodes. Code, when set, is the full source text of a call.
type Node struct {
	Kind     Kind    `json:"type" yaml:"type"`
	Disp     string  `json:"disp" yaml:"disp"`
	Code     string  `json:"code,omitempty" yaml:"code,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
	Value    any     `json:"eval_value,omitempty" yaml:"-"`
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return &c
}
