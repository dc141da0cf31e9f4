package expr

import (
	"errors"
	"math"
	"strings"

	"github.com/hyperifyio/steptrace/internal/value"
)

// Bindings exposes the state of the frame an expression is evaluated in.
type Bindings interface {
	// Lookup returns the snapshot value of a variable by its own name.
	Lookup(name string) (any, bool)
	// Eval evaluates source text in the live frame.
	Eval(code string) (any, error)
}

// Messages reported through Evaluator.OnError.
const (
	MsgDivideByZero = "Error: can't divide by zero"
	MsgModuloByZero = "Error: can't modulo by zero"
)

var errUnsupported = errors.New("unsupported operands")

// Evaluator walks expression trees. OnError, when set, receives evaluation
// failures that must surface to the user; all other failures leave the
// affected node without a value.
type Evaluator struct {
	OnError func(msg string)
}

// Evaluate clones n, evaluates the clone against b and returns it.
func (e *Evaluator) Evaluate(n *Node, b Bindings) *Node {
	c := n.Clone()
	if c != nil {
		e.eval(c, b)
	}
	return c
}

// EvaluateAll evaluates each tree in ns.
func (e *Evaluator) EvaluateAll(ns []*Node, b Bindings) []*Node {
	out := make([]*Node, 0, len(ns))
	for _, n := range ns {
		out = append(out, e.Evaluate(n, b))
	}
	return out
}

func (e *Evaluator) report(msg string) {
	if e.OnError != nil {
		e.OnError(msg)
	}
}

// eval sets n.Value and returns it; ok is false when the node stays unresolved.
func (e *Evaluator) eval(n *Node, b Bindings) (any, bool) {
	v, ok := e.evalKind(n, b)
	if ok {
		n.Value = v
	}
	return v, ok
}

func (e *Evaluator) evalKind(n *Node, b Bindings) (any, bool) {
	switch n.Kind {
	case KindNum:
		return parseNum(n.Disp)
	case KindString:
		return n.Disp, true
	case KindVariable:
		switch n.Disp {
		case "True", "true":
			return true, true
		case "False", "false":
			return false, true
		}
		if b == nil {
			return nil, false
		}
		return b.Lookup(n.Disp)
	case KindList, KindSubscript, KindAttribute:
		return live(b, n.Disp)
	case KindTuple:
		code := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(n.Disp), "("), ")")
		return live(b, "["+code+"]")
	case KindBinOp, KindCompare, KindBoolOp:
		if len(n.Children) != 2 {
			return nil, false
		}
		l, r := n.Children[0], n.Children[1]
		a, okA := e.eval(l, b)
		c, okC := e.eval(r, b)
		if !okA || !okC {
			return l.Disp + " " + n.Disp + " " + r.Disp, true
		}
		switch n.Kind {
		case KindBinOp:
			return e.binop(n.Disp, a, c)
		case KindCompare:
			return compare(n.Disp, a, c)
		default:
			return boolop(n.Disp, a, c)
		}
	case KindFunction:
		return e.call(n, b)
	case KindReturn:
		if len(n.Children) == 0 {
			return "returned with value undefined", true
		}
		v, ok := e.eval(n.Children[0], b)
		if !ok {
			return "returned with value undefined", true
		}
		return "returned with value " + value.Display(v), true
	case KindAssignment:
		if len(n.Children) == 0 {
			return nil, false
		}
		last := n.Children[len(n.Children)-1]
		targets := make([]string, 0, len(n.Children)-1)
		for _, ch := range n.Children[:len(n.Children)-1] {
			targets = append(targets, ch.Disp)
		}
		v, ok := e.eval(last, b)
		text := "undefined"
		if ok {
			text = value.Display(v)
		}
		return strings.Join(targets, ",") + " assigned to " + text, true
	}
	return nil, false
}

func live(b Bindings, code string) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, err := b.Eval(code)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (e *Evaluator) binop(op string, a, b any) (any, bool) {
	if op == "+" {
		if _, ok := a.(string); ok {
			return value.Display(a) + value.Display(b), true
		}
		if _, ok := b.(string); ok {
			return value.Display(a) + value.Display(b), true
		}
		la, okA := a.([]any)
		lb, okB := b.([]any)
		if okA && okB {
			out := make([]any, 0, len(la)+len(lb))
			return append(append(out, la...), lb...), true
		}
	}
	if (op == "/" || op == "//" || op == "%") && isZero(b) {
		if op == "%" {
			e.report(MsgModuloByZero)
		} else {
			e.report(MsgDivideByZero)
		}
		return nil, false
	}
	v, err := arith(op, a, b)
	if err != nil {
		return nil, false
	}
	return v, true
}

func isZero(v any) bool {
	f, ok := value.Number(v)
	return ok && f == 0
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), true
		}
	}
	return 0, false
}

func arith(op string, a, b any) (any, error) {
	fa, okA := value.Number(a)
	fb, okB := value.Number(b)
	if !okA || !okB {
		return nil, errUnsupported
	}
	ia, intA := a.(int64)
	ib, intB := b.(int64)
	ints := intA && intB

	switch op {
	case "+":
		if ints {
			return ia + ib, nil
		}
		return fa + fb, nil
	case "-":
		if ints {
			return ia - ib, nil
		}
		return fa - fb, nil
	case "*":
		if ints {
			return ia * ib, nil
		}
		return fa * fb, nil
	case "/":
		if ints && ia%ib == 0 {
			return ia / ib, nil
		}
		return fa / fb, nil
	case "//":
		if ints {
			q := ia / ib
			if (ia%ib != 0) && ((ia < 0) != (ib < 0)) {
				q--
			}
			return q, nil
		}
		return math.Floor(fa / fb), nil
	case "%":
		if ints {
			return ia % ib, nil
		}
		return math.Mod(fa, fb), nil
	case "**":
		r := math.Pow(fa, fb)
		if ints && ib >= 0 && math.Abs(r) < 1<<53 {
			return int64(r), nil
		}
		return r, nil
	}

	xa, okA := asInt(a)
	xb, okB := asInt(b)
	if !okA || !okB {
		return nil, errUnsupported
	}
	switch op {
	case "<<":
		return int64(int32(xa) << (uint32(xb) & 31)), nil
	case ">>":
		return int64(int32(xa) >> (uint32(xb) & 31)), nil
	case ">>>":
		return int64(uint32(xa) >> (uint32(xb) & 31)), nil
	case "|":
		return int64(int32(xa) | int32(xb)), nil
	case "^":
		return int64(int32(xa) ^ int32(xb)), nil
	case "&":
		return int64(int32(xa) & int32(xb)), nil
	}
	return nil, errUnsupported
}

func compare(op string, a, b any) (any, bool) {
	switch op {
	case "==", "===", "is":
		return value.Equal(a, b), true
	case "!=", "!==", "is not":
		return !value.Equal(a, b), true
	case "in":
		return contains(b, a)
	case "not in":
		r, ok := contains(b, a)
		if !ok {
			return nil, false
		}
		return !r.(bool), true
	}
	c, ok := order(a, b)
	if !ok {
		return nil, false
	}
	switch op {
	case "<":
		return c < 0, true
	case "<=":
		return c <= 0, true
	case ">":
		return c > 0, true
	case ">=":
		return c >= 0, true
	}
	return nil, false
}

func order(a, b any) (int, bool) {
	if fa, ok := value.Number(a); ok {
		fb, ok := value.Number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func contains(container, item any) (any, bool) {
	switch c := container.(type) {
	case []any:
		for _, e := range c {
			if value.Equal(e, item) {
				return true, true
			}
		}
		return false, true
	case string:
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		return strings.Contains(c, s), true
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		_, found := c[s]
		return found, true
	}
	return nil, false
}

func boolop(op string, a, b any) (any, bool) {
	switch op {
	case "and", "&&":
		if !value.Truthy(a) {
			return a, true
		}
		return b, true
	case "or", "||":
		if value.Truthy(a) {
			return a, true
		}
		return b, true
	}
	return nil, false
}

func parseNum(s string) (any, bool) {
	if strings.Contains(s, ".") {
		f, err := parseFloat(s)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	i, err := parseInt(s)
	if err != nil {
		return nil, false
	}
	return i, true
}
