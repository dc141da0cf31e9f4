package expr

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperifyio/steptrace/internal/value"
)

type builtin func(args []any) (any, bool)

// builtins are the side-effect free functions evaluated from their arguments.
var builtins = map[string]builtin{
	"len":   fnLen,
	"abs":   fnAbs,
	"any":   fnAny,
	"bin":   func(a []any) (any, bool) { return radix(a, 2, "0b") },
	"chr":   fnChr,
	"float": fnFloat,
	"hex":   func(a []any) (any, bool) { return radix(a, 16, "0x") },
	"int":   fnInt,
	"max":   func(a []any) (any, bool) { return extreme(a, 1) },
	"min":   func(a []any) (any, bool) { return extreme(a, -1) },
	"ord":   fnOrd,
	"str":   fnStr,
	"sum":   fnSum,
	"list":  fnList,
	"pow":   fnPow,

	"Math.abs":   fnAbs,
	"Math.max":   func(a []any) (any, bool) { return extreme(a, 1) },
	"Math.min":   func(a []any) (any, bool) { return extreme(a, -1) },
	"Math.pow":   fnPow,
	"Math.floor": func(a []any) (any, bool) { return round(a, math.Floor) },
	"Math.ceil":  func(a []any) (any, bool) { return round(a, math.Ceil) },
	"String":     fnStr,
	"Number":     fnFloat,
	"parseInt":   fnInt,
	"parseFloat": fnFloat,
}

// methods are called on a live receiver through Bindings.Eval.
var methods = map[string]bool{
	"index":       true,
	"count":       true,
	"lower":       true,
	"upper":       true,
	"join":        true,
	"indexOf":     true,
	"lastIndexOf": true,
	"includes":    true,
	"toLowerCase": true,
	"toUpperCase": true,
}

func (e *Evaluator) call(n *Node, b Bindings) (any, bool) {
	if fn, ok := builtins[n.Disp]; ok {
		args := make([]any, 0, len(n.Children))
		for _, ch := range n.Children {
			v, ok := e.eval(ch, b)
			if !ok {
				return nil, false
			}
			args = append(args, v)
		}
		return fn(args)
	}
	dot := strings.LastIndexByte(n.Disp, '.')
	if dot < 0 || !methods[n.Disp[dot+1:]] {
		return nil, false
	}
	code := n.Code
	if code == "" {
		parts := make([]string, 0, len(n.Children))
		for _, ch := range n.Children {
			parts = append(parts, ch.Disp)
		}
		code = n.Disp + "(" + strings.Join(parts, ", ") + ")"
	}
	return live(b, code)
}

func one(args []any) (any, bool) {
	if len(args) != 1 {
		return nil, false
	}
	return args[0], true
}

func fnLen(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	switch x := a.(type) {
	case string:
		return int64(utf8.RuneCountInString(x)), true
	case []any:
		return int64(len(x)), true
	case map[string]any:
		return int64(len(x)), true
	}
	return nil, false
}

func fnAbs(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	switch x := a.(type) {
	case int64:
		if x < 0 {
			return -x, true
		}
		return x, true
	case float64:
		return math.Abs(x), true
	}
	return nil, false
}

func fnAny(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	list, ok := a.([]any)
	if !ok {
		return nil, false
	}
	for _, v := range list {
		if value.Truthy(v) {
			return true, true
		}
	}
	return false, true
}

func radix(args []any, base int, prefix string) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	i, ok := a.(int64)
	if !ok {
		return nil, false
	}
	if i < 0 {
		return "-" + prefix + strconv.FormatInt(-i, base), true
	}
	return prefix + strconv.FormatInt(i, base), true
}

func fnChr(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	i, ok := a.(int64)
	if !ok || i < 0 || i > utf8.MaxRune {
		return nil, false
	}
	return string(rune(i)), true
}

func fnOrd(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	s, ok := a.(string)
	if !ok || utf8.RuneCountInString(s) != 1 {
		return nil, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return int64(r), true
}

func fnFloat(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	if f, ok := value.Number(a); ok {
		return f, true
	}
	if s, ok := a.(string); ok {
		f, err := parseFloat(strings.TrimSpace(s))
		if err != nil {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

func fnInt(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	switch x := a.(type) {
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return int64(math.Trunc(x)), true
	case string:
		i, err := parseInt(strings.TrimSpace(x))
		if err != nil {
			return nil, false
		}
		return i, true
	}
	return nil, false
}

func fnStr(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	return value.Display(a), true
}

func fnSum(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	list, ok := a.([]any)
	if !ok {
		return nil, false
	}
	var acc any = int64(0)
	for _, v := range list {
		next, err := arith("+", acc, v)
		if err != nil {
			return nil, false
		}
		acc = next
	}
	return acc, true
}

func fnList(args []any) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	switch x := a.(type) {
	case []any:
		out := make([]any, len(x))
		copy(out, x)
		return out, true
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, true
	}
	return nil, false
}

func fnPow(args []any) (any, bool) {
	if len(args) != 2 {
		return nil, false
	}
	v, err := arith("**", args[0], args[1])
	if err != nil {
		return nil, false
	}
	return v, true
}

func round(args []any, f func(float64) float64) (any, bool) {
	a, ok := one(args)
	if !ok {
		return nil, false
	}
	x, ok := value.Number(a)
	if !ok {
		return nil, false
	}
	r := f(x)
	if math.Abs(r) < 1<<53 {
		return int64(r), true
	}
	return r, true
}

// extreme returns the largest (sign 1) or smallest (sign -1) element, taking
// either a single list argument or several scalar arguments.
func extreme(args []any, sign int) (any, bool) {
	items := args
	if len(args) == 1 {
		list, ok := args[0].([]any)
		if !ok {
			return nil, false
		}
		items = list
	}
	if len(items) == 0 {
		return nil, false
	}
	best := items[0]
	for _, v := range items[1:] {
		c, ok := order(v, best)
		if !ok {
			return nil, false
		}
		if c*sign > 0 {
			best = v
		}
	}
	return best, true
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
