package harness

import (
	"errors"
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// errNotLiteral is returned for expected values that would need code to run.
var errNotLiteral = errors.New("not a literal")

// literal converts list or boolean literal text to its exported form. The
// text is parsed, never run: only array, object, string, number, boolean
// and null literals are accepted.
func literal(text string) (any, error) {
	prg, err := parser.ParseFile(nil, "expected.js", "("+text+"\n)", 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, fmt.Errorf("literal %q: %w", text, err)
	}
	if len(prg.Body) != 1 {
		return nil, fmt.Errorf("literal %q: %w", text, errNotLiteral)
	}
	st, ok := prg.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, fmt.Errorf("literal %q: %w", text, errNotLiteral)
	}
	v, err := literalValue(st.Expression)
	if err != nil {
		return nil, fmt.Errorf("literal %q: %w", text, err)
	}
	return v, nil
}

func literalValue(e ast.Expression) (any, error) {
	switch x := e.(type) {
	case *ast.BooleanLiteral:
		return x.Value, nil
	case *ast.NullLiteral:
		return nil, nil
	case *ast.StringLiteral:
		return x.Value.String(), nil
	case *ast.NumberLiteral:
		return number(x.Value)
	case *ast.UnaryExpression:
		n, ok := x.Operand.(*ast.NumberLiteral)
		if !ok || (x.Operator != token.MINUS && x.Operator != token.PLUS) {
			break
		}
		v, err := number(n.Value)
		if err != nil || x.Operator == token.PLUS {
			return v, err
		}
		switch f := v.(type) {
		case int64:
			return -f, nil
		case float64:
			return -f, nil
		}
	case *ast.ArrayLiteral:
		out := make([]any, 0, len(x.Value))
		for _, el := range x.Value {
			if el == nil {
				return nil, fmt.Errorf("array hole: %w", errNotLiteral)
			}
			v, err := literalValue(el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *ast.ObjectLiteral:
		out := make(map[string]any, len(x.Value))
		for _, p := range x.Value {
			kv, ok := p.(*ast.PropertyKeyed)
			if !ok || kv.Computed || kv.Kind != ast.PropertyKindValue {
				return nil, fmt.Errorf("object property: %w", errNotLiteral)
			}
			var key string
			switch k := kv.Key.(type) {
			case *ast.StringLiteral:
				key = k.Value.String()
			case *ast.Identifier:
				key = k.Name.String()
			case *ast.NumberLiteral:
				key = k.Literal
			default:
				return nil, fmt.Errorf("object key: %w", errNotLiteral)
			}
			v, err := literalValue(kv.Value)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T: %w", e, errNotLiteral)
}

func number(v any) (any, error) {
	switch n := v.(type) {
	case int64, float64:
		return n, nil
	}
	return nil, fmt.Errorf("number %v: %w", v, errNotLiteral)
}
