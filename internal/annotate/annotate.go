// Package annotate builds the per-line expression trees the tracer
// re-evaluates at each step. It covers expression statements, assignments,
// initialized declarations, returns and the tests of if and while.
package annotate

import (
	"sort"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/token"

	"github.com/hyperifyio/steptrace/internal/expr"
	"github.com/hyperifyio/steptrace/internal/instrument"
)

// Annotations maps a line to its expression trees.
type Annotations map[int][]*expr.Node

// Lines returns the annotated lines in order.
func (a Annotations) Lines() []int {
	out := make([]int, 0, len(a))
	for ln := range a {
		out = append(out, ln)
	}
	sort.Ints(out)
	return out
}

type builder struct {
	prg  *ast.Program
	src  string
	f    *file.File
	base int
	out  Annotations
}

// Source parses src and annotates every supported statement.
func Source(name, src string) (Annotations, error) {
	prg, err := instrument.Parse(name, src)
	if err != nil {
		return nil, err
	}
	b := &builder{prg: prg, src: src, f: prg.File, base: 1, out: Annotations{}}
	if prg.File != nil {
		b.base = prg.File.Base()
	}
	b.statements(prg.Body)
	return b.out, nil
}

func (b *builder) line(idx file.Idx) int {
	if b.f == nil {
		return 0
	}
	return b.f.Position(int(idx) - b.base).Line
}

func (b *builder) text(n ast.Node) string {
	s, e := int(n.Idx0())-b.base, int(n.Idx1())-b.base
	if s < 0 || e > len(b.src) || s >= e {
		return ""
	}
	return b.src[s:e]
}

func (b *builder) add(idx file.Idx, n *expr.Node) {
	if n == nil {
		return
	}
	ln := b.line(idx)
	b.out[ln] = append(b.out[ln], n)
}

func (b *builder) statements(list []ast.Statement) {
	for _, st := range list {
		b.statement(st)
	}
}

func (b *builder) statement(st ast.Statement) {
	switch s := st.(type) {
	case *ast.ExpressionStatement:
		b.add(s.Idx0(), b.toplevel(s.Expression))
	case *ast.VariableStatement:
		b.bindings(s.List)
	case *ast.LexicalDeclaration:
		b.bindings(s.List)
	case *ast.ReturnStatement:
		n := &expr.Node{Kind: expr.KindReturn, Disp: "return"}
		if s.Argument != nil {
			if ch := b.node(s.Argument); ch != nil {
				n.Children = []*expr.Node{ch}
			}
		}
		b.add(s.Return, n)
	case *ast.IfStatement:
		b.add(instrument.IfIdx(b.prg, b.src, s), b.node(s.Test))
		b.statement(s.Consequent)
		if s.Alternate != nil {
			b.statement(s.Alternate)
		}
	case *ast.WhileStatement:
		b.add(s.Idx0(), b.node(s.Test))
		b.statement(s.Body)
	case *ast.DoWhileStatement:
		b.statement(s.Body)
	case *ast.ForStatement:
		b.statement(s.Body)
	case *ast.ForInStatement:
		b.statement(s.Body)
	case *ast.ForOfStatement:
		b.statement(s.Body)
	case *ast.BlockStatement:
		b.statements(s.List)
	case *ast.LabelledStatement:
		b.statement(s.Statement)
	case *ast.TryStatement:
		b.statement(s.Body)
		if s.Catch != nil {
			b.statement(s.Catch.Body)
		}
		if s.Finally != nil {
			b.statement(s.Finally)
		}
	case *ast.SwitchStatement:
		for _, c := range s.Body {
			b.statements(c.Consequent)
		}
	case *ast.FunctionDeclaration:
		if s.Function.Body != nil {
			b.statements(s.Function.Body.List)
		}
	}
}

func (b *builder) bindings(list []*ast.Binding) {
	for _, bd := range list {
		id, ok := bd.Target.(*ast.Identifier)
		if !ok || bd.Initializer == nil {
			continue
		}
		v := b.node(bd.Initializer)
		if v == nil {
			continue
		}
		b.add(id.Idx, &expr.Node{
			Kind:     expr.KindAssignment,
			Disp:     "=",
			Children: []*expr.Node{{Kind: expr.KindVariable, Disp: string(id.Name)}, v},
		})
	}
}

// toplevel annotates the expression of an expression statement.
func (b *builder) toplevel(e ast.Expression) *expr.Node {
	a, ok := e.(*ast.AssignExpression)
	if !ok {
		return b.node(e)
	}
	target := b.node(a.Left)
	if target == nil {
		return nil
	}
	v := b.node(a.Right)
	if v == nil {
		return nil
	}
	if a.Operator != token.ASSIGN {
		v = &expr.Node{Kind: kindOf(a.Operator), Disp: a.Operator.String(), Children: []*expr.Node{b.node(a.Left), v}}
	}
	return &expr.Node{Kind: expr.KindAssignment, Disp: "=", Children: []*expr.Node{target, v}}
}

// node converts e, or returns nil for unsupported forms.
func (b *builder) node(e ast.Expression) *expr.Node {
	switch x := e.(type) {
	case *ast.NumberLiteral:
		return &expr.Node{Kind: expr.KindNum, Disp: x.Literal}
	case *ast.StringLiteral:
		return &expr.Node{Kind: expr.KindString, Disp: string(x.Value)}
	case *ast.BooleanLiteral:
		return &expr.Node{Kind: expr.KindVariable, Disp: x.Literal}
	case *ast.Identifier:
		return &expr.Node{Kind: expr.KindVariable, Disp: string(x.Name)}
	case *ast.ArrayLiteral:
		return b.leaf(expr.KindList, x)
	case *ast.BracketExpression:
		return b.leaf(expr.KindSubscript, x)
	case *ast.DotExpression:
		return b.leaf(expr.KindAttribute, x)
	case *ast.BinaryExpression:
		l, r := b.node(x.Left), b.node(x.Right)
		if l == nil || r == nil {
			return nil
		}
		return &expr.Node{Kind: kindOf(x.Operator), Disp: x.Operator.String(), Children: []*expr.Node{l, r}}
	case *ast.CallExpression:
		callee := b.text(x.Callee)
		if callee == "" {
			return nil
		}
		n := &expr.Node{Kind: expr.KindFunction, Disp: callee, Code: b.text(x)}
		for _, arg := range x.ArgumentList {
			ch := b.node(arg)
			if ch == nil {
				ch = &expr.Node{Kind: expr.KindSubscript, Disp: b.text(arg)}
			}
			n.Children = append(n.Children, ch)
		}
		return n
	}
	return nil
}

func (b *builder) leaf(k expr.Kind, n ast.Node) *expr.Node {
	text := b.text(n)
	if text == "" {
		return nil
	}
	return &expr.Node{Kind: k, Disp: text}
}

func kindOf(op token.Token) expr.Kind {
	switch op {
	case token.LOGICAL_AND, token.LOGICAL_OR:
		return expr.KindBoolOp
	case token.LESS, token.LESS_OR_EQUAL, token.GREATER, token.GREATER_OR_EQUAL,
		token.EQUAL, token.STRICT_EQUAL, token.NOT_EQUAL, token.STRICT_NOT_EQUAL, token.IN:
		return expr.KindCompare
	}
	return expr.KindBinOp
}
