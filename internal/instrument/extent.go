package instrument

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// span is a half-open byte range [start, end) of the original source.
type span struct{ start, end int }

func (in *instrumenter) off(idx file.Idx) int { return int(idx) - in.base }

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// skipForward returns the first offset at or after p that is not whitespace
// or a comment.
func (in *instrumenter) skipForward(p int) int {
	src := in.src
	for p < len(src) {
		switch {
		case isSpace(src[p]):
			p++
		case src[p] == '/' && p+1 < len(src) && src[p+1] == '/':
			for p < len(src) && src[p] != '\n' {
				p++
			}
		case src[p] == '/' && p+1 < len(src) && src[p+1] == '*':
			p += 2
			for p+1 < len(src) && !(src[p] == '*' && src[p+1] == '/') {
				p++
			}
			p += 2
			if p > len(src) {
				p = len(src)
			}
		default:
			return p
		}
	}
	return p
}

// skipBackward returns the offset of the last non-whitespace byte before p,
// or -1.
func (in *instrumenter) skipBackward(p int) int {
	p--
	for p >= 0 && isSpace(in.src[p]) {
		p--
	}
	return p
}

// ext returns the extent of e including any parentheses wrapping it. The
// parser drops parentheses, so the node positions alone can cut a
// parenthesized operand in half.
func (in *instrumenter) ext(e ast.Expression) span {
	s := in.inner(e)
	for {
		before := in.skipBackward(s.start)
		after := in.skipForward(s.end)
		if before < 0 || after >= len(in.src) || in.src[before] != '(' || in.src[after] != ')' {
			return s
		}
		s = span{before, after + 1}
	}
}

// inner returns the extent of e without its own wrapping parentheses, but
// with those of its leftmost and rightmost operands.
func (in *instrumenter) inner(e ast.Expression) span {
	return span{in.exprStart(e), in.exprEnd(e)}
}

func (in *instrumenter) exprStart(e ast.Expression) int {
	switch x := e.(type) {
	case *ast.AssignExpression:
		return in.ext(x.Left).start
	case *ast.BinaryExpression:
		return in.ext(x.Left).start
	case *ast.BracketExpression:
		return in.ext(x.Left).start
	case *ast.DotExpression:
		return in.ext(x.Left).start
	case *ast.PrivateDotExpression:
		return in.ext(x.Left).start
	case *ast.CallExpression:
		return in.ext(x.Callee).start
	case *ast.ConditionalExpression:
		return in.ext(x.Test).start
	case *ast.SequenceExpression:
		return in.ext(x.Sequence[0]).start
	case *ast.UnaryExpression:
		if x.Postfix {
			return in.ext(x.Operand).start
		}
	case *ast.TemplateLiteral:
		if x.Tag != nil {
			return in.ext(x.Tag).start
		}
	case *ast.OptionalChain:
		return in.exprStart(x.Expression)
	case *ast.Optional:
		return in.exprStart(x.Expression)
	}
	return in.off(e.Idx0())
}

func (in *instrumenter) exprEnd(e ast.Expression) int {
	switch x := e.(type) {
	case *ast.AssignExpression:
		return in.ext(x.Right).end
	case *ast.BinaryExpression:
		return in.ext(x.Right).end
	case *ast.ConditionalExpression:
		return in.ext(x.Alternate).end
	case *ast.SequenceExpression:
		return in.ext(x.Sequence[len(x.Sequence)-1]).end
	case *ast.UnaryExpression:
		if x.Postfix {
			return in.skipForward(in.ext(x.Operand).end) + 2
		}
		return in.ext(x.Operand).end
	case *ast.ArrowFunctionLiteral:
		if body, ok := x.Body.(*ast.ExpressionBody); ok {
			return in.ext(body.Expression).end
		}
	case *ast.YieldExpression:
		if x.Argument != nil {
			return in.ext(x.Argument).end
		}
	case *ast.AwaitExpression:
		return in.ext(x.Argument).end
	case *ast.NewExpression:
		if len(x.ArgumentList) == 0 && x.RightParenthesis == 0 {
			return in.ext(x.Callee).end
		}
	case *ast.SpreadElement:
		return in.ext(x.Expression).end
	case *ast.OptionalChain:
		return in.exprEnd(x.Expression)
	case *ast.Optional:
		return in.exprEnd(x.Expression)
	}
	return in.off(e.Idx1())
}

// stmtStart is where a hook placed before s must go.
func (in *instrumenter) stmtStart(s ast.Statement) int {
	switch x := s.(type) {
	case *ast.ExpressionStatement:
		return in.ext(x.Expression).start
	case *ast.IfStatement:
		return in.ifStart(x)
	}
	return in.off(s.Idx0())
}

// ifStart returns the offset of the if keyword of x. The parser leaves
// IfStatement.If at zero, so the keyword is found from the test. The
// parentheses of the statement are part of the test's extent.
func (in *instrumenter) ifStart(x *ast.IfStatement) int {
	if x.If > 0 {
		return in.off(x.If)
	}
	test := in.ext(x.Test).start
	p := in.skipBackward(test)
	if p >= 0 && in.src[p] == '(' {
		p = in.skipBackward(p)
	}
	if p >= 1 && in.src[p-1:p+1] == "if" {
		return p - 1
	}
	return strings.LastIndex(in.src[:test], "if")
}

// IfIdx returns the position of the if keyword of x, a statement of prg
// parsed from src.
func IfIdx(prg *ast.Program, src string, x *ast.IfStatement) file.Idx {
	in := &instrumenter{src: src, base: prg.File.Base(), prg: prg}
	return file.Idx(in.ifStart(x) + in.base)
}

// stmtEnd is the offset just past s, including a terminating semicolon.
func (in *instrumenter) stmtEnd(s ast.Statement) int {
	end := in.rawStmtEnd(s)
	if p := in.skipForward(end); p < len(in.src) && in.src[p] == ';' {
		return p + 1
	}
	return end
}

func (in *instrumenter) rawStmtEnd(s ast.Statement) int {
	switch x := s.(type) {
	case *ast.ExpressionStatement:
		return in.ext(x.Expression).end
	case *ast.VariableStatement:
		return in.bindingEnd(x.List[len(x.List)-1])
	case *ast.LexicalDeclaration:
		return in.bindingEnd(x.List[len(x.List)-1])
	case *ast.ReturnStatement:
		if x.Argument != nil {
			return in.ext(x.Argument).end
		}
		return in.off(x.Return) + len("return")
	case *ast.ThrowStatement:
		return in.ext(x.Argument).end
	case *ast.IfStatement:
		if x.Alternate != nil {
			return in.stmtEnd(x.Alternate)
		}
		return in.stmtEnd(x.Consequent)
	case *ast.WhileStatement:
		return in.stmtEnd(x.Body)
	case *ast.ForStatement:
		return in.stmtEnd(x.Body)
	case *ast.ForInStatement:
		return in.stmtEnd(x.Body)
	case *ast.ForOfStatement:
		return in.stmtEnd(x.Body)
	case *ast.WithStatement:
		return in.stmtEnd(x.Body)
	case *ast.LabelledStatement:
		return in.stmtEnd(x.Statement)
	}
	return in.off(s.Idx1())
}

func (in *instrumenter) bindingEnd(b *ast.Binding) int {
	if b.Initializer != nil {
		return in.ext(b.Initializer).end
	}
	return in.off(b.Target.Idx1())
}
