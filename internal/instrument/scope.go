package instrument

import (
	"strings"

	"github.com/dop251/goja/ast"
)

// name is a binding visible at some point of the program. tdz marks
// bindings that may be read before initialisation (let, const, class, and
// declarations moved into a function's guard block).
type name struct {
	id  string
	tdz bool
}

// lexScope is one lexical scope. fn scopes are function bodies and the
// program itself; other scopes are blocks.
type lexScope struct {
	parent *lexScope
	fn     bool
	names  []name
}

func (s *lexScope) add(id string, tdz bool) {
	if id == "" || strings.HasPrefix(id, Reserved) {
		return
	}
	for i, n := range s.names {
		if n.id == id {
			s.names[i].tdz = s.names[i].tdz || tdz
			return
		}
	}
	s.names = append(s.names, name{id: id, tdz: tdz})
}

func (s *lexScope) block(ids []name) *lexScope {
	b := &lexScope{parent: s}
	for _, n := range ids {
		b.add(n.id, n.tdz)
	}
	return b
}

// visible lists the names a snapshot taken in s reports: program names
// first, then the enclosing function's names outermost first. Names of
// intermediate enclosing functions are not part of the frame.
func (s *lexScope) visible(program *lexScope) []name {
	var chain []*lexScope
	for c := s; c != nil; c = c.parent {
		chain = append(chain, c)
		if c.fn {
			break
		}
	}
	var out []name
	seen := map[string]int{}
	push := func(n name) {
		if i, ok := seen[n.id]; ok {
			out[i].tdz = out[i].tdz || n.tdz
			return
		}
		seen[n.id] = len(out)
		out = append(out, n)
	}
	for _, n := range program.names {
		push(n)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, n := range chain[i].names {
			push(n)
		}
	}
	return out
}

// patternNames returns the identifiers bound by a binding target.
func patternNames(t ast.Expression) []string {
	var out []string
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		switch x := e.(type) {
		case *ast.Identifier:
			out = append(out, x.Name.String())
		case *ast.Binding:
			walk(x.Target)
		case *ast.AssignExpression:
			walk(x.Left)
		case *ast.ArrayPattern:
			for _, el := range x.Elements {
				if el != nil {
					walk(el)
				}
			}
			if x.Rest != nil {
				walk(x.Rest)
			}
		case *ast.ObjectPattern:
			for _, p := range x.Properties {
				switch p := p.(type) {
				case *ast.PropertyShort:
					out = append(out, p.Name.Name.String())
				case *ast.PropertyKeyed:
					walk(p.Value)
				}
			}
			if x.Rest != nil {
				walk(x.Rest)
			}
		}
	}
	if t != nil {
		walk(t)
	}
	return out
}

// hoisted appends, in source order, the var names declared anywhere in
// stmts without crossing function boundaries.
func hoisted(stmts []ast.Statement, add func(string)) {
	for _, s := range stmts {
		hoistedStmt(s, add)
	}
}

func hoistedStmt(s ast.Statement, add func(string)) {
	switch x := s.(type) {
	case *ast.VariableStatement:
		for _, b := range x.List {
			for _, n := range patternNames(b.Target) {
				add(n)
			}
		}
	case *ast.BlockStatement:
		hoisted(x.List, add)
	case *ast.IfStatement:
		hoistedStmt(x.Consequent, add)
		if x.Alternate != nil {
			hoistedStmt(x.Alternate, add)
		}
	case *ast.WhileStatement:
		hoistedStmt(x.Body, add)
	case *ast.DoWhileStatement:
		hoistedStmt(x.Body, add)
	case *ast.ForStatement:
		if v, ok := x.Initializer.(*ast.ForLoopInitializerVarDeclList); ok {
			for _, b := range v.List {
				for _, n := range patternNames(b.Target) {
					add(n)
				}
			}
		}
		hoistedStmt(x.Body, add)
	case *ast.ForInStatement:
		forIntoVar(x.Into, add)
		hoistedStmt(x.Body, add)
	case *ast.ForOfStatement:
		forIntoVar(x.Into, add)
		hoistedStmt(x.Body, add)
	case *ast.LabelledStatement:
		hoistedStmt(x.Statement, add)
	case *ast.TryStatement:
		hoisted(x.Body.List, add)
		if x.Catch != nil {
			hoisted(x.Catch.Body.List, add)
		}
		if x.Finally != nil {
			hoisted(x.Finally.List, add)
		}
	case *ast.SwitchStatement:
		for _, c := range x.Body {
			hoisted(c.Consequent, add)
		}
	case *ast.WithStatement:
		hoistedStmt(x.Body, add)
	}
}

func forIntoVar(into ast.ForInto, add func(string)) {
	if v, ok := into.(*ast.ForIntoVar); ok {
		for _, n := range patternNames(v.Binding.Target) {
			add(n)
		}
	}
}

// lexicals returns the block-scoped names declared directly in stmts.
// Function declarations count as block-scoped and initialised.
func lexicals(stmts []ast.Statement) []name {
	var out []name
	for _, s := range stmts {
		switch x := s.(type) {
		case *ast.LexicalDeclaration:
			for _, b := range x.List {
				for _, n := range patternNames(b.Target) {
					out = append(out, name{id: n, tdz: true})
				}
			}
		case *ast.ClassDeclaration:
			if x.Class.Name != nil {
				out = append(out, name{id: x.Class.Name.Name.String(), tdz: true})
			}
		case *ast.FunctionDeclaration:
			if x.Function.Name != nil {
				out = append(out, name{id: x.Function.Name.Name.String()})
			}
		}
	}
	return out
}

// programScope collects the top-level names of a program.
func programScope(p *ast.Program) *lexScope {
	s := &lexScope{fn: true}
	for _, st := range p.Body {
		switch x := st.(type) {
		case *ast.LexicalDeclaration, *ast.ClassDeclaration, *ast.FunctionDeclaration:
			for _, n := range lexicals([]ast.Statement{x}) {
				s.add(n.id, n.tdz)
			}
		default:
			hoistedStmt(st, func(n string) { s.add(n, false) })
		}
	}
	return s
}

// functionScope collects parameters and body-level names of a function.
// Body-level declarations other than var end up inside the guard block the
// instrumenter wraps around the body, so they are marked tdz.
func functionScope(params *ast.ParameterList, body []ast.Statement) *lexScope {
	s := &lexScope{fn: true}
	if params != nil {
		for _, b := range params.List {
			for _, n := range patternNames(b.Target) {
				s.add(n, false)
			}
		}
		if params.Rest != nil {
			for _, n := range patternNames(params.Rest) {
				s.add(n, false)
			}
		}
	}
	for _, st := range body {
		switch x := st.(type) {
		case *ast.LexicalDeclaration, *ast.ClassDeclaration, *ast.FunctionDeclaration:
			for _, n := range lexicals([]ast.Statement{x}) {
				s.add(n.id, true)
			}
		default:
			hoistedStmt(st, func(n string) { s.add(n, false) })
		}
	}
	return s
}

// forDeclNames returns the names bound by a for-in/of lexical declaration.
func forDeclNames(into ast.ForInto) []name {
	d, ok := into.(*ast.ForDeclaration)
	if !ok {
		return nil
	}
	var out []name
	for _, n := range patternNames(d.Target) {
		out = append(out, name{id: n})
	}
	return out
}

// forInitNames returns the names bound by a for(let ...) initializer.
func forInitNames(init ast.ForLoopInitializer) []name {
	d, ok := init.(*ast.ForLoopInitializerLexicalDecl)
	if !ok {
		return nil
	}
	var out []name
	for _, b := range d.LexicalDeclaration.List {
		for _, n := range patternNames(b.Target) {
			out = append(out, name{id: n})
		}
	}
	return out
}
