package instrument

import (
	"strconv"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

const anonymous = "<anonymous>"

// walkStatements hooks every statement of a statement list. Statements on
// the same line as the previous hook (lastLine) get none. Loops whose test
// is hooked need no hook of their own.
func (in *instrumenter) walkStatements(list []ast.Statement, s *lexScope, prologue bool, lastLine int) {
	for _, st := range list {
		if prologue && isDirective(st) {
			continue
		}
		prologue = false
		if _, ok := st.(*ast.EmptyStatement); !ok {
			pos := in.stmtStart(st)
			ln := in.line(pos)
			if ln != lastLine && !testHooked(st) {
				in.open(pos, in.lineCall(ln, s)+";")
			}
			lastLine = ln
		}
		in.walkStatement(st, s)
	}
}

func testHooked(st ast.Statement) bool {
	switch x := st.(type) {
	case *ast.WhileStatement:
		return true
	case *ast.ForStatement:
		return x.Test != nil
	}
	return false
}

func isDirective(st ast.Statement) bool {
	es, ok := st.(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	_, ok = es.Expression.(*ast.StringLiteral)
	return ok
}

// body instruments the body of a compound statement that starts on line
// parent. Non-block bodies are wrapped in braces so a hook can precede them.
// loopHook, when set, adds a hook for the loop header line at the start of
// every iteration.
func (in *instrumenter) body(st ast.Statement, s *lexScope, parent, loopHook int) {
	last := parent
	if loopHook > 0 {
		last = loopHook
	}
	if blk, ok := st.(*ast.BlockStatement); ok {
		bs := s.block(lexicals(blk.List))
		if loopHook > 0 {
			in.open(in.off(blk.LeftBrace)+1, in.lineCall(loopHook, bs)+";")
		}
		in.walkStatements(blk.List, bs, false, last)
		return
	}
	opener := "{"
	if loopHook > 0 {
		opener += in.lineCall(loopHook, s) + ";"
	}
	start := in.stmtStart(st)
	if _, empty := st.(*ast.EmptyStatement); !empty {
		if ln := in.line(start); ln != last && !testHooked(st) {
			opener += in.lineCall(ln, s) + ";"
		}
	}
	in.pair(start, opener, in.stmtEnd(st), "}")
	in.walkStatement(st, s)
}

func (in *instrumenter) walkStatement(st ast.Statement, s *lexScope) {
	switch x := st.(type) {
	case *ast.ExpressionStatement:
		in.walkExpr(x.Expression, s, "")
	case *ast.VariableStatement:
		in.walkBindings(x.List, s)
	case *ast.LexicalDeclaration:
		in.walkBindings(x.List, s)
	case *ast.FunctionDeclaration:
		in.function(x.Function, nameOf(x.Function.Name, anonymous))
	case *ast.ClassDeclaration:
		in.class(x.Class, s)
	case *ast.BlockStatement:
		in.walkStatements(x.List, s.block(lexicals(x.List)), false, in.line(in.off(x.LeftBrace)))
	case *ast.IfStatement:
		ln := in.line(in.ifStart(x))
		in.walkExpr(x.Test, s, "")
		in.body(x.Consequent, s, ln, 0)
		if x.Alternate != nil {
			in.body(x.Alternate, s, ln, 0)
		}
	case *ast.WhileStatement:
		ln := in.line(in.off(x.While))
		in.loopTest(x.Test, ln, s)
		in.body(x.Body, s, ln, 0)
	case *ast.DoWhileStatement:
		in.body(x.Body, s, in.line(in.off(x.Do)), 0)
		in.loopTest(x.Test, in.line(in.exprStart(x.Test)), s)
	case *ast.ForStatement:
		ls := s.block(forInitNames(x.Initializer))
		switch init := x.Initializer.(type) {
		case *ast.ForLoopInitializerExpression:
			in.walkExpr(init.Expression, s, "")
		case *ast.ForLoopInitializerVarDeclList:
			in.walkBindings(init.List, s)
		case *ast.ForLoopInitializerLexicalDecl:
			in.walkBindings(init.LexicalDeclaration.List, ls)
		}
		forLine := in.line(in.off(x.For))
		loopHook := forLine
		if x.Test != nil {
			in.loopTest(x.Test, forLine, ls)
			loopHook = 0
		}
		if x.Update != nil {
			in.walkExpr(x.Update, ls, "")
		}
		in.body(x.Body, ls, forLine, loopHook)
	case *ast.ForInStatement:
		in.forInto(x.Into, x.Source, x.Body, in.line(in.off(x.For)), s)
	case *ast.ForOfStatement:
		in.forInto(x.Into, x.Source, x.Body, in.line(in.off(x.For)), s)
	case *ast.LabelledStatement:
		in.walkStatement(x.Statement, s)
	case *ast.ReturnStatement:
		ln := in.line(in.off(x.Return))
		if x.Argument == nil {
			in.close(in.off(x.Return)+len("return"), " "+Host+".value("+strconv.Itoa(ln)+")")
			return
		}
		e := in.ext(x.Argument)
		in.pair(e.start, Host+".value("+strconv.Itoa(ln)+", (", e.end, "))")
		in.walkExpr(x.Argument, s, "")
	case *ast.ThrowStatement:
		in.walkExpr(x.Argument, s, "")
	case *ast.TryStatement:
		in.walkStatements(x.Body.List, s.block(lexicals(x.Body.List)), false, in.line(in.off(x.Try)))
		if x.Catch != nil {
			var params []name
			for _, n := range patternNames(x.Catch.Parameter) {
				params = append(params, name{id: n})
			}
			cs := s.block(params)
			in.walkStatements(x.Catch.Body.List, cs.block(lexicals(x.Catch.Body.List)), false, in.line(in.off(x.Catch.Catch)))
		}
		if x.Finally != nil {
			in.walkStatements(x.Finally.List, s.block(lexicals(x.Finally.List)), false, in.line(in.off(x.Finally.LeftBrace)))
		}
	case *ast.SwitchStatement:
		in.walkExpr(x.Discriminant, s, "")
		var all []ast.Statement
		for _, c := range x.Body {
			all = append(all, c.Consequent...)
		}
		ss := s.block(lexicals(all))
		for _, c := range x.Body {
			if c.Test != nil {
				in.walkExpr(c.Test, ss, "")
			}
			in.walkStatements(c.Consequent, ss, false, in.line(in.off(c.Case)))
		}
	case *ast.WithStatement:
		in.walkExpr(x.Object, s, "")
		in.body(x.Body, s, in.line(in.off(x.With)), 0)
	}
}

// loopTest hooks a loop condition so every evaluation is a step.
func (in *instrumenter) loopTest(test ast.Expression, line int, s *lexScope) {
	in.open(in.exprStart(test), in.lineCall(line, s)+", ")
	in.walkExpr(test, s, "")
}

func (in *instrumenter) forInto(into ast.ForInto, src ast.Expression, body ast.Statement, line int, s *lexScope) {
	switch x := into.(type) {
	case *ast.ForIntoVar:
		in.walkBindings([]*ast.Binding{x.Binding}, s)
	case *ast.ForIntoExpression:
		in.walkExpr(x.Expression, s, "")
	}
	in.walkExpr(src, s, "")
	in.body(body, s.block(forDeclNames(into)), line, line)
}

func (in *instrumenter) walkBindings(list []*ast.Binding, s *lexScope) {
	for _, b := range list {
		in.walkExpr(b.Target, s, "")
		if b.Initializer != nil {
			hint := ""
			if id, ok := b.Target.(*ast.Identifier); ok {
				hint = id.Name.String()
			}
			in.walkExpr(b.Initializer, s, hint)
		}
	}
}

func nameOf(id *ast.Identifier, fallback string) string {
	if id == nil {
		return fallback
	}
	return id.Name.String()
}

func keyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.Identifier:
		return k.Name.String()
	case *ast.StringLiteral:
		return k.Value.String()
	case *ast.PrivateIdentifier:
		return "#" + k.Name.String()
	}
	return anonymous
}

// walkExpr finds function and class literals nested in e. hint names an
// anonymous function from the binding it is assigned to.
func (in *instrumenter) walkExpr(e ast.Expression, s *lexScope, hint string) {
	switch x := e.(type) {
	case nil:
	case *ast.FunctionLiteral:
		in.function(x, nameOf(x.Name, orAnon(hint)))
	case *ast.ArrowFunctionLiteral:
		in.arrow(x, orAnon(hint))
	case *ast.ClassLiteral:
		in.class(x, s)
	case *ast.AssignExpression:
		in.walkExpr(x.Left, s, "")
		h := ""
		switch l := x.Left.(type) {
		case *ast.Identifier:
			h = l.Name.String()
		case *ast.DotExpression:
			h = l.Identifier.Name.String()
		}
		in.walkExpr(x.Right, s, h)
	case *ast.BinaryExpression:
		in.walkExpr(x.Left, s, "")
		in.walkExpr(x.Right, s, "")
	case *ast.ConditionalExpression:
		in.walkExpr(x.Test, s, "")
		in.walkExpr(x.Consequent, s, "")
		in.walkExpr(x.Alternate, s, "")
	case *ast.SequenceExpression:
		for _, el := range x.Sequence {
			in.walkExpr(el, s, "")
		}
	case *ast.CallExpression:
		in.walkExpr(x.Callee, s, "")
		for _, a := range x.ArgumentList {
			in.walkExpr(a, s, "")
		}
	case *ast.NewExpression:
		in.walkExpr(x.Callee, s, "")
		for _, a := range x.ArgumentList {
			in.walkExpr(a, s, "")
		}
	case *ast.DotExpression:
		in.walkExpr(x.Left, s, "")
	case *ast.PrivateDotExpression:
		in.walkExpr(x.Left, s, "")
	case *ast.BracketExpression:
		in.walkExpr(x.Left, s, "")
		in.walkExpr(x.Member, s, "")
	case *ast.UnaryExpression:
		in.walkExpr(x.Operand, s, "")
	case *ast.ArrayLiteral:
		for _, el := range x.Value {
			in.walkExpr(el, s, "")
		}
	case *ast.ArrayPattern:
		for _, el := range x.Elements {
			in.walkExpr(el, s, "")
		}
		in.walkExpr(x.Rest, s, "")
	case *ast.ObjectLiteral:
		for _, p := range x.Value {
			in.walkProperty(p, s)
		}
	case *ast.ObjectPattern:
		for _, p := range x.Properties {
			in.walkProperty(p, s)
		}
		in.walkExpr(x.Rest, s, "")
	case *ast.TemplateLiteral:
		in.walkExpr(x.Tag, s, "")
		for _, el := range x.Expressions {
			in.walkExpr(el, s, "")
		}
	case *ast.SpreadElement:
		in.walkExpr(x.Expression, s, "")
	case *ast.YieldExpression:
		in.walkExpr(x.Argument, s, "")
	case *ast.AwaitExpression:
		in.walkExpr(x.Argument, s, "")
	case *ast.OptionalChain:
		in.walkExpr(x.Expression, s, "")
	case *ast.Optional:
		in.walkExpr(x.Expression, s, "")
	case *ast.Binding:
		in.walkExpr(x.Target, s, "")
		in.walkExpr(x.Initializer, s, "")
	}
}

func orAnon(hint string) string {
	if hint == "" {
		return anonymous
	}
	return hint
}

func (in *instrumenter) walkProperty(p ast.Property, s *lexScope) {
	switch x := p.(type) {
	case *ast.PropertyKeyed:
		if x.Computed {
			in.walkExpr(x.Key, s, "")
		}
		if fn, ok := x.Value.(*ast.FunctionLiteral); ok && (x.Kind == ast.PropertyKindGet || x.Kind == ast.PropertyKindSet || x.Kind == ast.PropertyKindMethod) {
			in.function(fn, nameOf(fn.Name, keyName(x.Key)))
			return
		}
		in.walkExpr(x.Value, s, keyName(x.Key))
	case *ast.PropertyShort:
		in.walkExpr(x.Initializer, s, "")
	case *ast.SpreadElement:
		in.walkExpr(x.Expression, s, "")
	}
}

func (in *instrumenter) class(c *ast.ClassLiteral, s *lexScope) {
	in.walkExpr(c.SuperClass, s, "")
	for _, el := range c.Body {
		switch m := el.(type) {
		case *ast.MethodDefinition:
			if m.Computed {
				in.walkExpr(m.Key, s, "")
			}
			in.function(m.Body, keyName(m.Key))
		case *ast.FieldDefinition:
			if m.Computed {
				in.walkExpr(m.Key, s, "")
			}
			in.walkExpr(m.Initializer, s, keyName(m.Key))
		}
	}
}

// function instruments a function literal. Generators and async functions
// suspend mid-body, so their frames are left untouched.
func (in *instrumenter) function(fn *ast.FunctionLiteral, name string) {
	if fn.Async || fn.Generator {
		return
	}
	in.frame(fn.Idx0(), fn.ParameterList, fn.Body, name)
}

func (in *instrumenter) arrow(fn *ast.ArrowFunctionLiteral, name string) {
	if fn.Async {
		return
	}
	switch b := fn.Body.(type) {
	case *ast.BlockStatement:
		in.frame(fn.Idx0(), fn.ParameterList, b, name)
	case *ast.ExpressionBody:
		fs := functionScope(fn.ParameterList, nil)
		in.params(fn.ParameterList, fs)
		e := in.ext(b.Expression)
		ln := in.line(e.start)
		opener := "{" + in.enterCall(name, in.line(in.off(fn.Idx0())), fs) + " try { " +
			in.lineCall(ln, fs) + "; return " + Host + ".value(" + strconv.Itoa(ln) + ", ("
		closer := ")); }" + in.guardTail(in.line(e.end)) + "}"
		in.pair(e.start, opener, e.end, closer)
		in.walkExpr(b.Expression, fs, "")
	}
}

func (in *instrumenter) params(pl *ast.ParameterList, fs *lexScope) {
	if pl == nil {
		return
	}
	for _, b := range pl.List {
		in.walkExpr(b.Initializer, fs, "")
		in.walkExpr(b.Target, fs, "")
	}
}

// frame wraps a function body in a guard that reports entry, exceptions
// and exit:
//
//	{ DIRECTIVES enter(...); try { BODY } catch (e) { fail(e); throw e; } finally { leave(...); } }
func (in *instrumenter) frame(start file.Idx, pl *ast.ParameterList, body *ast.BlockStatement, name string) {
	fs := functionScope(pl, body.List)
	in.params(pl, fs)
	pos := in.off(body.LeftBrace) + 1
	lead := " "
	for _, st := range body.List {
		if !isDirective(st) {
			break
		}
		pos = in.stmtEnd(st)
		lead = "; "
	}
	opener := lead + in.enterCall(name, in.line(in.off(start)), fs) + " try {"
	end := in.off(body.RightBrace)
	in.pair(pos, opener, end, " }"+in.guardTail(in.line(end)))
	in.walkStatements(body.List, fs, true, -1)
}

func (in *instrumenter) enterCall(name string, line int, s *lexScope) string {
	return Host + ".enter(" + quote(name) + ", " + strconv.Itoa(line) + ", " + in.snap(s) + ");"
}

func (in *instrumenter) guardTail(line int) string {
	e := Reserved + "_e"
	return " catch (" + e + ") { " + Host + ".fail(" + e + "); throw " + e + "; } finally { " +
		Host + ".leave(" + strconv.Itoa(line) + "); }"
}
