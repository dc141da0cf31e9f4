// Package instrument rewrites JavaScript source so that the embedded runtime
// reports every execution step back to the host.
//
// The rewrite inserts calls to a host object (named by Host) at statement
// boundaries, function entries and exits, and return values:
//
//	__tracer.line(line, snap[, eval])   before a statement or loop test
//	__tracer.enter(name, line, snap)    first thing in a function body
//	__tracer.value(line, v)             wraps the value of a return statement
//	__tracer.fail(err)                  when an exception leaves a function
//	__tracer.leave(line)                when a function frame exits
//
// snap is a closure that reports each visible binding through a callback,
// eval a closure that evaluates source text in the statement's scope. The
// inserted text never contains line breaks, so runtime line numbers are
// line numbers of the original source.
package instrument

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// Host is the global name of the host object the rewritten code calls.
const Host = "__tracer"

// Reserved prefixes identifiers introduced by the rewrite. Names with this
// prefix never appear in snapshots.
const Reserved = "__tracer"

// Options tune the rewrite.
type Options struct {
	// EvalLines lists lines whose hooks also carry an eval closure.
	EvalLines map[int]bool
}

// Result is a rewritten program.
type Result struct {
	Source  string
	Program *ast.Program
	Hooks   int
}

// ParseError reports source that cannot be parsed.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
}

// Parse parses src without rewriting it.
func Parse(filename, src string) (*ast.Program, error) {
	prg, err := parser.ParseFile(nil, filename, src, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, toParseError(err)
	}
	return prg, nil
}

func toParseError(err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return &ParseError{Line: list[0].Position.Line, Column: list[0].Position.Column, Message: list[0].Message}
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return &ParseError{Line: single.Position.Line, Column: single.Position.Column, Message: single.Message}
	}
	return &ParseError{Message: err.Error()}
}

// ErrRewrite is returned when the rewrite cannot be applied to a program
// that parsed.
var ErrRewrite = errors.New("instrument: rewrite failed")

// Instrument parses src and returns the rewritten source.
func Instrument(filename, src string, opts Options) (res *Result, err error) {
	prg, err := Parse(filename, src)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrRewrite, r)
		}
	}()
	in := &instrumenter{
		src:       src,
		base:      prg.File.Base(),
		prg:       prg,
		evalLines: opts.EvalLines,
	}
	in.global = programScope(prg)
	in.walkStatements(prg.Body, in.global, true, -1)
	out, err := in.apply()
	if err != nil {
		return nil, err
	}
	return &Result{Source: out, Program: prg, Hooks: in.hooks}, nil
}

// edit is one text insertion. Closers sort before openers at the same
// offset; openers keep emission order and closers reverse it, so inner
// constructs close before outer ones.
type edit struct {
	pos    int
	closer bool
	seq    int
	text   string
}

type instrumenter struct {
	src       string
	base      int
	prg       *ast.Program
	global    *lexScope
	evalLines map[int]bool
	edits     []edit
	seq       int
	hooks     int
}

func (in *instrumenter) open(pos int, text string) {
	in.seq++
	in.edits = append(in.edits, edit{pos: pos, seq: in.seq, text: text})
}

func (in *instrumenter) close(pos int, text string) {
	in.seq++
	in.edits = append(in.edits, edit{pos: pos, closer: true, seq: in.seq, text: text})
}

// pair inserts an opener and its closer, merging them when they meet.
func (in *instrumenter) pair(start int, opener string, end int, closer string) {
	if start == end {
		in.open(start, opener+closer)
		return
	}
	in.open(start, opener)
	in.close(end, closer)
}

func (in *instrumenter) apply() (string, error) {
	sort.SliceStable(in.edits, func(i, j int) bool {
		a, b := in.edits[i], in.edits[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		if a.closer != b.closer {
			return a.closer
		}
		if a.closer {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	var b strings.Builder
	b.Grow(len(in.src) + len(in.edits)*64)
	last := 0
	for _, e := range in.edits {
		if e.pos < last || e.pos > len(in.src) {
			return "", fmt.Errorf("%w: insertion at offset %d outside [%d, %d]", ErrRewrite, e.pos, last, len(in.src))
		}
		b.WriteString(in.src[last:e.pos])
		b.WriteString(e.text)
		last = e.pos
	}
	b.WriteString(in.src[last:])
	return b.String(), nil
}

func (in *instrumenter) line(pos int) int {
	return in.prg.File.Position(pos).Line
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// snap renders the snapshot closure for scope s.
func (in *instrumenter) snap(s *lexScope) string {
	var b strings.Builder
	b.WriteString("function(" + Reserved + "_p){")
	for _, n := range s.visible(in.global) {
		put := Reserved + "_p(" + quote(n.id) + "," + n.id + ");"
		if n.tdz {
			put = "try{" + put + "}catch(" + Reserved + "_x){}"
		}
		b.WriteString(put)
	}
	b.WriteString("}")
	return b.String()
}

func (in *instrumenter) evalFn() string {
	return "function(" + Reserved + "_c){return eval(" + Reserved + "_c)}"
}

// lineCall renders a line hook call without a terminator.
func (in *instrumenter) lineCall(line int, s *lexScope) string {
	in.hooks++
	call := Host + ".line(" + strconv.Itoa(line) + ", " + in.snap(s)
	if in.evalLines[line] {
		call += ", " + in.evalFn()
	}
	return call + ")"
}
