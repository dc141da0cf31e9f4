// Package driver runs instrumented JavaScript in an embedded goja runtime and
// turns the calls the rewritten program makes into hook events for a Trap.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/hyperifyio/steptrace/internal/instrument"
	"github.com/hyperifyio/steptrace/internal/sandbox"
	"github.com/hyperifyio/steptrace/internal/value"
)

var (
	// ErrAborted is returned by Run when the trap aborted the program.
	ErrAborted = errors.New("ABORTED")
	// ErrTimeout is returned by Run when the wall-time budget ran out.
	ErrTimeout = sandbox.ErrTimeout
	// ErrNoEval is returned by Snapshot.Eval on lines without eval support.
	ErrNoEval = errors.New("no eval closure at this line")
)

// MsgStackOverflow describes runaway recursion.
const MsgStackOverflow = "RangeError: Maximum call stack size exceeded"

// DefaultMaxCallDepth bounds recursion in target programs.
const DefaultMaxCallDepth = 1000

// Options configure a Runtime.
type Options struct {
	// WallMS bounds a single Run. Zero means sandbox.DefaultWallMS.
	WallMS int
	// MaxCallDepth bounds the JavaScript call stack. Zero means DefaultMaxCallDepth.
	MaxCallDepth int
	// Logger receives diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Runtime is one goja realm prepared for tracing. Declarations made by one
// Run stay visible to later runs, which is how synthesized test calls reach
// the functions of the traced program. A Runtime is not safe for concurrent
// use.
type Runtime struct {
	vm         *goja.Runtime
	out        *sandbox.Capture
	classifier *value.Classifier
	bridge     *bridge
	wallMS     int
	log        *slog.Logger
}

// New creates a runtime with console output bound to a capture sink.
func New(opts Options) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	depth := opts.MaxCallDepth
	if depth <= 0 {
		depth = DefaultMaxCallDepth
	}
	vm := goja.New()
	vm.SetMaxCallStackSize(depth)
	r := &Runtime{
		vm:     vm,
		out:    &sandbox.Capture{},
		wallMS: opts.WallMS,
		log:    log,
	}
	r.bridge = &bridge{r: r, done: true}
	if err := r.bindConsole(); err != nil {
		return nil, fmt.Errorf("bind console: %w", err)
	}
	r.classifier = value.NewClassifier(vm)
	if err := r.bridge.install(vm); err != nil {
		return nil, fmt.Errorf("bind %s: %w", instrument.Host, err)
	}
	return r, nil
}

// Classifier returns the value classifier bound to this runtime.
func (r *Runtime) Classifier() *value.Classifier { return r.classifier }

// Output returns the sink target program output is written to. Callers
// acquire it with their own buffer around each run.
func (r *Runtime) Output() *sandbox.Capture { return r.out }

// CompileError reports source that cannot be compiled.
type CompileError struct {
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
}

// Program is compiled source ready to Run.
type Program struct {
	Name   string
	Source string
	Hooks  int
	prg    *goja.Program
}

// Compile instruments src and compiles the result.
func Compile(name, src string, opts instrument.Options) (*Program, error) {
	res, err := instrument.Instrument(name, src, opts)
	if err != nil {
		var pe *instrument.ParseError
		if errors.As(err, &pe) {
			return nil, &CompileError{Line: pe.Line, Column: pe.Column, Message: pe.Message}
		}
		if errors.Is(err, instrument.ErrRewrite) {
			return nil, &CompileError{Line: 1, Message: err.Error()}
		}
		return nil, err
	}
	prg, err := compile(name, res.Source)
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Source: res.Source, Hooks: res.Hooks, prg: prg}, nil
}

// CompilePlain compiles src without hooks.
func CompilePlain(name, src string) (*Program, error) {
	prg, err := compile(name, src)
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Source: src, prg: prg}, nil
}

func compile(name, src string) (*goja.Program, error) {
	ast, err := instrument.Parse(name, src)
	if err != nil {
		var pe *instrument.ParseError
		if errors.As(err, &pe) {
			return nil, &CompileError{Line: pe.Line, Column: pe.Column, Message: pe.Message}
		}
		return nil, err
	}
	prg, err := goja.CompileAST(ast, false)
	if err != nil {
		var se *goja.CompilerSyntaxError
		if errors.As(err, &se) {
			ce := &CompileError{Message: se.Message}
			if se.File != nil {
				pos := se.File.Position(se.Offset)
				ce.Line, ce.Column = pos.Line, pos.Column
			}
			return nil, ce
		}
		return nil, &CompileError{Message: err.Error()}
	}
	return prg, nil
}

// Run executes p, handing hook events to trap. A nil trap runs the program
// without events. The returned value is the completion value of the
// program. A runtime exception is returned as *goja.Exception after the
// trap has seen it.
func (r *Runtime) Run(ctx context.Context, p *Program, trap Trap) (goja.Value, error) {
	r.bridge.reset(trap)
	defer r.bridge.reset(nil)

	ctx, cancel := sandbox.WithWallTimeout(ctx, r.wallMS)
	defer cancel()

	done := make(chan struct{})
	var (
		result goja.Value
		runErr error
	)
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				if e, ok := rec.(error); ok {
					runErr = fmt.Errorf("host panic: %w", e)
				} else {
					runErr = fmt.Errorf("host panic: %v", rec)
				}
			}
		}()
		result, runErr = r.vm.RunProgram(p.prg)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.vm.Interrupt(ErrTimeout)
		} else {
			r.vm.Interrupt(ctx.Err())
		}
		<-done
	}
	r.vm.ClearInterrupt()

	if runErr == nil {
		return result, nil
	}
	var intr *goja.InterruptedError
	if errors.As(runErr, &intr) {
		if err, ok := intr.Value().(error); ok {
			return nil, err
		}
		return nil, ErrAborted
	}
	var so *goja.StackOverflowError
	if errors.As(runErr, &so) {
		r.bridge.uncaught(&so.Exception, MsgStackOverflow)
		return nil, runErr
	}
	var exc *goja.Exception
	if errors.As(runErr, &exc) {
		msg := "exception"
		if v := exc.Value(); v != nil {
			msg = v.String()
		}
		r.bridge.uncaught(exc, msg)
		return nil, exc
	}
	return nil, runErr
}

// Probe runs src once in a fresh runtime with output discarded and reports
// how long it took.
func Probe(ctx context.Context, p *Program, opts Options) (time.Duration, error) {
	r, err := New(opts)
	if err != nil {
		return 0, err
	}
	release := r.out.Acquire(io.Discard)
	defer release()
	start := time.Now()
	if _, err := r.Run(ctx, p, nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
