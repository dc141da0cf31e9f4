package driver

import (
	"github.com/dop251/goja"

	"github.com/hyperifyio/steptrace/internal/instrument"
)

// Kind is the kind of a hook event.
type Kind string

const (
	KindCall      Kind = "CALL"
	KindLine      Kind = "LINE"
	KindReturn    Kind = "RETURN"
	KindException Kind = "EXCEPTION"
)

// Signal tells the driver how to proceed after an event.
type Signal int

const (
	// Step keeps delivering events.
	Step Signal = iota
	// Continue runs the program to completion without further events.
	Continue
	// Abort terminates the program. The target cannot catch it.
	Abort
)

// Trap receives hook events synchronously while a program runs.
type Trap interface {
	Handle(ev *Event) Signal
}

// TrapFunc adapts a function to Trap.
type TrapFunc func(ev *Event) Signal

// Handle calls f(ev).
func (f TrapFunc) Handle(ev *Event) Signal { return f(ev) }

// Event is one hook point reached by the running program.
type Event struct {
	Kind Kind
	Line int
	// Func is the innermost function, empty at top level.
	Func string
	// Depth is the frame depth of Func; 1 means called from top level.
	Depth int
	// Value is the returned value of a RETURN event.
	Value goja.Value
	// Err describes the exception of an EXCEPTION event.
	Err *Failure
	// Snapshot holds the bindings visible at the event.
	Snapshot *Snapshot
}

// Failure is an exception thrown by the target program.
type Failure struct {
	Message string
	Line    int
}

// Binding is one named value of a snapshot.
type Binding struct {
	Name  string
	Value goja.Value
}

// Snapshot is the set of bindings visible at a hook point, in declaration
// order with program names first.
type Snapshot struct {
	Vars []Binding
	vm   *goja.Runtime
	eval goja.Callable
}

// Lookup returns the value bound to name.
func (s *Snapshot) Lookup(name string) (goja.Value, bool) {
	if s == nil {
		return nil, false
	}
	for _, b := range s.Vars {
		if b.Name == name {
			return b.Value, true
		}
	}
	return nil, false
}

// CanEval reports whether Eval can evaluate code in the scope of the hook.
func (s *Snapshot) CanEval() bool { return s != nil && s.eval != nil }

// Eval evaluates code in the scope of the hook. Only lines compiled with
// eval support can do this; elsewhere ErrNoEval is returned.
func (s *Snapshot) Eval(code string) (goja.Value, error) {
	if !s.CanEval() {
		return nil, ErrNoEval
	}
	return s.eval(goja.Undefined(), s.vm.ToValue(code))
}

type frame struct {
	name    string
	depth   int
	snap    *Snapshot
	line    int
	retLine int
	ret     goja.Value
	failed  bool
}

// bridge is the host object the instrumented program calls into.
type bridge struct {
	r      *Runtime
	trap   Trap
	frames []*frame
	top    *Snapshot
	topLn  int
	done   bool
}

func (b *bridge) install(vm *goja.Runtime) error {
	h := vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"line":  b.line,
		"enter": b.enter,
		"value": b.value,
		"fail":  b.fail,
		"leave": b.leave,
	} {
		if err := h.Set(name, fn); err != nil {
			return err
		}
	}
	return vm.Set(instrument.Host, h)
}

func (b *bridge) reset(trap Trap) {
	b.trap = trap
	b.frames = b.frames[:0]
	b.top = nil
	b.topLn = 0
	b.done = trap == nil
}

func (b *bridge) current() *frame {
	if len(b.frames) == 0 {
		return nil
	}
	return b.frames[len(b.frames)-1]
}

func (b *bridge) snapshot(call goja.FunctionCall, at int) *Snapshot {
	vm := b.r.vm
	s := &Snapshot{vm: vm}
	if fn, ok := goja.AssertFunction(call.Argument(at)); ok {
		put := vm.ToValue(func(name string, v goja.Value) {
			s.Vars = append(s.Vars, Binding{Name: name, Value: v})
		})
		if _, err := fn(goja.Undefined(), put); err != nil {
			b.r.log.Debug("snapshot failed", "error", err)
		}
	}
	if fn, ok := goja.AssertFunction(call.Argument(at + 1)); ok {
		s.eval = fn
	}
	return s
}

func (b *bridge) deliver(ev *Event) {
	if b.done {
		return
	}
	switch b.trap.Handle(ev) {
	case Continue:
		b.done = true
	case Abort:
		b.done = true
		b.r.vm.Interrupt(ErrAborted)
	}
}

func (b *bridge) line(call goja.FunctionCall) goja.Value {
	if b.done {
		return goja.Undefined()
	}
	ln := int(call.Argument(0).ToInteger())
	snap := b.snapshot(call, 1)
	ev := &Event{Kind: KindLine, Line: ln, Snapshot: snap}
	if f := b.current(); f != nil {
		f.snap, f.line = snap, ln
		ev.Func, ev.Depth = f.name, f.depth
	} else {
		b.top, b.topLn = snap, ln
	}
	b.deliver(ev)
	return goja.Undefined()
}

func (b *bridge) enter(call goja.FunctionCall) goja.Value {
	ln := int(call.Argument(1).ToInteger())
	f := &frame{name: call.Argument(0).String(), depth: len(b.frames) + 1, line: ln}
	b.frames = append(b.frames, f)
	if b.done {
		return goja.Undefined()
	}
	f.snap = b.snapshot(call, 2)
	b.deliver(&Event{Kind: KindCall, Line: ln, Func: f.name, Depth: f.depth, Snapshot: f.snap})
	return goja.Undefined()
}

func (b *bridge) value(call goja.FunctionCall) goja.Value {
	v := goja.Undefined()
	if len(call.Arguments) > 1 {
		v = call.Arguments[1]
	}
	if f := b.current(); f != nil {
		f.retLine = int(call.Argument(0).ToInteger())
		f.ret = v
	}
	return v
}

func (b *bridge) fail(call goja.FunctionCall) goja.Value {
	f := b.current()
	if f == nil || f.failed {
		return goja.Undefined()
	}
	f.failed = true
	if b.done {
		return goja.Undefined()
	}
	b.deliver(&Event{
		Kind:     KindException,
		Line:     f.line,
		Func:     f.name,
		Depth:    f.depth,
		Err:      &Failure{Message: call.Argument(0).String(), Line: f.line},
		Snapshot: f.snap,
	})
	return goja.Undefined()
}

func (b *bridge) leave(call goja.FunctionCall) goja.Value {
	f := b.current()
	if f == nil {
		return goja.Undefined()
	}
	b.frames = b.frames[:len(b.frames)-1]
	if b.done || f.failed {
		return goja.Undefined()
	}
	ln := f.retLine
	if ln == 0 {
		ln = int(call.Argument(0).ToInteger())
	}
	ret := f.ret
	if ret == nil {
		ret = goja.Undefined()
	}
	b.deliver(&Event{Kind: KindReturn, Line: ln, Func: f.name, Depth: f.depth, Value: ret, Snapshot: f.snap})
	return goja.Undefined()
}

// uncaught reports an exception that escaped the program itself.
func (b *bridge) uncaught(exc *goja.Exception, msg string) {
	if b.done {
		return
	}
	ln := b.topLn
	if st := exc.Stack(); len(st) > 0 {
		if p := st[0].Position(); p.Line > 0 {
			ln = p.Line
		}
	}
	b.deliver(&Event{Kind: KindException, Line: ln, Err: &Failure{Message: msg, Line: ln}, Snapshot: b.top})
}
