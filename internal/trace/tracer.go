package trace

import (
	"errors"
	"log/slog"

	"github.com/dop251/goja"

	"github.com/hyperifyio/steptrace/internal/budget"
	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/expr"
	"github.com/hyperifyio/steptrace/internal/history"
	"github.com/hyperifyio/steptrace/internal/scope"
	"github.com/hyperifyio/steptrace/internal/value"
)

var errUndefined = errors.New("expression is undefined")

// Options configure a Tracer.
type Options struct {
	// MaxSteps is the step ceiling. Zero means budget.DefaultMaxSteps.
	MaxSteps int
	// Annotations maps a line to the expression trees evaluated there.
	Annotations map[int][]*expr.Node
	Logger      *slog.Logger
}

// Tracer records every hook event it receives. It implements driver.Trap.
//
// In narration mode it evaluates annotations and reports exceptions as
// ErrorRecords. In test mode (see Target) it watches for the return of the
// function under test instead.
type Tracer struct {
	classifier  *value.Classifier
	annotations map[int][]*expr.Node
	guard       budget.Guard
	log         *slog.Logger

	scopes   scope.Tracker
	hist     *history.Store
	steps    Log
	errors   []ErrorRecord
	step     int
	finished bool

	target   string
	returned goja.Value
}

// New creates a narration-mode tracer for values of the runtime behind c.
func New(c *value.Classifier, opts Options) *Tracer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Tracer{
		classifier:  c,
		annotations: opts.Annotations,
		guard:       budget.New(opts.MaxSteps),
		log:         log,
		hist:        history.New(),
	}
}

// Target switches the tracer to test mode for the named function.
func (t *Tracer) Target(fn string) { t.target = fn }

// Reset clears per-run state: scopes, step counter, histories, the step log
// and any captured return value. Errors are kept.
func (t *Tracer) Reset() {
	t.scopes.Reset()
	t.hist.Reset()
	t.steps.Reset()
	t.step = 0
	t.finished = false
	t.returned = nil
}

// Finish pads every history to the final step count.
func (t *Tracer) Finish() { t.hist.Pad(t.step) }

// Handle implements driver.Trap.
func (t *Tracer) Handle(ev *driver.Event) driver.Signal {
	if t.finished {
		return driver.Continue
	}
	switch ev.Kind {
	case driver.KindCall:
		t.scopes.Push(ev.Func)
		return t.process(ev)
	case driver.KindLine:
		return t.process(ev)
	case driver.KindReturn:
		t.scopes.Pop()
		sig := t.process(ev)
		if sig == driver.Step && t.target != "" && ev.Func == t.target && ev.Depth == 1 {
			t.returned = ev.Value
			t.finished = true
			return driver.Continue
		}
		return sig
	case driver.KindException:
		if t.target == "" && ev.Err != nil {
			t.errors = append(t.errors, LineError(ev.Err.Message, ev.Line, 0))
		}
		if sig := t.process(ev); sig != driver.Step {
			return sig
		}
		t.finished = true
		return driver.Continue
	}
	return driver.Step
}

// process records one step and checks the budget.
func (t *Tracer) process(ev *driver.Event) driver.Signal {
	t.step++
	path := t.scopes.Path()
	var vars []Variable
	if ev.Snapshot != nil {
		vars = make([]Variable, 0, len(ev.Snapshot.Vars))
		for _, b := range ev.Snapshot.Vars {
			raw, ok := t.classifier.Classify(b.Value)
			if !ok {
				continue
			}
			key := t.scopes.Key(b.Name)
			text := value.Display(raw)
			t.hist.Record(t.step, key, text)
			vars = append(vars, Variable{ID: key, Name: b.Name, Value: text, raw: raw})
		}
	}
	rec := ExecutionStep{Step: t.step, Line: ev.Line, Kind: ev.Kind, Scope: path, Vars: vars}
	if t.target == "" {
		if nodes := t.annotations[ev.Line]; len(nodes) > 0 {
			rec.Extra = t.evaluate(nodes, ev, vars)
		}
	}
	t.steps.Append(rec)
	t.log.Debug("step", "step", t.step, "kind", string(ev.Kind), "line", ev.Line, "func", ev.Func, "depth", t.scopes.Depth(), "vars", len(vars))

	if err := t.guard.Check(t.step); err != nil {
		t.errors = append(t.errors, LineError(err.Error(), ev.Line, 1))
		t.finished = true
		return driver.Abort
	}
	return driver.Step
}

func (t *Tracer) evaluate(nodes []*expr.Node, ev *driver.Event, vars []Variable) []*expr.Node {
	e := expr.Evaluator{OnError: func(msg string) {
		t.errors = append(t.errors, LineError(msg, ev.Line, 0))
	}}
	return e.EvaluateAll(nodes, &bindings{classifier: t.classifier, snap: ev.Snapshot, vars: vars})
}

// Steps returns the step log.
func (t *Tracer) Steps() []ExecutionStep { return t.steps.Steps() }

// Lines returns the line of every step.
func (t *Tracer) Lines() []int { return t.steps.Lines() }

// StepCount returns the number of steps recorded since the last Reset.
func (t *Tracer) StepCount() int { return t.step }

// VarCount returns the number of distinct variable keys seen.
func (t *Tracer) VarCount() int { return t.hist.Len() }

// Trace exports the padded variable histories.
func (t *Tracer) Trace() map[string]history.Trace { return t.hist.Export(t.step) }

// Errors returns the error records collected so far.
func (t *Tracer) Errors() []ErrorRecord { return t.errors }

// AddError appends an error record produced outside the hooks.
func (t *Tracer) AddError(r ErrorRecord) { t.errors = append(t.errors, r) }

// Returned is the value the target function returned in test mode.
func (t *Tracer) Returned() (goja.Value, bool) { return t.returned, t.returned != nil }

// bindings resolves evaluator lookups against one step.
type bindings struct {
	classifier *value.Classifier
	snap       *driver.Snapshot
	vars       []Variable
}

func (b *bindings) Lookup(name string) (any, bool) {
	for _, v := range b.vars {
		if v.Name == name {
			return v.raw, true
		}
	}
	return nil, false
}

func (b *bindings) Eval(code string) (any, error) {
	v, err := b.snap.Eval(code)
	if err != nil {
		return nil, err
	}
	x, ok := b.classifier.Classify(v)
	if !ok {
		return nil, errUndefined
	}
	return x, nil
}
