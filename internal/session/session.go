// Package session runs one complete tracing session: compile, narrate,
// time and test a target program, and assemble the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/hyperifyio/steptrace/internal/audit"
	"github.com/hyperifyio/steptrace/internal/config"
	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/expr"
	"github.com/hyperifyio/steptrace/internal/harness"
	"github.com/hyperifyio/steptrace/internal/history"
	"github.com/hyperifyio/steptrace/internal/instrument"
	"github.com/hyperifyio/steptrace/internal/metrics"
	"github.com/hyperifyio/steptrace/internal/sandbox"
	"github.com/hyperifyio/steptrace/internal/trace"
)

var tracer = otel.Tracer("steptrace.session")

// MsgTimeout is the error record text for a run that ran out of wall time.
const MsgTimeout = "Your code took too long to run"

// Request is the input of one session.
type Request struct {
	// Name labels the source in diagnostics. Defaults to "main.js".
	Name   string
	Source string
	// Annotations maps a line to the expression trees displayed there.
	Annotations map[int][]*expr.Node
	// Tests is optional.
	Tests *harness.Spec
}

// Result is everything a session produced.
type Result struct {
	SessionID       string                   `json:"session_id"`
	Trace           map[string]history.Trace `json:"trace"`
	Steps           []trace.ExecutionStep    `json:"steps"`
	StepLines       []int                    `json:"step_lines"`
	Output          string                   `json:"output"`
	OutputTruncated bool                     `json:"output_truncated"`
	TimeTakenMS     *float64                 `json:"time_taken_ms,omitempty"`
	Errors          []trace.ErrorRecord      `json:"errors"`
	TestResults     []harness.Result         `json:"test_results,omitempty"`
	AllTestsPassed  bool                     `json:"all_tests_passed"`
	Progress        *harness.Progress        `json:"progress,omitempty"`
}

// Runner executes sessions with fixed settings. It is safe for concurrent
// use; every session gets its own runtime.
type Runner struct {
	cfg   config.Config
	log   *slog.Logger
	audit audit.Writer
}

// New creates a Runner. A nil logger means slog.Default().
func New(cfg config.Config, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log, audit: audit.Writer{Dir: cfg.AuditDir}}
}

// Run executes one session. Only an invalid request is returned as an
// error; failures of the target program are reported in Result.Errors.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Tests != nil {
		if err := req.Tests.Validate(); err != nil {
			return nil, err
		}
	}
	if req.Name == "" {
		req.Name = "main.js"
	}
	id := uuid.NewString()
	start := time.Now()
	log := r.log.With(slog.String("session_id", id))

	ctx, span := tracer.Start(ctx, "session.run", oteltrace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("source.bytes", len(req.Source)),
		attribute.Bool("session.tests", req.Tests != nil),
	))
	defer span.End()

	res := &Result{SessionID: id, Trace: map[string]history.Trace{}, AllTestsPassed: true}
	entry := func(outcome string) {
		e := audit.NewEntry(id, req.Name, req.Source, start)
		e.Outcome = outcome
		e.Steps = len(res.Steps)
		e.Vars = len(res.Trace)
		e.Errors = len(res.Errors)
		e.OutputBytes = len(res.Output)
		e.Truncated = res.OutputTruncated
		if req.Tests != nil {
			e.Tests = len(res.TestResults)
			e.TestsPassed = res.AllTestsPassed
		}
		if err := r.audit.Append(e); err != nil {
			log.Warn("audit write failed", slog.String("error", err.Error()))
		}
		metrics.ObserveSession(outcome, len(res.Steps), time.Since(start))
		span.SetAttributes(attribute.String("session.outcome", outcome))
		log.Info("session done",
			slog.String("outcome", outcome),
			slog.Int("steps", len(res.Steps)),
			slog.Int("errors", len(res.Errors)),
			slog.Duration("elapsed", time.Since(start)))
	}

	prog, err := driver.Compile(req.Name, req.Source, instrument.Options{EvalLines: evalLines(req.Annotations)})
	if err != nil {
		var ce *driver.CompileError
		if !errors.As(err, &ce) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("compile: %w", err)
		}
		res.Errors = []trace.ErrorRecord{trace.LineError(ce.Message, ce.Line, 0)}
		res.Steps, res.StepLines = []trace.ExecutionStep{}, []int{}
		metrics.CountError(metrics.OutcomeCompileError)
		span.SetStatus(codes.Error, "compile error")
		entry(metrics.OutcomeCompileError)
		return res, nil
	}

	rt, err := driver.New(driver.Options{WallMS: r.cfg.WallMS, Logger: log})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("runtime: %w", err)
	}
	tr := trace.New(rt.Classifier(), trace.Options{
		MaxSteps:    r.cfg.MaxSteps,
		Annotations: req.Annotations,
		Logger:      log,
	})

	outcome := r.narrate(ctx, rt, prog, tr, res)
	narrationErrs := len(res.Errors)

	if narrationErrs == 0 {
		if ms, ok := r.timing(ctx, req, log); ok {
			res.TimeTakenMS = &ms
		}
		if req.Tests != nil {
			r.tests(ctx, rt, tr, req.Tests, res, log)
		}
	}
	if narrationErrs > 0 {
		span.SetStatus(codes.Error, res.Errors[0].Text)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	entry(outcome)
	return res, nil
}

// narrate runs the instrumented program once and fills the trace part of res.
func (r *Runner) narrate(ctx context.Context, rt *driver.Runtime, prog *driver.Program, tr *trace.Tracer, res *Result) string {
	ctx, span := tracer.Start(ctx, "session.trace")
	defer span.End()

	buf := sandbox.NewBoundedBuffer(r.cfg.OutputKB)
	release := rt.Output().Acquire(buf)
	defer release()
	_, runErr := rt.Run(ctx, prog, tr)
	release()
	tr.Finish()

	outcome := metrics.OutcomeOK
	var exc *goja.Exception
	switch {
	case runErr == nil:
	case errors.Is(runErr, driver.ErrAborted):
		outcome = metrics.OutcomeStepBudget
	case errors.Is(runErr, driver.ErrTimeout), errors.Is(runErr, context.DeadlineExceeded), errors.Is(runErr, context.Canceled):
		outcome = metrics.OutcomeTimeout
		tr.AddError(trace.LineError(MsgTimeout, lastLine(tr), 0))
	case errors.As(runErr, &exc):
		outcome = metrics.OutcomeRuntimeError
	default:
		outcome = metrics.OutcomeRuntimeError
		tr.AddError(trace.LineError(runErr.Error(), lastLine(tr), 0))
	}
	if outcome != metrics.OutcomeOK {
		metrics.CountError(outcome)
		span.RecordError(runErr)
	}

	res.Steps = tr.Steps()
	if res.Steps == nil {
		res.Steps = []trace.ExecutionStep{}
	}
	res.StepLines = tr.Lines()
	res.Trace = tr.Trace()
	res.Output = buf.String()
	res.OutputTruncated = buf.Truncated()
	res.Errors = append([]trace.ErrorRecord(nil), tr.Errors()...)
	if res.Errors == nil {
		res.Errors = []trace.ErrorRecord{}
	}
	span.SetAttributes(
		attribute.Int("trace.steps", len(res.Steps)),
		attribute.Int("trace.vars", len(res.Trace)),
		attribute.String("trace.outcome", outcome),
	)
	return outcome
}

// timing re-runs the uninstrumented source and reports the mean wall time
// in milliseconds. Failed runs are skipped.
func (r *Runner) timing(ctx context.Context, req Request, log *slog.Logger) (float64, bool) {
	if r.cfg.TimingRuns <= 0 {
		return 0, false
	}
	ctx, span := tracer.Start(ctx, "session.timing")
	defer span.End()

	prog, err := driver.CompilePlain(req.Name, req.Source)
	if err != nil {
		log.Debug("timing compile failed", slog.String("error", err.Error()))
		return 0, false
	}
	var (
		total time.Duration
		n     int
	)
	for i := 0; i < r.cfg.TimingRuns; i++ {
		d, err := driver.Probe(ctx, prog, driver.Options{WallMS: r.cfg.WallMS, Logger: log})
		if err != nil {
			log.Debug("timing run failed", slog.Int("run", i), slog.String("error", err.Error()))
			continue
		}
		total += d
		n++
	}
	span.SetAttributes(attribute.Int("timing.runs", n))
	if n == 0 {
		return 0, false
	}
	return float64(total.Microseconds()) / 1000 / float64(n), true
}

// tests runs the harness against the runtime of the narration run.
func (r *Runner) tests(ctx context.Context, rt *driver.Runtime, tr *trace.Tracer, spec *harness.Spec, res *Result, log *slog.Logger) {
	ctx, span := tracer.Start(ctx, "session.tests")
	defer span.End()

	tr.Target(spec.FuncName)
	rep := harness.Run(ctx, spec, &caseRunner{rt: rt, tr: tr, outputKB: r.cfg.OutputKB}, log)
	for _, c := range rep.Results {
		metrics.CountTestCase(c.Passed)
	}
	res.TestResults = rep.Results
	res.AllTestsPassed = rep.AllPassed
	res.Progress = rep.Progress
	span.SetAttributes(
		attribute.Int("tests.attempted", len(rep.Results)),
		attribute.Int("tests.declared", len(spec.Tests)),
		attribute.Bool("tests.passed", rep.AllPassed),
	)
	if rep.Err != nil {
		span.RecordError(rep.Err)
	}
}

func evalLines(ann map[int][]*expr.Node) map[int]bool {
	if len(ann) == 0 {
		return nil
	}
	out := make(map[int]bool, len(ann))
	for ln, nodes := range ann {
		if len(nodes) > 0 {
			out[ln] = true
		}
	}
	return out
}

func lastLine(tr *trace.Tracer) int {
	lines := tr.Lines()
	if len(lines) == 0 {
		return 1
	}
	return lines[len(lines)-1]
}
