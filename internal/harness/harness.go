// Package harness drives a target function through declarative test cases
// and compares what it returns with what each case expects.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hyperifyio/steptrace/internal/value"
)

// Declared value types.
const (
	TypeNumber  = "number"
	TypeString  = "string"
	TypeList    = "list"
	TypeBoolean = "boolean"
)

// ErrNoReturn is reported when a case finished without the target returning.
var ErrNoReturn = errors.New("target function did not return")

var validate = validator.New()

// Input is one argument of a synthesized call.
type Input struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Type  string `json:"type" yaml:"type" validate:"required,oneof=number string list boolean"`
	Value string `json:"value" yaml:"value"`
}

// Output is one expected return value.
type Output struct {
	Type  string `json:"type" yaml:"type" validate:"required,oneof=number string list boolean"`
	Value string `json:"value" yaml:"value"`
}

// Case is one test case.
type Case struct {
	Inputs  []Input  `json:"inputs" yaml:"inputs" validate:"dive"`
	Outputs []Output `json:"outputs" yaml:"outputs" validate:"required,min=1,dive"`
}

// Spec names the function under test and its cases.
type Spec struct {
	FuncName string `json:"func_name" yaml:"func_name" validate:"required"`
	Tests    []Case `json:"tests" yaml:"tests" validate:"dive"`
}

// Validate checks the structure of s.
func (s *Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid test spec: %w", err)
	}
	return nil
}

// OutputResult compares one expected output with the actual one.
type OutputResult struct {
	ExpectedVal  string `json:"expected_val"`
	ExpectedType string `json:"expected_type"`
	ActualVal    string `json:"actual_val"`
	ActualType   string `json:"actual_type"`
	Passed       bool   `json:"passed"`
}

// Result is the outcome of one attempted case.
type Result struct {
	Inputs   []Input        `json:"inputs"`
	Outputs  []OutputResult `json:"outputs"`
	Passed   bool           `json:"passed"`
	NumVars  int            `json:"num_vars"`
	NumSteps int            `json:"num_steps"`
	Output   string         `json:"output"`
}

// Progress records the step and variable counts of the first case.
type Progress struct {
	NumSteps int `json:"num_steps"`
	NumVars  int `json:"num_vars"`
}

// Report is the outcome of a harness run.
type Report struct {
	Results   []Result  `json:"test_results"`
	AllPassed bool      `json:"all_tests_passed"`
	Progress  *Progress `json:"progress,omitempty"`
	// Err is the failure that stopped the run early, if any.
	Err error `json:"-"`
}

// Outcome is what a Runner observed while running one synthesized call.
type Outcome struct {
	Value  any
	Steps  int
	Vars   int
	Output string
}

// Runner executes a synthesized call against the traced program.
type Runner interface {
	Call(ctx context.Context, call string) (Outcome, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, call string) (Outcome, error)

// Call implements Runner.
func (f RunnerFunc) Call(ctx context.Context, call string) (Outcome, error) { return f(ctx, call) }

// BuildCall synthesizes the call expression for inputs. String inputs are
// quoted as JSON strings, which are valid JavaScript string literals; other
// values are inserted as written.
func BuildCall(fn string, inputs []Input) string {
	args := make([]string, len(inputs))
	for i, in := range inputs {
		if in.Type == TypeString {
			b, _ := json.Marshal(in.Value)
			args[i] = string(b)
		} else {
			args[i] = in.Value
		}
	}
	return fn + "(" + strings.Join(args, ", ") + ")"
}

// ParseExpected converts the literal text of an expected output.
func ParseExpected(typ, text string) (any, error) {
	switch typ {
	case TypeString:
		return text, nil
	case TypeNumber:
		s := strings.TrimSpace(text)
		if strings.ContainsAny(s, ".eE") {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("number %q: %w", text, err)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", text, err)
		}
		return n, nil
	case TypeList, TypeBoolean:
		return literal(text)
	}
	return nil, fmt.Errorf("unknown type %q", typ)
}

// Compare checks actual against outputs. A list compared with more than one
// expected output is matched position by position; otherwise the whole value
// is compared with the first expected output.
func Compare(actual any, outputs []Output) ([]OutputResult, bool) {
	if len(outputs) == 0 {
		return nil, false
	}
	if xs, ok := actual.([]any); ok && len(outputs) > 1 {
		res := make([]OutputResult, 0, len(outputs))
		passed := len(xs) == len(outputs)
		for i, o := range outputs {
			var got any
			present := i < len(xs)
			if present {
				got = xs[i]
			}
			r := compareOne(got, present, o)
			passed = passed && r.Passed
			res = append(res, r)
		}
		return res, passed
	}
	r := compareOne(actual, true, outputs[0])
	return []OutputResult{r}, r.Passed
}

func compareOne(actual any, present bool, o Output) OutputResult {
	r := OutputResult{ExpectedVal: o.Value, ExpectedType: o.Type}
	if present {
		r.ActualVal = value.Display(actual)
		r.ActualType = value.TypeName(actual)
	}
	want, err := ParseExpected(o.Type, o.Value)
	if err != nil {
		return r
	}
	r.ExpectedVal = value.Display(want)
	r.Passed = present && value.Equal(want, actual)
	return r
}

// Run attempts every case of spec in order. The first case that fails to
// run stops the run; later cases are not attempted and do not count
// against AllPassed.
func Run(ctx context.Context, spec *Spec, r Runner, log *slog.Logger) Report {
	if log == nil {
		log = slog.Default()
	}
	rep := Report{AllPassed: true}
	for i, c := range spec.Tests {
		call := BuildCall(spec.FuncName, c.Inputs)
		out, err := r.Call(ctx, call)
		if err != nil {
			log.Warn("test case failed to run",
				slog.Int("case", i),
				slog.String("call", call),
				slog.String("error", err.Error()))
			rep.Err = fmt.Errorf("case %d: %w", i, err)
			break
		}
		outputs, passed := Compare(out.Value, c.Outputs)
		rep.Results = append(rep.Results, Result{
			Inputs:   c.Inputs,
			Outputs:  outputs,
			Passed:   passed,
			NumVars:  out.Vars,
			NumSteps: out.Steps,
			Output:   out.Output,
		})
		rep.AllPassed = rep.AllPassed && passed
		if rep.Progress == nil {
			rep.Progress = &Progress{NumSteps: out.Steps, NumVars: out.Vars}
		}
		log.Debug("test case", slog.Int("case", i), slog.String("call", call), slog.Bool("passed", passed))
	}
	return rep
}
