package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/expr"
	"github.com/hyperifyio/steptrace/internal/history"
	"github.com/hyperifyio/steptrace/internal/instrument"
)

func runTraced(t *testing.T, src string, opts Options) (*Tracer, error) {
	t.Helper()
	evalLines := map[int]bool{}
	for ln := range opts.Annotations {
		evalLines[ln] = true
	}
	p, err := driver.Compile("main.js", src, instrument.Options{EvalLines: evalLines})
	require.NoError(t, err)
	rt, err := driver.New(driver.Options{WallMS: 2000})
	require.NoError(t, err)
	tr := New(rt.Classifier(), opts)
	_, runErr := rt.Run(context.Background(), p, tr)
	tr.Finish()
	return tr, runErr
}

func TestTracer_HistoriesArePaddedToStepCount(t *testing.T) {
	src := `let a = 1;
let b = a + 1;
function sq(x) {
  return x * x;
}
let c = sq(b);
let d = c;
`
	tr, err := runTraced(t, src, Options{})
	require.NoError(t, err)
	total := tr.StepCount()
	require.Positive(t, total)
	for key, h := range tr.Trace() {
		assert.Len(t, h.Values, total, key)
	}

	c := tr.Trace()["c"]
	assert.Equal(t, "c", c.Name)
	assert.Empty(t, c.Scope)
	assert.Equal(t, "4", c.Values[total-1])
	assert.Equal(t, history.Unassigned, c.Values[0])

	x := tr.Trace()["sq:x"]
	assert.Equal(t, []string{"sq"}, x.Scope)
	assert.Contains(t, x.Values, "2")
}

func TestTracer_ScopePathFollowsCallsAndReturns(t *testing.T) {
	src := `function inner() {
  return 1;
}
function outer() {
  return inner() + 1;
}
outer();
`
	tr, err := runTraced(t, src, Options{})
	require.NoError(t, err)
	steps := tr.Steps()
	require.NotEmpty(t, steps)

	assert.Empty(t, steps[0].Scope)
	var kinds []driver.Kind
	for _, s := range steps {
		kinds = append(kinds, s.Kind)
		switch {
		case s.Kind == driver.KindCall && s.Line == 1:
			assert.Equal(t, []string{"outer", "inner"}, s.Scope)
		case s.Kind == driver.KindReturn && s.Line == 5:
			assert.Empty(t, s.Scope)
		}
	}
	assert.Equal(t, driver.KindReturn, kinds[len(kinds)-1])
	assert.Equal(t, []int{1, 4, 7, 4, 5, 1, 2, 2, 5}, tr.Lines())
}

func TestTracer_InfiniteLoopHitsBudget(t *testing.T) {
	tr, err := runTraced(t, "let n = 0;\nwhile (true) {\n  n++;\n}\n", Options{MaxSteps: 50})
	require.ErrorIs(t, err, driver.ErrAborted)
	require.Len(t, tr.Errors(), 1)
	rec := tr.Errors()[0]
	assert.Equal(t, "Your code has too many steps (> 50)", rec.Text)
	assert.Equal(t, 1, rec.StartCol)
	assert.Equal(t, 999, rec.EndCol)
	assert.Equal(t, 51, tr.StepCount())
	// later events are ignored
	assert.Equal(t, driver.Continue, tr.Handle(&driver.Event{Kind: driver.KindLine, Line: 2}))
	assert.Equal(t, 51, tr.StepCount())
}

func TestTracer_ExceptionBecomesErrorRecord(t *testing.T) {
	src := `let xs = [1, 2];
function pick(i) {
  return xs[i].toFixed(1);
}
pick(5);
let after = 1;
`
	tr, err := runTraced(t, src, Options{})
	require.Error(t, err)
	require.Len(t, tr.Errors(), 1)
	rec := tr.Errors()[0]
	assert.Equal(t, 3, rec.StartLine)
	assert.Contains(t, rec.Text, "TypeError")
	last := tr.Steps()[len(tr.Steps())-1]
	assert.Equal(t, driver.KindException, last.Kind)
	_, seen := tr.Trace()["after"]
	assert.False(t, seen, "tracing stops at the exception")
}

func TestTracer_UnassignedThenValue(t *testing.T) {
	// a stays out of the snapshots while it holds undefined
	src := "let a;\nlet b = 1;\na = 7;\nb = 2;\nb = 3;\n"
	tr, err := runTraced(t, src, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"unassigned", "unassigned", "1", "1", "2"}, tr.Trace()["b"].Values)
	assert.Equal(t, []string{"unassigned", "unassigned", "unassigned", "7", "7"}, tr.Trace()["a"].Values)
}

func TestTracer_EvaluatesAnnotations(t *testing.T) {
	src := "let xs = [4, 5];\nlet i = 1;\nlet y = xs[i] / 0;\n"
	binop := &expr.Node{Kind: expr.KindBinOp, Disp: "/", Children: []*expr.Node{
		{Kind: expr.KindSubscript, Disp: "xs[i]"},
		{Kind: expr.KindNum, Disp: "0"},
	}}
	sum := &expr.Node{Kind: expr.KindBinOp, Disp: "+", Children: []*expr.Node{
		{Kind: expr.KindVariable, Disp: "i"},
		{Kind: expr.KindNum, Disp: "2"},
	}}
	tr, err := runTraced(t, src, Options{Annotations: map[int][]*expr.Node{3: {binop, sum}}})
	require.NoError(t, err)

	var extra []*expr.Node
	for _, s := range tr.Steps() {
		if s.Line == 3 {
			extra = s.Extra
		}
	}
	require.Len(t, extra, 2)
	assert.Nil(t, extra[0].Value)
	assert.Equal(t, int64(5), extra[0].Children[0].Value)
	assert.Equal(t, int64(3), extra[1].Value)
	assert.Nil(t, binop.Value, "caller trees are not mutated")

	require.Len(t, tr.Errors(), 1)
	assert.Equal(t, expr.MsgDivideByZero, tr.Errors()[0].Text)
}

func TestTracer_TestModeCapturesTopLevelReturn(t *testing.T) {
	src := `function fib(n) {
  if (n < 2) return n;
  return fib(n - 1) + fib(n - 2);
}
`
	p, err := driver.Compile("main.js", src, instrument.Options{})
	require.NoError(t, err)
	rt, err := driver.New(driver.Options{WallMS: 2000})
	require.NoError(t, err)
	tr := New(rt.Classifier(), Options{})
	_, err = rt.Run(context.Background(), p, tr)
	require.NoError(t, err)

	tr.Target("fib")
	tr.Reset()
	call, err := driver.Compile("call.js", "fib(5)", instrument.Options{})
	require.NoError(t, err)
	_, err = rt.Run(context.Background(), call, tr)
	require.NoError(t, err)

	v, ok := tr.Returned()
	require.True(t, ok)
	assert.Equal(t, int64(5), v.Export())
	assert.Equal(t, driver.Continue, tr.Handle(&driver.Event{Kind: driver.KindLine, Line: 2}))
	assert.Empty(t, tr.Errors())
}

func TestLog_Lines(t *testing.T) {
	var l Log
	l.Append(ExecutionStep{Step: 1, Line: 3})
	l.Append(ExecutionStep{Step: 2, Line: 1})
	assert.Equal(t, []int{3, 1}, l.Lines())
	assert.Equal(t, 2, l.Len())
	l.Reset()
	assert.Empty(t, l.Steps())
}
