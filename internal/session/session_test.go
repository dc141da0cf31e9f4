package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/steptrace/internal/config"
	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/expr"
	"github.com/hyperifyio/steptrace/internal/harness"
)

func newRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := config.Default()
	cfg.TimingRuns = 2
	cfg.WallMS = 2000
	cfg.AuditDir = t.TempDir()
	return New(cfg, nil)
}

func addSpec(want string) *harness.Spec {
	return &harness.Spec{FuncName: "add", Tests: []harness.Case{{
		Inputs: []harness.Input{
			{Name: "a", Type: harness.TypeNumber, Value: "2"},
			{Name: "b", Type: harness.TypeNumber, Value: "3"},
		},
		Outputs: []harness.Output{{Type: harness.TypeNumber, Value: want}},
	}}}
}

const addSource = "function add(a, b) {\n  return a + b;\n}\n"

func TestRun_TestCasePasses(t *testing.T) {
	res, err := newRunner(t).Run(context.Background(), Request{Source: addSource, Tests: addSpec("5")})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.TestResults, 1)
	tr := res.TestResults[0]
	assert.True(t, tr.Passed)
	assert.True(t, res.AllTestsPassed)
	assert.Equal(t, "5", tr.Outputs[0].ActualVal)
	assert.Equal(t, "number", tr.Outputs[0].ActualType)
	require.NotNil(t, res.Progress)
	assert.Equal(t, tr.NumSteps, res.Progress.NumSteps)
	assert.Positive(t, tr.NumSteps)
	require.NotNil(t, res.TimeTakenMS)
}

func TestRun_TestCaseFails(t *testing.T) {
	res, err := newRunner(t).Run(context.Background(), Request{Source: addSource, Tests: addSpec("6")})
	require.NoError(t, err)
	require.Len(t, res.TestResults, 1)
	out := res.TestResults[0].Outputs[0]
	assert.False(t, out.Passed)
	assert.Equal(t, "5", out.ActualVal)
	assert.Equal(t, "6", out.ExpectedVal)
	assert.False(t, res.AllTestsPassed)
}

func TestRun_MissingTargetStopsCases(t *testing.T) {
	spec := addSpec("5")
	spec.FuncName = "plus"
	spec.Tests = append(spec.Tests, spec.Tests[0])
	res, err := newRunner(t).Run(context.Background(), Request{Source: addSource, Tests: spec})
	require.NoError(t, err)
	assert.Empty(t, res.TestResults)
	assert.True(t, res.AllTestsPassed)
	assert.Empty(t, res.Errors, "harness failures are not error records")
}

func TestRun_InfiniteLoop(t *testing.T) {
	res, err := newRunner(t).Run(context.Background(), Request{Source: "while (true) {\n}\n", Tests: addSpec("5")})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Your code has too many steps (> 500)", res.Errors[0].Text)
	assert.Len(t, res.Steps, 501)
	assert.Nil(t, res.TimeTakenMS)
	assert.Empty(t, res.TestResults, "tests are skipped after errors")
}

func TestRun_HistoriesMatchStepCount(t *testing.T) {
	src := `function gcd(a, b) {
  while (b !== 0) {
    let t = b;
    b = a % b;
    a = t;
  }
  return a;
}
let g = gcd(48, 18);
console.log("gcd", g);
`
	res, err := newRunner(t).Run(context.Background(), Request{Source: src})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	for key, h := range res.Trace {
		assert.Len(t, h.Values, len(res.Steps), key)
	}
	assert.Equal(t, len(res.Steps), len(res.StepLines))
	assert.Empty(t, res.Steps[0].Scope)
	last := res.Steps[len(res.Steps)-1]
	assert.Empty(t, last.Scope)
	assert.Equal(t, "6", res.Trace["g"].Values[len(res.Steps)-1])
	assert.Equal(t, "gcd 6\n", res.Output)
	assert.Contains(t, res.Trace, "gcd:a")
}

func TestRun_Deterministic(t *testing.T) {
	src := addSource + "let xs = [3, 1, 2];\nxs.sort();\nlet s = xs.join(',');\nconsole.log(s);\n"
	r := newRunner(t)
	a, err := r.Run(context.Background(), Request{Source: src, Tests: addSpec("5")})
	require.NoError(t, err)
	b, err := r.Run(context.Background(), Request{Source: src, Tests: addSpec("5")})
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Equal(t, a.Steps, b.Steps)
	assert.Equal(t, a.Trace, b.Trace)
	assert.Equal(t, a.Output, b.Output)
	assert.Equal(t, "1,2,3", a.Trace["s"].Values[len(a.Steps)-1])
	require.Len(t, a.TestResults, 1)
	assert.Equal(t, a.TestResults, b.TestResults)
	assert.Equal(t, a.Progress, b.Progress)
	assert.Equal(t, a.AllTestsPassed, b.AllTestsPassed)
}

func TestRun_CommaReturnValue(t *testing.T) {
	src := "function pair(a, b) {\n  return a, b;\n}\nconst last = x => (x, 7);\nlet k = last(1);\n"
	spec := &harness.Spec{FuncName: "pair", Tests: []harness.Case{{
		Inputs: []harness.Input{
			{Name: "a", Type: harness.TypeNumber, Value: "1"},
			{Name: "b", Type: harness.TypeNumber, Value: "2"},
		},
		Outputs: []harness.Output{{Type: harness.TypeNumber, Value: "2"}},
	}}}
	res, err := newRunner(t).Run(context.Background(), Request{Source: src + "let m = k;\n", Tests: spec})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, "7", res.Trace["k"].Values[len(res.Steps)-1])
	require.Len(t, res.TestResults, 1)
	assert.True(t, res.TestResults[0].Passed)
	assert.Equal(t, "2", res.TestResults[0].Outputs[0].ActualVal)
}

func TestRun_LabelledContinue(t *testing.T) {
	src := "outer: for (let i = 0; i < 2; i++) {\n  for (let j = 0; j < 2; j++) {\n    if (j) continue outer;\n    console.log(i, j);\n  }\n}\n"
	res, err := newRunner(t).Run(context.Background(), Request{Source: src})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, "0 0\n1 0\n", res.Output)
	assert.Contains(t, res.StepLines, 3)
}

func TestRun_HugeSparseArrayStaysBounded(t *testing.T) {
	src := "var a = [];\na.length = 4294967295;\nvar b = 1;\nvar c = b;\n"
	start := time.Now()
	res, err := newRunner(t).Run(context.Background(), Request{Source: src})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, "1", res.Trace["b"].Values[len(res.Steps)-1])
}

func TestRun_CompileError(t *testing.T) {
	res, err := newRunner(t).Run(context.Background(), Request{Source: "let a = 1;\nlet = ;\n"})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].StartLine)
	assert.Equal(t, 0, res.Errors[0].StartCol)
	assert.Equal(t, 999, res.Errors[0].EndCol)
	assert.Empty(t, res.Steps)
	assert.Empty(t, res.Trace)
}

func TestRun_RuntimeExceptionKeepsTrace(t *testing.T) {
	src := "let a = 1;\nlet b = a.nope.x;\nlet c = 2;\n"
	res, err := newRunner(t).Run(context.Background(), Request{Source: src})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].StartLine)
	assert.Contains(t, res.Errors[0].Text, "TypeError")
	assert.Equal(t, driver.KindException, res.Steps[len(res.Steps)-1].Kind)
	assert.Nil(t, res.TimeTakenMS)
}

func TestRun_AnnotationsAndDivideByZero(t *testing.T) {
	src := "let n = 4;\nlet m = n % 3;\nlet k = m;\n"
	mod := &expr.Node{Kind: expr.KindBinOp, Disp: "%", Children: []*expr.Node{
		{Kind: expr.KindVariable, Disp: "n"},
		{Kind: expr.KindNum, Disp: "0"},
	}}
	res, err := newRunner(t).Run(context.Background(), Request{Source: src, Annotations: map[int][]*expr.Node{2: {mod}}})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, expr.MsgModuloByZero, res.Errors[0].Text)
	assert.Equal(t, "1", res.Trace["m"].Values[len(res.Steps)-1], "the trace continues")
}

func TestRun_InvalidSpec(t *testing.T) {
	_, err := newRunner(t).Run(context.Background(), Request{Source: addSource, Tests: &harness.Spec{}})
	assert.Error(t, err)
}

func TestRun_WritesAuditLine(t *testing.T) {
	r := newRunner(t)
	res, err := r.Run(context.Background(), Request{Source: "let a = 1;\n"})
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join(r.cfg.AuditDir, "*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, res.SessionID, line["sessionId"])
	assert.Equal(t, "ok", line["outcome"])
}

func TestResult_JSONFieldNames(t *testing.T) {
	res, err := newRunner(t).Run(context.Background(), Request{Source: addSource, Tests: addSpec("5")})
	require.NoError(t, err)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{"session_id", "trace", "steps", "step_lines", "output", "errors", "test_results", "all_tests_passed", "progress"} {
		assert.Contains(t, m, k)
	}
}
