package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCall(t *testing.T) {
	tests := []struct {
		name   string
		inputs []Input
		want   string
	}{
		{"none", nil, "f()"},
		{"numbers", []Input{{Name: "a", Type: TypeNumber, Value: "2"}, {Name: "b", Type: TypeNumber, Value: "3"}}, "f(2, 3)"},
		{"string quoted", []Input{{Name: "s", Type: TypeString, Value: `say "hi"`}}, `f("say \"hi\"")`},
		{"string escapes", []Input{{Name: "s", Type: TypeString, Value: "a\x01<"}}, `f("a\u0001\u003c")`},
		{"list verbatim", []Input{{Name: "xs", Type: TypeList, Value: "[3, 1, 2]"}, {Name: "rev", Type: TypeBoolean, Value: "true"}}, "f([3, 1, 2], true)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildCall("f", tt.inputs))
		})
	}
}

func TestParseExpected(t *testing.T) {
	tests := []struct {
		typ, text string
		want      any
	}{
		{TypeNumber, "5", int64(5)},
		{TypeNumber, "2.5", 2.5},
		{TypeString, "5", "5"},
		{TypeList, "[1, 'a', [true]]", []any{int64(1), "a", []any{true}}},
		{TypeBoolean, "false", false},
		{TypeList, "[-1, +2.5, null, {a: 1, 'b c': [\"x\"]}]", []any{int64(-1), 2.5, nil, map[string]any{"a": int64(1), "b c": []any{"x"}}}},
		{TypeList, " [ ] ", []any{}},
	}
	for _, tt := range tests {
		got, err := ParseExpected(tt.typ, tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, err := ParseExpected(TypeNumber, "five")
	assert.Error(t, err)
	_, err = ParseExpected(TypeList, "[1,")
	assert.Error(t, err)
}

func TestParseExpected_RejectsCode(t *testing.T) {
	for _, text := range []string{
		"(()=>{for(;;){}})()",
		"[1, f()]",
		"[x]",
		"[1, , 2]",
		"{[k]: 1}",
		"{get a() { return 1 }}",
		"true || false",
		"1); (2",
	} {
		_, err := ParseExpected(TypeList, text)
		assert.Error(t, err, text)
	}
}

func TestBuildCall_StringsRoundTrip(t *testing.T) {
	for _, s := range []string{"plain", "tab\tquote\"", "tag \U000E0001 char", "emoji \U0001F600", "line\u2028sep", "nul\x00"} {
		call := BuildCall("String", []Input{{Name: "s", Type: TypeString, Value: s}})
		v, err := goja.New().RunString(call)
		require.NoError(t, err, call)
		assert.Equal(t, s, v.String(), call)
	}
}

func TestCompare(t *testing.T) {
	res, ok := Compare(int64(5), []Output{{Type: TypeNumber, Value: "5"}})
	assert.True(t, ok)
	assert.Equal(t, OutputResult{ExpectedVal: "5", ExpectedType: "number", ActualVal: "5", ActualType: "number", Passed: true}, res[0])

	res, ok = Compare(int64(5), []Output{{Type: TypeNumber, Value: "6"}})
	assert.False(t, ok)
	assert.Equal(t, "5", res[0].ActualVal)
	assert.Equal(t, "6", res[0].ExpectedVal)

	// a whole list against one expected list
	_, ok = Compare([]any{int64(1), int64(2)}, []Output{{Type: TypeList, Value: "[1, 2]"}})
	assert.True(t, ok)

	// position by position against several outputs
	res, ok = Compare([]any{int64(3), "x"}, []Output{{Type: TypeNumber, Value: "3"}, {Type: TypeString, Value: "y"}})
	assert.False(t, ok)
	require.Len(t, res, 2)
	assert.True(t, res[0].Passed)
	assert.False(t, res[1].Passed)
	assert.Equal(t, "string", res[1].ActualType)

	// too few values
	res, ok = Compare([]any{int64(3)}, []Output{{Type: TypeNumber, Value: "3"}, {Type: TypeNumber, Value: "4"}})
	assert.False(t, ok)
	assert.Empty(t, res[1].ActualVal)

	_, ok = Compare(1.0, []Output{{Type: TypeNumber, Value: "1"}})
	assert.True(t, ok, "numbers compare by value")
}

func TestSpec_Validate(t *testing.T) {
	good := Spec{FuncName: "add", Tests: []Case{{
		Inputs:  []Input{{Name: "a", Type: TypeNumber, Value: "1"}},
		Outputs: []Output{{Type: TypeNumber, Value: "1"}},
	}}}
	require.NoError(t, good.Validate())

	bad := good
	bad.Tests = []Case{{Outputs: []Output{{Type: "tuple", Value: "1"}}}}
	assert.Error(t, bad.Validate())

	assert.Error(t, (&Spec{}).Validate())
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	spec := &Spec{FuncName: "add", Tests: []Case{
		{Inputs: []Input{{Name: "a", Type: TypeNumber, Value: "2"}, {Name: "b", Type: TypeNumber, Value: "3"}}, Outputs: []Output{{Type: TypeNumber, Value: "5"}}},
		{Inputs: []Input{{Name: "a", Type: TypeNumber, Value: "1"}, {Name: "b", Type: TypeNumber, Value: "1"}}, Outputs: []Output{{Type: TypeNumber, Value: "2"}}},
		{Inputs: []Input{{Name: "a", Type: TypeNumber, Value: "0"}, {Name: "b", Type: TypeNumber, Value: "0"}}, Outputs: []Output{{Type: TypeNumber, Value: "0"}}},
	}}
	var calls []string
	runner := RunnerFunc(func(_ context.Context, call string) (Outcome, error) {
		calls = append(calls, call)
		switch len(calls) {
		case 1:
			return Outcome{Value: int64(5), Steps: 4, Vars: 2, Output: "hi\n"}, nil
		case 2:
			return Outcome{}, errors.New("ReferenceError: add is not defined")
		}
		t.Fatalf("case %d should not run", len(calls))
		return Outcome{}, nil
	})

	rep := Run(context.Background(), spec, runner, nil)
	assert.Equal(t, []string{"add(2, 3)", "add(1, 1)"}, calls)
	require.Len(t, rep.Results, 1)
	assert.True(t, rep.AllPassed, "cases not attempted do not count")
	assert.Equal(t, &Progress{NumSteps: 4, NumVars: 2}, rep.Progress)
	assert.Equal(t, "hi\n", rep.Results[0].Output)
	assert.Error(t, rep.Err)
}

func TestRun_AllPassedIsConjunction(t *testing.T) {
	spec := &Spec{FuncName: "id", Tests: []Case{
		{Inputs: []Input{{Name: "x", Type: TypeNumber, Value: "1"}}, Outputs: []Output{{Type: TypeNumber, Value: "1"}}},
		{Inputs: []Input{{Name: "x", Type: TypeNumber, Value: "2"}}, Outputs: []Output{{Type: TypeNumber, Value: "3"}}},
	}}
	n := int64(0)
	runner := RunnerFunc(func(context.Context, string) (Outcome, error) {
		n++
		return Outcome{Value: n, Steps: int(n)}, nil
	})
	rep := Run(context.Background(), spec, runner, nil)
	require.Len(t, rep.Results, 2)
	assert.False(t, rep.AllPassed)
	assert.Equal(t, 1, rep.Progress.NumSteps)
	assert.NoError(t, rep.Err)

	empty := Run(context.Background(), &Spec{FuncName: "id"}, runner, nil)
	assert.True(t, empty.AllPassed)
	assert.Nil(t, empty.Progress)
}
