package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/steptrace/internal/expr"
)

func TestSource(t *testing.T) {
	src := `let xs = [3, 1];
function f(a, b) {
  if (a < b) {
    return a + xs[0];
  }
  total += a * 2;
  return Math.max(a, b);
}
while (xs.length > 0 && go) xs.pop();
`
	ann, err := Source("main.js", src)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 6, 7, 9}, ann.Lines())

	decl := ann[1][0]
	assert.Equal(t, expr.KindAssignment, decl.Kind)
	assert.Equal(t, "xs", decl.Children[0].Disp)
	assert.Equal(t, &expr.Node{Kind: expr.KindList, Disp: "[3, 1]"}, decl.Children[1])

	test := ann[3][0]
	assert.Equal(t, expr.KindCompare, test.Kind)
	assert.Equal(t, "<", test.Disp)

	ret := ann[4][0]
	assert.Equal(t, expr.KindReturn, ret.Kind)
	sum := ret.Children[0]
	assert.Equal(t, expr.KindBinOp, sum.Kind)
	assert.Equal(t, &expr.Node{Kind: expr.KindSubscript, Disp: "xs[0]"}, sum.Children[1])

	compound := ann[6][0]
	assert.Equal(t, expr.KindAssignment, compound.Kind)
	assert.Equal(t, "+", compound.Children[1].Disp)
	assert.Equal(t, "*", compound.Children[1].Children[1].Disp)

	call := ann[7][0].Children[0]
	assert.Equal(t, expr.KindFunction, call.Kind)
	assert.Equal(t, "Math.max", call.Disp)
	assert.Equal(t, "Math.max(a, b)", call.Code)
	assert.Len(t, call.Children, 2)

	loop := ann[9]
	require.Len(t, loop, 2)
	assert.Equal(t, expr.KindBoolOp, loop[0].Kind)
	assert.Equal(t, &expr.Node{Kind: expr.KindAttribute, Disp: "xs.length"}, loop[0].Children[0].Children[0])
	assert.Equal(t, "xs.pop", loop[1].Disp)
}

func TestSource_EvaluatesWithoutBindings(t *testing.T) {
	ann, err := Source("main.js", "let r = Math.max(2, 7) - 1;\n")
	require.NoError(t, err)
	var e expr.Evaluator
	got := e.Evaluate(ann[1][0], nil)
	assert.Equal(t, "r assigned to 6", got.Value)
}

func TestSource_ParseError(t *testing.T) {
	_, err := Source("bad.js", "let = ;")
	assert.Error(t, err)
}
