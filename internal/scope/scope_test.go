package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_PushPopKey(t *testing.T) {
	var tr Tracker
	assert.Empty(t, tr.Path())
	assert.Equal(t, "x", tr.Key("x"))

	tr.Push("outer")
	tr.Push("inner")
	assert.Equal(t, []string{"outer", "inner"}, tr.Path())
	assert.Equal(t, "outer:inner:x", tr.Key("x"))
	assert.Equal(t, 2, tr.Depth())

	name, ok := tr.Pop()
	require.True(t, ok)
	assert.Equal(t, "inner", name)
	assert.Equal(t, "outer:x", tr.Key("x"))

	tr.Reset()
	_, ok = tr.Pop()
	assert.False(t, ok, "pop on empty stack")
	assert.Empty(t, tr.Path())
}

func TestTracker_PathIsCopy(t *testing.T) {
	var tr Tracker
	tr.Push("f")
	p := tr.Path()
	p[0] = "mutated"
	assert.Equal(t, []string{"f"}, tr.Path())
}

func TestSplit(t *testing.T) {
	cases := []struct {
		key  string
		path []string
		name string
	}{
		{"x", []string{}, "x"},
		{"f:x", []string{"f"}, "x"},
		{"f:g:total", []string{"f", "g"}, "total"},
	}
	for _, c := range cases {
		path, name := Split(c.key)
		assert.Equal(t, c.path, path, c.key)
		assert.Equal(t, c.name, name, c.key)
		assert.Equal(t, c.key, Join(path, name))
	}
}
