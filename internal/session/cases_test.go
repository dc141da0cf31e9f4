package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/harness"
	"github.com/hyperifyio/steptrace/internal/trace"
)

func newCaseRunner(t *testing.T) *caseRunner {
	t.Helper()
	rt, err := driver.New(driver.Options{WallMS: 1000})
	require.NoError(t, err)
	return &caseRunner{rt: rt, tr: trace.New(rt.Classifier(), trace.Options{MaxSteps: 100}), outputKB: 1}
}

func TestCaseRunner_RestoresOutputAfterFailure(t *testing.T) {
	c := newCaseRunner(t)
	var outer bytes.Buffer
	release := c.rt.Output().Acquire(&outer)
	defer release()

	_, err := c.Call(context.Background(), "console.log('inner'); missing()")
	require.Error(t, err)

	_, err = c.rt.Output().WriteString("after\n")
	require.NoError(t, err)
	assert.Equal(t, "after\n", outer.String())
}

func TestCaseRunner_NoReturn(t *testing.T) {
	c := newCaseRunner(t)
	c.tr.Target("f")
	_, err := c.Call(context.Background(), "1 + 1")
	assert.ErrorIs(t, err, harness.ErrNoReturn)
}
