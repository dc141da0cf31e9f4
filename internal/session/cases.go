package session

import (
	"context"
	"fmt"

	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/harness"
	"github.com/hyperifyio/steptrace/internal/instrument"
	"github.com/hyperifyio/steptrace/internal/sandbox"
	"github.com/hyperifyio/steptrace/internal/trace"
	"github.com/hyperifyio/steptrace/internal/value"
)

// caseRunner runs synthesized calls in the runtime that already holds the
// declarations of the narration run. Each call starts from a fresh scope
// stack, step counter and history. Error records raised while testing are
// not copied into the session result.
type caseRunner struct {
	rt       *driver.Runtime
	tr       *trace.Tracer
	outputKB int
	n        int
}

func (c *caseRunner) Call(ctx context.Context, call string) (harness.Outcome, error) {
	c.n++
	prog, err := driver.Compile(fmt.Sprintf("test%d.js", c.n), call, instrument.Options{})
	if err != nil {
		return harness.Outcome{}, err
	}
	c.tr.Reset()
	buf := sandbox.NewBoundedBuffer(c.outputKB)
	release := c.rt.Output().Acquire(buf)
	defer release()
	_, err = c.rt.Run(ctx, prog, c.tr)
	release()
	c.tr.Finish()
	if err != nil {
		return harness.Outcome{}, err
	}
	v, ok := c.tr.Returned()
	if !ok {
		return harness.Outcome{}, harness.ErrNoReturn
	}
	x, ok := c.rt.Classifier().Classify(v)
	if !ok {
		x = value.Marker("undefined")
	}
	return harness.Outcome{
		Value:  x,
		Steps:  c.tr.StepCount(),
		Vars:   c.tr.VarCount(),
		Output: buf.String(),
	}, nil
}
