package sandbox

import (
	"io"
	"sync"
)

// Capture is a redirectable output sink. Target programs write to it for the
// lifetime of a session; each pipeline stage acquires it with its own
// destination and releases it when done.
type Capture struct {
	mu sync.Mutex
	w  io.Writer
}

// Acquire routes writes to w until the returned release func is called.
// Release restores the previous destination and is safe to call more than
// once, so it can be deferred and also called early.
func (c *Capture) Acquire(w io.Writer) (release func()) {
	c.mu.Lock()
	prev := c.w
	c.w = w
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.w = prev
			c.mu.Unlock()
		})
	}
}

// Write forwards p to the current destination. Without one, output is
// discarded.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	w := c.w
	c.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}

// WriteString is a convenience for host bindings that produce strings.
func (c *Capture) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}
