package driver

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/hyperifyio/steptrace/internal/value"
)

// bindConsole routes console.* and print to the capture sink.
func (r *Runtime) bindConsole() error {
	console := r.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, r.print); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}
	return r.vm.Set("print", r.print)
}

func (r *Runtime) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, r.format(arg))
	}
	// output past the cap is dropped; the buffer records the truncation
	_, _ = r.out.WriteString(strings.Join(parts, " ") + "\n") //nolint:errcheck
	return goja.Undefined()
}

func (r *Runtime) format(v goja.Value) string {
	if goja.IsUndefined(v) {
		return "undefined"
	}
	x, _ := r.classifier.Classify(v)
	return value.Display(x)
}
