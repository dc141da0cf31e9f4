package value

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// namespaces are the built-in objects reported as MODULE.
var namespaces = []string{"Math", "JSON", "Reflect", "console", "Atomics", "Intl"}

const maxDepth = 16

// MaxElements bounds the number of array elements and object properties
// exported for one value. Containers cut short end with an Elided marker.
const MaxElements = 10000

// Elided marks the part of a value that was not exported.
const Elided = "..."

// Classifier converts live runtime values into exported Go values, replacing
// functions, classes, namespaces and class instances with markers.
type Classifier struct {
	objectProto *goja.Object
	namespaces  []*goja.Object
}

// NewClassifier captures the reference objects of rt. Call it after every
// global binding (such as console) has been installed.
func NewClassifier(rt *goja.Runtime) *Classifier {
	c := &Classifier{}
	if ctor, ok := rt.Get("Object").(*goja.Object); ok {
		if p, ok := ctor.Get("prototype").(*goja.Object); ok {
			c.objectProto = p
		}
	}
	for _, name := range namespaces {
		if o, ok := rt.Get(name).(*goja.Object); ok {
			c.namespaces = append(c.namespaces, o)
		}
	}
	return c
}

// Classify returns the exported form of v. The boolean is false when v is
// undefined, which the tracer treats as an unbound name.
func (c *Classifier) Classify(v goja.Value) (any, bool) {
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	x := &exporter{Classifier: c, seen: map[*goja.Object]bool{}, left: MaxElements}
	return x.export(v, 0), true
}

// exporter is the state of one Classify call. left counts the container
// entries that may still be exported; array lengths come from the program
// and are not trusted to size anything.
type exporter struct {
	*Classifier
	seen map[*goja.Object]bool
	left int
}

func (c *exporter) export(v goja.Value, depth int) any {
	if goja.IsNull(v) {
		return nil
	}
	if goja.IsUndefined(v) {
		return Marker("undefined")
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		switch x := v.Export().(type) {
		case int64, float64, string, bool:
			return x
		}
		return Marker(v.String())
	}
	if _, ok := goja.AssertFunction(obj); ok {
		if strings.HasPrefix(strings.TrimSpace(obj.String()), "class") {
			return Marker(Class)
		}
		return Marker(Function)
	}
	for _, ns := range c.namespaces {
		if obj.SameAs(ns) {
			return Marker(Module)
		}
	}
	if c.seen[obj] {
		return Marker("[Circular]")
	}
	if depth >= maxDepth {
		return Marker(Elided)
	}
	c.seen[obj] = true
	defer delete(c.seen, obj)

	switch obj.ClassName() {
	case "Array":
		n := obj.Get("length").ToInteger()
		var out []any
		for i := int64(0); i < n; i++ {
			if c.left <= 0 {
				out = append(out, Marker(Elided))
				break
			}
			c.left--
			e := obj.Get(strconv.FormatInt(i, 10))
			if e == nil {
				e = goja.Undefined()
			}
			out = append(out, c.export(e, depth+1))
		}
		if out == nil {
			out = []any{}
		}
		return out
	case "Object":
		proto := obj.Prototype()
		if proto != nil && c.objectProto != nil && !proto.SameAs(c.objectProto) {
			return Marker(Instance)
		}
		out := make(map[string]any)
		for _, k := range obj.Keys() {
			if c.left <= 0 {
				out[Elided] = Marker(Elided)
				break
			}
			c.left--
			out[k] = c.export(obj.Get(k), depth+1)
		}
		return out
	case "Error", "Date", "RegExp", "String", "Number", "Boolean":
		return Marker(obj.String())
	}
	return Marker(Instance)
}
