// Package scope tracks the stack of active function scopes during a traced run
// and derives the scope-qualified keys under which variable histories are stored.
package scope

import "strings"

// Sep joins scope names and the variable's own name inside a qualified key.
const Sep = ":"

// Tracker is a stack of active scope names. The zero value is an empty
// stack, which denotes top-level code.
type Tracker struct {
	stack []string
}

// Push enters the scope named name.
func (t *Tracker) Push(name string) {
	t.stack = append(t.stack, name)
}

// Pop leaves the innermost scope and returns its name. Popping an empty
// stack is a no-op that reports false.
func (t *Tracker) Pop() (string, bool) {
	if len(t.stack) == 0 {
		return "", false
	}
	name := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return name, true
}

// Depth reports the number of active scopes.
func (t *Tracker) Depth() int { return len(t.stack) }

// Path returns a copy of the active scope names, outermost first.
func (t *Tracker) Path() []string {
	out := make([]string, len(t.stack))
	copy(out, t.stack)
	return out
}

// Key returns the qualified key for a variable visible in the current scope.
func (t *Tracker) Key(name string) string {
	return Join(t.stack, name)
}

// Reset empties the stack.
func (t *Tracker) Reset() { t.stack = t.stack[:0] }

// Join builds a qualified key from a scope path and a variable name.
func Join(path []string, name string) string {
	if len(path) == 0 {
		return name
	}
	return strings.Join(path, Sep) + Sep + name
}

// Split is the inverse of Join: it returns the scope path and the variable's
// own name. Variable names never contain Sep, so the last segment is the name.
func Split(key string) ([]string, string) {
	parts := strings.Split(key, Sep)
	name := parts[len(parts)-1]
	return parts[:len(parts)-1], name
}
