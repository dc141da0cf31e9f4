// Package trace turns driver hook events into the step log, variable
// histories and error records of a tracing session.
package trace

import (
	"github.com/hyperifyio/steptrace/internal/driver"
	"github.com/hyperifyio/steptrace/internal/expr"
)

// IssueError is the issue type of every ErrorRecord.
const IssueError = "error"

// Variable is one entry of a step's active-variable snapshot.
type Variable struct {
	ID    string `json:"var_id"`
	Name  string `json:"var_name"`
	Value string `json:"var_value"`
	raw   any
}

// ExecutionStep is one recorded unit of execution progress.
type ExecutionStep struct {
	Step  int          `json:"step"`
	Line  int          `json:"line_num"`
	Kind  driver.Kind  `json:"type"`
	Scope []string     `json:"scope"`
	Vars  []Variable   `json:"active_vars"`
	Extra []*expr.Node `json:"extra_line_data,omitempty"`
}

// ErrorRecord is a problem reported against a span of the source.
type ErrorRecord struct {
	IssueType string `json:"issue_type"`
	Text      string `json:"text"`
	StartLine int    `json:"s_l"`
	StartCol  int    `json:"s_c"`
	EndLine   int    `json:"e_l"`
	EndCol    int    `json:"e_c"`
	Repl      string `json:"repl,omitempty"`
}

// LineError builds an ErrorRecord covering line from column start on.
func LineError(text string, line, start int) ErrorRecord {
	return ErrorRecord{
		IssueType: IssueError,
		Text:      text,
		StartLine: line,
		StartCol:  start,
		EndLine:   line,
		EndCol:    999,
	}
}

// Log is the ordered record of steps of one run.
type Log struct {
	steps []ExecutionStep
}

// Append adds s to the log.
func (l *Log) Append(s ExecutionStep) { l.steps = append(l.steps, s) }

// Steps returns the recorded steps.
func (l *Log) Steps() []ExecutionStep { return l.steps }

// Lines returns the line number of every step.
func (l *Log) Lines() []int {
	out := make([]int, len(l.steps))
	for i, s := range l.steps {
		out[i] = s.Line
	}
	return out
}

// Len returns the number of steps.
func (l *Log) Len() int { return len(l.steps) }

// Reset empties the log.
func (l *Log) Reset() { l.steps = nil }
