package board

import (
	"fmt"
	"strings"
)

// TestResult is the ordered record of step outcomes for one board.
type TestResult struct {
	names   []string
	results map[string]bool
	passing bool
}

func NewTestResult() *TestResult {
	return &TestResult{results: make(map[string]bool), passing: true}
}

// Process records the outcome of a step. Passing only ever goes from true to
// false. Recording a name twice keeps its first position.
func (r *TestResult) Process(name string, ok bool) {
	if _, seen := r.results[name]; !seen {
		r.names = append(r.names, name)
	}
	r.results[name] = ok
	if !ok {
		r.passing = false
	}
}

// Passing is the AND of every recorded outcome.
func (r *TestResult) Passing() bool { return r.passing }

// Names returns the step names in recording order.
func (r *TestResult) Names() []string {
	return append([]string(nil), r.names...)
}

// Get returns a step outcome and whether it was recorded.
func (r *TestResult) Get(name string) (ok, recorded bool) {
	ok, recorded = r.results[name]
	return ok, recorded
}

// Len returns the number of recorded steps.
func (r *TestResult) Len() int { return len(r.names) }

func (r *TestResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Passing: %v\n", r.passing)
	for _, name := range r.names {
		status := "failed"
		if r.results[name] {
			status = "passed"
		}
		fmt.Fprintf(&b, "\t%s: %s\n", name, status)
	}
	return b.String()
}
