package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/ir"
)

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Op     string `json:"op"`
	Tenant string `json:"tenant,omitempty"` // set when the step overrides the tenant
	ID     string `json:"id,omitempty"`

	Err     string      `json:"error,omitempty"` // error kind, "unicity <field>" for conflicts
	Record  ir.Record   `json:"record,omitempty"`
	Records []ir.Record `json:"records,omitempty"`
	Total   int         `json:"total,omitempty"`
	Time    int64       `json:"time,omitempty"` // timestamp result, or the new clock

	resource *ir.Resource
}

// String renders the event as one golden line.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", e.Seq, e.Op)
	if e.Tenant != "" {
		fmt.Fprintf(&b, " @%s", e.Tenant)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " %s", e.ID)
	}
	b.WriteString(" -> ")

	switch {
	case e.Err != "":
		b.WriteString("error " + e.Err)
	case e.Op == OpGetAll:
		fmt.Fprintf(&b, "total=%d [", e.Total)
		for i, rec := range e.Records {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprint(&b, rec[e.resource.IDField])
			if _, ok := rec[e.resource.DeletedField]; ok {
				b.WriteString("(deleted)")
			}
		}
		b.WriteByte(']')
	case e.Op == OpTimestamp || e.Op == OpClock:
		fmt.Fprintf(&b, "%d", e.Time)
	case e.Record != nil:
		data, err := ir.MarshalRecord(e.Record)
		if err != nil {
			fmt.Fprintf(&b, "%v", e.Record)
		} else {
			b.Write(data)
		}
	default:
		b.WriteString("ok")
	}
	return b.String()
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses match.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// FormatTrace renders the trace, one line per step.
func (r *Result) FormatTrace() string {
	var b strings.Builder
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
