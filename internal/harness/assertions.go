package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/ir"
)

// checkExpect compares a step outcome with its expect clause and returns
// one message per mismatch. Without an expect clause any success passes.
func checkExpect(step Step, event TraceEvent, err error) []string {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if exp.Error != "" {
		want := exp.Error
		if exp.Field != "" {
			want += " " + exp.Field
		}
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, got success", want)}
		}
		if event.Err != want && !(exp.Field == "" && strings.HasPrefix(event.Err, want+" ")) {
			return []string{fmt.Sprintf("expected error %s, got %s (%v)", want, event.Err, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var failures []string
	if exp.Record != nil {
		failures = append(failures, matchRecord(exp.Record, event.Record)...)
	}
	for _, field := range exp.Absent {
		if _, ok := event.Record[field]; ok {
			failures = append(failures, fmt.Sprintf("field %q: expected absent, got %v", field, event.Record[field]))
		}
	}
	if exp.IDs != nil {
		got := make([]string, 0, len(event.Records))
		for _, rec := range event.Records {
			got = append(got, fmt.Sprint(rec[event.resource.IDField]))
		}
		if strings.Join(got, ",") != strings.Join(exp.IDs, ",") || len(got) != len(exp.IDs) {
			failures = append(failures, fmt.Sprintf("ids: expected %v, got %v", exp.IDs, got))
		}
	}
	if exp.Total != nil && *exp.Total != event.Total {
		failures = append(failures, fmt.Sprintf("total: expected %d, got %d", *exp.Total, event.Total))
	}
	if exp.Timestamp != nil && *exp.Timestamp != event.Time {
		failures = append(failures, fmt.Sprintf("timestamp: expected %d, got %d", *exp.Timestamp, event.Time))
	}
	return failures
}

// matchRecord checks that every expected field is present in actual with
// an equal value (subset semantics). Values are compared after a JSON round
// trip, so 5 and 5.0 are equal.
func matchRecord(expected map[string]any, actual ir.Record) []string {
	want, err := ir.Normalize(expected)
	if err != nil {
		return []string{fmt.Sprintf("expected record: %v", err)}
	}

	var failures []string
	for field, w := range want {
		got, ok := actual[field]
		if !ok {
			failures = append(failures, fmt.Sprintf("field %q: expected %v, missing", field, w))
			continue
		}
		if ir.CanonicalText(got) != ir.CanonicalText(w) {
			failures = append(failures, fmt.Sprintf("field %q: expected %s, got %s", field, ir.CanonicalText(w), ir.CanonicalText(got)))
		}
	}
	return failures
}
