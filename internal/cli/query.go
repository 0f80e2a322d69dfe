package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/queryir"
)

// filterPrefixes maps a field prefix in --filter to its operator. A filter
// without a known prefix is an equality test.
var filterPrefixes = []struct {
	prefix string
	op     queryir.Operator
}{
	{"not_", queryir.NOT},
	{"gt_", queryir.GT},
	{"min_", queryir.MIN},
	{"lt_", queryir.LT},
	{"max_", queryir.MAX},
	{"in_", queryir.IN},
	{"exclude_", queryir.EXCLUDE},
}

// parseFilter parses "[op_]field=value". Values are JSON when they parse
// as JSON and plain strings otherwise; in_ and exclude_ take a
// comma-separated list.
func parseFilter(s string) (queryir.Condition, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return queryir.Condition{}, fmt.Errorf("filter %q: want [op_]field=value", s)
	}

	cond := queryir.Condition{Field: key, Operator: queryir.EQ}
	for _, p := range filterPrefixes {
		if field, found := strings.CutPrefix(key, p.prefix); found && field != "" {
			cond.Field = field
			cond.Operator = p.op
			break
		}
	}

	if cond.Operator.IsSet() {
		values := []any{}
		if raw != "" {
			for _, part := range strings.Split(raw, ",") {
				values = append(values, parseValue(part))
			}
		}
		cond.Value = values
		return cond, nil
	}
	cond.Value = parseValue(raw)
	return cond, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// parseSort parses "field,-other": a leading '-' sorts descending.
func parseSort(s string) []queryir.Sort {
	var sorting []queryir.Sort
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := queryir.Ascending
		if field, found := strings.CutPrefix(part, "-"); found {
			part, dir = field, queryir.Descending
		}
		sorting = append(sorting, queryir.Sort{Field: part, Direction: dir})
	}
	return sorting
}
