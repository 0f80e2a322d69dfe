package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/ir"
)

// ValidField reports whether name may be used in a query.
func ValidField(name string) bool {
	return ir.ValidFieldName(name)
}

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks a query before any backend sees it: field names against
// the allow-list, operators, set operands and the limit.
//
// Returns nil or a *ValidationError. Validate is a pure function.
func Validate(q Query) error {
	v := &validator{}
	for i, c := range q.Filters {
		v.validateCondition(fmt.Sprintf("filters[%d]", i), c)
	}
	for i, s := range q.Sorting {
		where := fmt.Sprintf("sorting[%d]", i)
		v.validateField(where, s.Field)
		if s.Direction != Ascending && s.Direction != Descending {
			v.addProblem("%s: invalid direction %d", where, s.Direction)
		}
	}
	for i, group := range q.Pagination {
		for j, c := range group {
			v.validateCondition(fmt.Sprintf("pagination[%d][%d]", i, j), c)
		}
	}
	if q.Limit < 0 {
		v.addProblem("limit: must not be negative, got %d", q.Limit)
	}
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateField(where, field string) {
	if !ValidField(field) {
		v.addProblem("%s: invalid field name %q", where, field)
	}
}

func (v *validator) validateCondition(where string, c Condition) {
	v.validateField(where, c.Field)
	if !c.Operator.Valid() {
		v.addProblem("%s: unknown operator %q", where, c.Operator)
		return
	}
	if c.Operator.IsSet() {
		if _, ok := c.Value.([]any); !ok {
			v.addProblem("%s: operator %q needs a list value, got %T", where, c.Operator, c.Value)
		}
	}
	if IsAbsent(c.Value) && !c.Operator.IsSortOrder() {
		v.addProblem("%s: operator %q cannot take an absent operand", where, c.Operator)
	}
}
