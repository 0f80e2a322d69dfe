package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recstore/internal/config"
	"github.com/roach88/recstore/internal/queryir"
)

// Scenario defines a storage scenario.
// A scenario runs a sequence of store operations on a fresh store and
// checks each outcome against its expect clause.
type Scenario struct {
	// Name uniquely identifies this scenario (and its golden file).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Resource declares the collection, as in the config file.
	Resource config.ResourceConfig `yaml:"resource"`

	// Tenant is the default tenant of every step.
	Tenant string `yaml:"tenant"`

	// Clock is the frozen wall-clock time (ms) the scenario starts at.
	Clock int64 `yaml:"clock"`

	// IDs are handed out, in order, to records created without an id.
	IDs []string `yaml:"ids,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Step is one store operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Tenant overrides the scenario tenant for this step.
	Tenant string `yaml:"tenant,omitempty"`

	// ID is the record id for update, delete and get.
	ID string `yaml:"id,omitempty"`

	// Record is the payload of create and update.
	Record map[string]any `yaml:"record,omitempty"`

	// Query is the get_all request (nil means an empty query).
	Query *QuerySpec `yaml:"query,omitempty"`

	// At is the new wall-clock time for the clock op.
	At int64 `yaml:"at,omitempty"`

	// Expect validates the outcome. If nil, any success is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// QuerySpec is the YAML form of queryir.Query.
type QuerySpec struct {
	Filters        []ConditionSpec   `yaml:"filters,omitempty"`
	Sort           []string          `yaml:"sort,omitempty"` // field, "-field" for descending
	Pagination     [][]ConditionSpec `yaml:"pagination,omitempty"`
	Limit          int               `yaml:"limit,omitempty"`
	IncludeDeleted bool              `yaml:"include_deleted,omitempty"`
}

// ConditionSpec is the YAML form of queryir.Condition.
type ConditionSpec struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error kind; empty means success.
	Error string `yaml:"error,omitempty"`

	// Field is the conflicting field of a unicity error.
	Field string `yaml:"field,omitempty"`

	// Record is a subset match on the returned record.
	Record map[string]any `yaml:"record,omitempty"`

	// Absent lists fields the returned record must not have.
	Absent []string `yaml:"absent,omitempty"`

	// IDs are the ids get_all must return, in order.
	IDs []string `yaml:"ids,omitempty"`

	// Total is the count get_all must report.
	Total *int `yaml:"total,omitempty"`

	// Timestamp is the value timestamp must return.
	Timestamp *int64 `yaml:"timestamp,omitempty"`
}

// Step operations.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpGet       = "get"
	OpGetAll    = "get_all"
	OpTimestamp = "timestamp"
	OpFlush     = "flush"
	OpClock     = "clock"
)

// Error kinds.
const (
	ErrNotFound     = "not_found"
	ErrUnicity      = "unicity"
	ErrInvalidQuery = "invalid_query"
	ErrUnavailable  = "unavailable"
	ErrRejected     = "rejected"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if err := s.Resource.Resource().Validate(); err != nil {
		return err
	}

	if s.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpCreate:
	case OpUpdate, OpDelete, OpGet:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", index, st.Op)
		}
	case OpGetAll:
		if st.Query != nil {
			if _, err := st.Query.Query(); err != nil {
				return fmt.Errorf("steps[%d]: %w", index, err)
			}
		}
	case OpTimestamp, OpFlush, OpClock:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.Expect == nil {
		return nil
	}
	switch st.Expect.Error {
	case "", ErrNotFound, ErrInvalidQuery, ErrUnavailable, ErrRejected:
		if st.Expect.Field != "" {
			return fmt.Errorf("steps[%d].expect: field only applies to unicity errors", index)
		}
	case ErrUnicity:
	default:
		return fmt.Errorf("steps[%d].expect: unknown error kind %q", index, st.Expect.Error)
	}
	return nil
}

// Query converts the step query into a queryir.Query. Operators are checked here; fields
// and operands are left to the store.
func (q *QuerySpec) Query() (queryir.Query, error) {
	query := queryir.Query{
		Limit:          q.Limit,
		IncludeDeleted: q.IncludeDeleted,
	}

	filter, err := convertConditions(q.Filters)
	if err != nil {
		return queryir.Query{}, err
	}
	query.Filters = filter

	for _, group := range q.Pagination {
		g, err := convertConditions(group)
		if err != nil {
			return queryir.Query{}, err
		}
		query.Pagination = append(query.Pagination, g)
	}

	for _, s := range q.Sort {
		dir := queryir.Ascending
		if len(s) > 0 && s[0] == '-' {
			s, dir = s[1:], queryir.Descending
		}
		query.Sorting = append(query.Sorting, queryir.Sort{Field: s, Direction: dir})
	}
	return query, nil
}

func convertConditions(specs []ConditionSpec) (queryir.Filter, error) {
	var filter queryir.Filter
	for _, c := range specs {
		op := queryir.Operator(c.Op)
		if !op.Valid() {
			return nil, fmt.Errorf("unknown operator %q", c.Op)
		}
		filter = append(filter, queryir.Condition{Field: c.Field, Value: c.Value, Operator: op})
	}
	return filter, nil
}
