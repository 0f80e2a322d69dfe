package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
)

// Table names shared with the sqlite backend schema.
const (
	RecordsTable    = "records"
	TombstonesTable = "tombstones"
)

// Compiler compiles queries over one resource to parameterized SQL for
// SQLite. Records live in a JSON "data" column; reserved fields live in
// their own columns.
//
// CRITICAL: All values are parameterized (never interpolated). Field names
// reach the SQL only as JSON path parameters, after the allow-list check.
type Compiler struct {
	res *ir.Resource
}

// NewCompiler creates a compiler for resource r.
func NewCompiler(r *ir.Resource) *Compiler {
	return &Compiler{res: r}
}

// rankCase maps json_type() onto the kind ranks of ir.Kind. A missing path
// yields NULL and falls through to ELSE (absent).
const rankCase = "CASE json_type(data, ?)" +
	" WHEN 'null' THEN 1" +
	" WHEN 'true' THEN 2 WHEN 'false' THEN 2" +
	" WHEN 'integer' THEN 3 WHEN 'real' THEN 3" +
	" WHEN 'text' THEN 4" +
	" WHEN 'array' THEN 5" +
	" WHEN 'object' THEN 6" +
	" ELSE 0 END"

// fragment is a piece of SQL with the params of its placeholders, in order.
type fragment struct {
	sql    string
	params []any
}

// builder accumulates SQL text and params side by side.
type builder struct {
	buf    strings.Builder
	params []any
}

func (b *builder) write(sql string, params ...any) {
	b.buf.WriteString(sql)
	b.params = append(b.params, params...)
}

func (b *builder) add(f fragment) {
	b.write(f.sql, f.params...)
}

// CompileGetAll compiles a full get_all request into a single statement.
//
// Every result row is (count, id, last_modified, deleted, data). count is
// the number of live records matching the filters. When the page is empty
// the statement still yields one row carrying the count, with a NULL id.
//
// MANDATORY: The ORDER BY always ends on last_modified so that the order
// is total.
func (c *Compiler) CompileGetAll(tenant string, q queryir.Query, maxFetch int) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	var b builder

	b.write("WITH live AS (\n")
	b.write("  SELECT id, last_modified, 0 AS deleted, data\n")
	b.write("    FROM " + RecordsTable + "\n")
	b.write("   WHERE tenant_id = ? AND resource_name = ?\n", tenant, c.res.Name)
	b.write("), filtered_live AS (\n")
	liveFilter, err := c.compileFilter(q.Filters)
	if err != nil {
		return "", nil, fmt.Errorf("compile filters: %w", err)
	}
	b.write("  SELECT * FROM live WHERE ")
	b.add(liveFilter)
	b.write("\n), total AS (\n")
	b.write("  SELECT COUNT(*) AS count FROM filtered_live\n")

	if q.IncludeDeleted {
		b.write("), dead AS (\n")
		b.write("  SELECT id, last_modified, 1 AS deleted, '{}' AS data\n")
		b.write("    FROM " + TombstonesTable + "\n")
		b.write("   WHERE tenant_id = ? AND resource_name = ?\n", tenant, c.res.Name)
		b.write("), filtered_dead AS (\n")
		deadFilter, err := c.compileFilter(q.Filters)
		if err != nil {
			return "", nil, fmt.Errorf("compile filters: %w", err)
		}
		b.write("  SELECT * FROM dead WHERE ")
		b.add(deadFilter)
		b.write("\n), candidates AS (\n")
		b.write("  SELECT * FROM filtered_live\n")
		b.write("  UNION ALL\n")
		b.write("  SELECT * FROM filtered_dead\n")
	} else {
		b.write("), candidates AS (\n")
		b.write("  SELECT * FROM filtered_live\n")
	}

	pagination, err := c.compileRules(q.Pagination)
	if err != nil {
		return "", nil, fmt.Errorf("compile pagination: %w", err)
	}
	b.write("), page AS (\n")
	b.write("  SELECT * FROM candidates WHERE ")
	b.add(pagination)
	b.write("\n)\n")

	b.write("SELECT total.count, page.id, page.last_modified, page.deleted, page.data\n")
	b.write("  FROM total LEFT JOIN page ON 1 = 1\n")
	b.write(" ORDER BY ")
	b.add(c.compileSorting(q.Sorting))
	b.write("\n")

	limit := queryir.EffectiveLimit(q.Limit, maxFetch)
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	b.write(" LIMIT ?", limit)

	return b.buf.String(), b.params, nil
}

// CompileConflict compiles the lookup of a live record, other than
// excludingID, matching cond. The statement yields at most one
// (id, last_modified, data) row.
func (c *Compiler) CompileConflict(tenant, excludingID string, cond queryir.Condition) (string, []any, error) {
	where, err := c.compileCondition(cond)
	if err != nil {
		return "", nil, err
	}

	var b builder
	b.write("SELECT id, last_modified, data\n")
	b.write("  FROM (SELECT id, last_modified, 0 AS deleted, data\n")
	b.write("          FROM " + RecordsTable + "\n")
	b.write("         WHERE tenant_id = ? AND resource_name = ? AND id <> ?)\n", tenant, c.res.Name, excludingID)
	b.write(" WHERE ")
	b.add(where)
	b.write("\n LIMIT 1")
	return b.buf.String(), b.params, nil
}

// compileFilter compiles a conjunction. An empty filter is always true.
func (c *Compiler) compileFilter(f queryir.Filter) (fragment, error) {
	if len(f) == 0 {
		return fragment{sql: "1"}, nil
	}
	parts := make([]string, 0, len(f))
	var params []any
	for _, cond := range f {
		frag, err := c.compileCondition(cond)
		if err != nil {
			return fragment{}, err
		}
		parts = append(parts, frag.sql)
		params = append(params, frag.params...)
	}
	return fragment{sql: strings.Join(parts, " AND "), params: params}, nil
}

// compileRules compiles rule-groups into a disjunction. No rules is
// always true.
func (c *Compiler) compileRules(rules queryir.Rules) (fragment, error) {
	if len(rules) == 0 {
		return fragment{sql: "1"}, nil
	}
	parts := make([]string, 0, len(rules))
	var params []any
	for _, group := range rules {
		frag, err := c.compileFilter(group)
		if err != nil {
			return fragment{}, err
		}
		parts = append(parts, "("+frag.sql+")")
		params = append(params, frag.params...)
	}
	return fragment{sql: strings.Join(parts, " OR "), params: params}, nil
}

// field is the SQL view of one field: its kind rank and its value.
type field struct {
	rank  fragment
	value fragment
}

// fieldOf resolves a non-marker field to SQL expressions. Reserved fields
// are plain columns of a known kind.
func (c *Compiler) fieldOf(name string) field {
	switch name {
	case c.res.IDField:
		return field{
			rank:  fragment{sql: fmt.Sprint(int(ir.KindString))},
			value: fragment{sql: "id"},
		}
	case c.res.ModifiedField:
		return field{
			rank:  fragment{sql: fmt.Sprint(int(ir.KindNumber))},
			value: fragment{sql: "last_modified"},
		}
	}
	path := jsonPath(name)
	return field{
		rank:  fragment{sql: rankCase, params: []any{path}},
		value: fragment{sql: "json_extract(data, ?)", params: []any{path}},
	}
}

// jsonPath quotes a field name as a single JSON path member. Names are
// allow-listed, so they never contain quotes.
func jsonPath(name string) string {
	return `$."` + name + `"`
}

func (c *Compiler) compileCondition(cond queryir.Condition) (fragment, error) {
	if !queryir.ValidField(cond.Field) {
		return fragment{}, fmt.Errorf("invalid field name %q", cond.Field)
	}
	if cond.Field == c.res.DeletedField {
		return c.compileMarker(cond), nil
	}

	f := c.fieldOf(cond.Field)
	switch cond.Operator {
	case queryir.EQ:
		return f.equals(cond.Value)
	case queryir.NOT:
		eq, err := f.equals(cond.Value)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: "NOT " + eq.sql, params: eq.params}, nil
	case queryir.IN, queryir.EXCLUDE:
		values, ok := cond.Value.([]any)
		if !ok {
			return fragment{}, fmt.Errorf("operator %q needs a list value, got %T", cond.Operator, cond.Value)
		}
		in, err := f.in(values)
		if err != nil {
			return fragment{}, err
		}
		if cond.Operator == queryir.EXCLUDE {
			in.sql = "NOT " + in.sql
		}
		return in, nil
	case queryir.GT, queryir.MIN, queryir.LT, queryir.MAX:
		return f.ordered(cond.Operator, cond.Value)
	case queryir.AFTER, queryir.BEFORE, queryir.SAME:
		return f.sortOrder(cond.Operator, cond.Value)
	default:
		return fragment{}, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

// compileMarker resolves a condition on the tombstone marker at compile
// time: the marker has one known value on tombstones and is absent on live
// rows, so the condition reduces to a test on the deleted column.
func (c *Compiler) compileMarker(cond queryir.Condition) fragment {
	onDead := queryir.Compare(c.res.DeletedValue, true, cond.Operator, cond.Value)
	onLive := queryir.Compare(nil, false, cond.Operator, cond.Value)
	switch {
	case onDead && onLive:
		return fragment{sql: "1"}
	case onDead:
		return fragment{sql: "deleted = 1"}
	case onLive:
		return fragment{sql: "deleted = 0"}
	default:
		return fragment{sql: "0"}
	}
}

// equals matches values of the operand's kind that are equal to it.
// Rank mismatches short-circuit the AND, so the result is never NULL.
func (f field) equals(operand any) (fragment, error) {
	kind := ir.KindOf(operand, true)
	if kind == ir.KindNull {
		return fragment{
			sql:    fmt.Sprintf("(%s = %d)", f.rank.sql, int(kind)),
			params: f.rank.params,
		}, nil
	}
	param, err := bindValue(operand)
	if err != nil {
		return fragment{}, err
	}
	return fragment{
		sql:    fmt.Sprintf("(%s = %d AND %s = ?)", f.rank.sql, int(kind), f.value.sql),
		params: concat(f.rank.params, f.value.params, []any{param}),
	}, nil
}

// in is a disjunction of equalities. An empty set matches nothing.
func (f field) in(values []any) (fragment, error) {
	if len(values) == 0 {
		return fragment{sql: "(0)"}, nil
	}
	parts := make([]string, 0, len(values))
	var params []any
	for _, v := range values {
		eq, err := f.equals(v)
		if err != nil {
			return fragment{}, err
		}
		parts = append(parts, eq.sql)
		params = append(params, eq.params...)
	}
	return fragment{sql: "(" + strings.Join(parts, " OR ") + ")", params: params}, nil
}

var comparators = map[queryir.Operator]string{
	queryir.GT:  ">",
	queryir.MIN: ">=",
	queryir.LT:  "<",
	queryir.MAX: "<=",
}

// ordered compares within the operand's kind only. Null has a single
// value: it is never strictly greater or smaller than itself.
func (f field) ordered(op queryir.Operator, operand any) (fragment, error) {
	kind := ir.KindOf(operand, true)
	if kind == ir.KindNull {
		if op == queryir.GT || op == queryir.LT {
			return fragment{sql: "0"}, nil
		}
		return fragment{
			sql:    fmt.Sprintf("(%s = %d)", f.rank.sql, int(kind)),
			params: f.rank.params,
		}, nil
	}
	param, err := bindValue(operand)
	if err != nil {
		return fragment{}, err
	}
	return fragment{
		sql:    fmt.Sprintf("(%s = %d AND %s %s ?)", f.rank.sql, int(kind), f.value.sql, comparators[op]),
		params: concat(f.rank.params, f.value.params, []any{param}),
	}, nil
}

// sortOrder compares in the ORDER BY order: kind rank first, then the
// value within the operand's kind. Absent and null carry no value.
func (f field) sortOrder(op queryir.Operator, operand any) (fragment, error) {
	v, present := queryir.Operand(operand)
	kind := ir.KindOf(v, present)

	rankCmp := ">"
	if op == queryir.BEFORE {
		rankCmp = "<"
	}
	if kind == ir.KindAbsent || kind == ir.KindNull {
		if op == queryir.SAME {
			return fragment{
				sql:    fmt.Sprintf("(%s = %d)", f.rank.sql, int(kind)),
				params: f.rank.params,
			}, nil
		}
		return fragment{
			sql:    fmt.Sprintf("(%s %s %d)", f.rank.sql, rankCmp, int(kind)),
			params: f.rank.params,
		}, nil
	}

	param, err := bindValue(v)
	if err != nil {
		return fragment{}, err
	}
	if op == queryir.SAME {
		return fragment{
			sql:    fmt.Sprintf("(%s = %d AND %s = ?)", f.rank.sql, int(kind), f.value.sql),
			params: concat(f.rank.params, f.value.params, []any{param}),
		}, nil
	}
	return fragment{
		sql: fmt.Sprintf("(%s %s %d OR (%s = %d AND %s COLLATE BINARY %s ?))",
			f.rank.sql, rankCmp, int(kind), f.rank.sql, int(kind), f.value.sql, rankCmp),
		params: concat(f.rank.params, f.rank.params, f.value.params, []any{param}),
	}, nil
}

// compileSorting orders by kind rank, then by value, for every key of the
// effective sorting.
func (c *Compiler) compileSorting(sorting []queryir.Sort) fragment {
	var (
		parts  []string
		params []any
	)
	for _, s := range queryir.EffectiveSorting(c.res, sorting) {
		dir := "ASC"
		if s.Direction == queryir.Descending {
			dir = "DESC"
		}
		switch s.Field {
		case c.res.DeletedField:
			parts = append(parts, "CASE WHEN deleted = 1 THEN 0 ELSE 1 END "+dir)
		case c.res.IDField:
			parts = append(parts, "id COLLATE BINARY "+dir)
		case c.res.ModifiedField:
			parts = append(parts, "last_modified "+dir)
		default:
			f := c.fieldOf(s.Field)
			parts = append(parts, f.rank.sql+" "+dir, f.value.sql+" COLLATE BINARY "+dir)
			params = append(params, f.rank.params...)
			params = append(params, f.value.params...)
		}
	}
	return fragment{sql: strings.Join(parts, ", "), params: params}
}

// bindValue converts an operand to the SQLite value json_extract yields
// for the same JSON value: 1/0 for booleans, REAL for numbers, canonical
// JSON text for arrays and objects.
func bindValue(v any) (any, error) {
	switch ir.KindOf(v, true) {
	case ir.KindBool:
		if v.(bool) {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.KindNumber:
		f, _ := ir.ToFloat(v)
		return f, nil
	case ir.KindString:
		return v, nil
	case ir.KindNull:
		return nil, nil
	default:
		text := ir.CanonicalText(v)
		if text == "" {
			return nil, fmt.Errorf("unsupported value for SQL parameter: %T", v)
		}
		return text, nil
	}
}

func concat(parts ...[]any) []any {
	var out []any
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
