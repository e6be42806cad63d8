// Package query builds parameterized PostgreSQL statements from the filter
// predicates produced by the domain scoping rules.
package query

import (
	"fmt"
	"strings"
)

// SearchQuery accumulates conjunctive WHERE clauses with positional args.
type SearchQuery struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a new SearchQuery for the given table and columns.
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND"). Positional
// placeholders in clause must start at Idx().
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddEqual adds "column = $n".
func (q *SearchQuery) AddEqual(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// AddContains adds a case-insensitive substring match.
func (q *SearchQuery) AddContains(column, value string) {
	q.Add(fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", column, q.idx), escapeLike(value))
}

// AddCompare adds "column op $n" for one of the ordered comparison operators.
func (q *SearchQuery) AddCompare(column, op string, value interface{}) {
	switch op {
	case ">=", "<=", ">", "<":
	default:
		panic(fmt.Sprintf("query: unsupported comparison operator %q", op))
	}
	q.Add(fmt.Sprintf("%s %s $%d", column, op, q.idx), value)
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// Where returns the rendered conjunction, or "1=1" when empty.
func (q *SearchQuery) Where() string {
	if len(q.where) == 0 {
		return "1=1"
	}
	return strings.Join(q.where, " AND ")
}

// Args returns the bound arguments of the WHERE clause.
func (q *SearchQuery) Args() []interface{} {
	return q.args
}

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", q.table, q.Where())
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", q.cols, q.table, q.Where())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input literal inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
