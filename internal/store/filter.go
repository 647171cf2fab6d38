package store

import (
	"strings"
)

// Column names shared by both engines. The sqlite engine uses them directly
// in DDL and WHERE clauses; the badger engine resolves them structurally
// against decoded records.
const (
	colID        = "id"
	colEmail     = "email"
	colAccountID = "account_id"
	colFolderID  = "folder_id"
	colMessageID = "message_id"
	colKey       = "key"
)

type cond struct {
	column string
	value  any
}

// Filter is the closed predicate set of the query contract: a conjunction of
// column equalities. The zero Filter matches every row. Because the store
// owns both the filter type and its two evaluators, there is no opaque
// expression tree to interpret and no guessed column names.
type Filter struct {
	conds []cond
}

// Eq returns a filter matching rows where column equals value.
func Eq(column string, value any) Filter {
	return Filter{conds: []cond{{column: column, value: value}}}
}

// And returns the conjunction of the given filters.
func And(filters ...Filter) Filter {
	var out Filter
	for _, f := range filters {
		out.conds = append(out.conds, f.conds...)
	}
	return out
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.conds) == 0
}

// SQL renders the filter as a WHERE clause with ? placeholders. An empty
// filter renders to the empty string.
func (f Filter) SQL() (string, []any) {
	if f.Empty() {
		return "", nil
	}
	parts := make([]string, len(f.conds))
	args := make([]any, len(f.conds))
	for i, c := range f.conds {
		parts[i] = quoteColumn(c.column) + " = ?"
		args[i] = c.value
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// Matches evaluates the filter against a row exposed through a column
// accessor. A column the accessor does not know degrades that condition to
// match-all rather than failing the whole query; with the closed column set
// this branch is unreachable in normal operation.
func (f Filter) Matches(get func(column string) (any, bool)) bool {
	for _, c := range f.conds {
		v, ok := get(c.column)
		if !ok {
			continue
		}
		if !eqValues(v, c.value) {
			return false
		}
	}
	return true
}

// eqValues compares a row value with a filter literal, normalizing the
// integer widths that show up across the two engines.
func eqValues(a, b any) bool {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
		return false
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// quoteColumn quotes identifiers that collide with SQL keywords.
func quoteColumn(col string) string {
	if col == "references" {
		return `"references"`
	}
	return col
}
