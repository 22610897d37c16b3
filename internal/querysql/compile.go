// Package querysql compiles queryir predicates to parameterized SQLite SQL
// over the facts table.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/queryir"
)

// Columns is the column list every fact read selects, in scan order.
const Columns = "id, event_id, what, repository, issue, run_id, attrs, created_at"

// promoted maps attribute names stored in their own column.
var promoted = map[string]bool{
	fact.ColID:         true,
	fact.ColEventID:    true,
	fact.ColWhat:       true,
	fact.ColRepository: true,
	fact.ColIssue:      true,
}

// Compile converts a Select to a full SELECT statement.
// Returns (sql, params, error) tuple.
//
// MANDATORY: every query ends with "id ASC" so results are deterministic.
// MANDATORY: all values are parameterized, never interpolated.
func Compile(q queryir.Select) (string, []any, error) {
	where, params, err := CompileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(Columns)
	b.WriteString(" FROM facts WHERE ")
	b.WriteString(where)
	b.WriteString(" ORDER BY ")
	for _, o := range q.Order {
		if err := queryir.ValidateAttr(o.Attr); err != nil {
			return "", nil, fmt.Errorf("order: %w", err)
		}
		if o.Attr == fact.ColID {
			continue
		}
		b.WriteString(attrExpr(o.Attr))
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
		b.WriteString(", ")
	}
	b.WriteString(idOrder(q.Order))
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String(), params, nil
}

// CompileWhere converts a predicate to a WHERE fragment without the keyword.
// A nil predicate compiles to "1 = 1".
func CompileWhere(p queryir.Predicate) (string, []any, error) {
	if err := queryir.Validate(p); err != nil {
		return "", nil, fmt.Errorf("invalid predicate: %w", err)
	}
	if p == nil {
		return "1 = 1", nil, nil
	}
	return compilePredicate(p)
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Eq:
		return compareExpr(pred.Attr, "=", pred.Value)
	case queryir.Gt:
		return compareExpr(pred.Attr, ">", pred.Value)
	case queryir.Lt:
		return compareExpr(pred.Attr, "<", pred.Value)
	case queryir.Le:
		return compareExpr(pred.Attr, "<=", pred.Value)
	case queryir.Exists:
		if promoted[pred.Attr] {
			return pred.Attr + " IS NOT NULL", nil, nil
		}
		return "json_type(attrs, '$." + pred.Attr + "') IS NOT NULL", nil, nil
	case queryir.And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compareExpr(attr, op string, v fact.Value) (string, []any, error) {
	param, err := valueToParam(v)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", attr, err)
	}
	return attrExpr(attr) + " " + op + " ?", []any{param}, nil
}

// compileAnd joins sub-predicates with AND.
// Empty And compiles to "1 = 1" (vacuous truth).
func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for i, sub := range and.Predicates {
		sql, subParams, err := compilePredicate(sub)
		if err != nil {
			return "", nil, fmt.Errorf("and[%d]: %w", i, err)
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// attrExpr returns the SQL expression reading an attribute.
// The name has already passed queryir.ValidateAttr.
func attrExpr(attr string) string {
	if promoted[attr] {
		return attr
	}
	return "json_extract(attrs, '$." + attr + "')"
}

func idOrder(order []queryir.OrderBy) string {
	for _, o := range order {
		if o.Attr == fact.ColID && o.Desc {
			return "id DESC"
		}
	}
	return "id ASC"
}

// valueToParam converts a comparable fact.Value to a driver parameter.
// Booleans become 0/1 to match what json_extract returns for true/false.
func valueToParam(v fact.Value) (any, error) {
	switch val := v.(type) {
	case fact.String:
		return string(val), nil
	case fact.Int:
		return int64(val), nil
	case fact.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}
