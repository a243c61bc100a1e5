package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case TypeStep:
				fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", i+1, event.Op, event.Target, event.Outcome)
			case TypePush:
				fmt.Fprintf(&buf, "  [%d]   push %s\n", i+1, event.Kind)
			default:
				fmt.Fprintf(&buf, "  [%d]   #%d %s\n", i+1, event.Seq, event.Kind)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks that an entry named assertion.Event exists,
// with the given outcome when one is set.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.name() != assertion.Event {
			continue
		}
		if assertion.Outcome == "" || event.Outcome == assertion.Outcome {
			return nil
		}
	}

	expected := assertion.Event
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the entries in Sequence appear in order.
// Entries need not be consecutive; each match must come after the previous
// one.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for i, want := range assertion.Sequence {
		found := false
		for pos < len(trace) {
			name := trace[pos].name()
			pos++
			if name == want {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("missing %s", want)
			if i > 0 {
				actual = fmt.Sprintf("no %s after %s", want, assertion.Sequence[i-1])
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Sequence),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the entry appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.name() == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertVisible checks the images shown under a category, in order.
func assertVisible(e *engine.Engine, assertion Assertion) error {
	category := assertion.Category
	if category == "" {
		category = e.ActiveCategory()
	}
	got := cache.IDs(e.VisibleIn(category))
	if len(got) == len(assertion.IDs) && (len(got) == 0 || reflect.DeepEqual(got, assertion.IDs)) {
		return nil
	}
	return &AssertionError{
		Type:     AssertVisible,
		Expected: fmt.Sprintf("%s shows %v", category, assertion.IDs),
		Actual:   fmt.Sprintf("%s shows %v", category, got),
	}
}

// assertFinalState checks that exactly one row of the table matches Where
// and carries the expected values. In-memory tables come from the result;
// any other table is queried from the journal.
func assertFinalState(ctx context.Context, st *store.Store, state map[string][]map[string]any, assertion Assertion) error {
	rows, ok := state[assertion.Table]
	if !ok {
		var err error
		rows, err = queryTable(ctx, st, assertion)
		if err != nil {
			return err
		}
	}

	var matched []map[string]any
	for _, row := range rows {
		if rowMatches(row, assertion.Where) {
			matched = append(matched, row)
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	// Subset semantics: only fields in Expect are checked. A field the row
	// omits reads as its zero value, since wire records drop empty fields.
	actual := matched[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		if !stateValuesEqual(expected, actual[key]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual[key], actual[key]),
			}
		}
	}
	return nil
}

// queryTable reads matching rows from a journal table with parameterized
// SQL.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func queryTable(ctx context.Context, st *store.Store, assertion Assertion) ([]map[string]any, error) {
	if st == nil {
		return nil, fmt.Errorf("final_state on %s requires a journal", assertion.Table)
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return nil, fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return nil, &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func rowMatches(row, where map[string]any) bool {
	for key, want := range where {
		if !stateValuesEqual(want, row[key]) {
			return false
		}
	}
	return true
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares an expected YAML value with a state value.
// Numbers compare by value whatever their type, SQLite booleans are
// integers, and a missing value equals the zero value of the expected type.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil {
		return actual == nil
	}

	switch exp := expected.(type) {
	case string:
		if actual == nil {
			return exp == ""
		}
		s, ok := actual.(string)
		return ok && exp == s
	case bool:
		switch a := actual.(type) {
		case nil:
			return !exp
		case bool:
			return exp == a
		case int64:
			return exp == (a != 0)
		}
		return false
	}

	if e, ok := toFloat(expected); ok {
		if actual == nil {
			return e == 0
		}
		a, ok := toFloat(actual)
		return ok && e == a
	}

	// Fallback to DeepEqual for complex types
	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store  *store.Store
	Ctx    context.Context
	Engine *engine.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires an assertion context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, result.State, assertion)
			}
		case AssertVisible:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: visible requires an engine", i)
			} else {
				err = assertVisible(actx.Engine, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
